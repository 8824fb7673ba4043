package chainspecs

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/pow"
	"github.com/colorfulnotion/zytherion/staking"
	"github.com/colorfulnotion/zytherion/statedb"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

//go:embed configs/*.json
var configFS embed.FS

var networkFile = map[string]string{
	"dev": "configs/dev.json",
}

// ValidatorKeyLabel is the derivation label for validator keys.
const ValidatorKeyLabel = "zytherion/validator"

// Params are the chain's protocol parameters.
type Params struct {
	MinimumStake         uint64 `json:"minimum_stake"`
	UnbondingPeriod      uint64 `json:"unbonding_period"`
	MaxBlockTransactions int    `json:"max_block_transactions"`
	InitialDifficulty    uint64 `json:"initial_difficulty"`
	MinDifficulty        uint64 `json:"min_difficulty"`
	RetargetInterval     uint64 `json:"retarget_interval"`
	TargetBlockTime      uint64 `json:"target_block_time"`
	MaxNonce             uint64 `json:"max_nonce"`
	TargetPolicy         string `json:"target_policy"`
	staking.FinalityWeights
	FinalityThreshold float64 `json:"finality_threshold"`
	CommitteeSize     int     `json:"committee_size"`
}

func DefaultParams() Params {
	return Params{
		MinimumStake:         staking.DefaultMinimumStake,
		UnbondingPeriod:      staking.DefaultUnbondingPeriod,
		MaxBlockTransactions: types.DefaultMaxBlockTransactions,
		InitialDifficulty:    2,
		RetargetInterval:     pow.DefaultRetargetInterval,
		TargetBlockTime:      pow.DefaultTargetBlockTime,
		TargetPolicy:         pow.PolicyHexPrefix,
		FinalityWeights:      staking.DefaultFinalityWeights(),
		FinalityThreshold:    0.67,
		CommitteeSize:        4,
	}
}

// Retarget is the difficulty schedule described by p.
func (p Params) Retarget() pow.Retarget {
	return pow.Retarget{Interval: p.RetargetInterval, TargetBlockTime: p.TargetBlockTime, MinDifficulty: p.MinDifficulty}
}

type GenesisValidator struct {
	Seed    hexutil.Bytes `json:"seed"`
	Balance uint64        `json:"balance"`
	Stake   uint64        `json:"stake"`
}

// KeyPair derives the validator's signing key from its seed.
func (v GenesisValidator) KeyPair() (*common.KeyPair, error) {
	return common.DeriveKeyPair(ValidatorKeyLabel, v.Seed)
}

type Genesis struct {
	Timestamp  uint64             `json:"timestamp"`
	Accounts   []types.Account    `json:"accounts"`
	Validators []GenesisValidator `json:"validators"`
}

type ChainSpec struct {
	ID      string  `json:"id"`
	Params  Params  `json:"params"`
	Genesis Genesis `json:"genesis"`
}

// ReadSpec loads an embedded spec by id, or a spec file when id is a path.
// Fields missing from the JSON keep their DefaultParams values.
func ReadSpec(id string) (spec *ChainSpec, err error) {
	var data []byte
	path, ok := networkFile[id]
	if ok {
		data, err = configFS.ReadFile(path)
	} else {
		data, err = os.ReadFile(id)
	}
	if err != nil {
		return nil, err
	}
	spec = &ChainSpec{Params: DefaultParams()}
	if err := json.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("%w: %v", zytherrors.ErrInvalidChainSpec, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (cs *ChainSpec) Validate() error {
	p := cs.Params
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", zytherrors.ErrInvalidChainSpec, fmt.Sprintf(format, args...))
	}
	if p.MaxBlockTransactions <= 0 {
		return invalid("max_block_transactions must be positive, got %d", p.MaxBlockTransactions)
	}
	policy, err := pow.ParsePolicy(p.TargetPolicy)
	if err != nil {
		return invalid("%v", err)
	}
	maxDifficulty := uint64(common.HashLength * 2)
	if policy.Name() == pow.PolicyNumeric {
		maxDifficulty = common.HashLength * 8
	}
	if p.InitialDifficulty > maxDifficulty {
		return invalid("initial_difficulty %d exceeds %d for %s", p.InitialDifficulty, maxDifficulty, policy.Name())
	}
	if p.InitialDifficulty < p.MinDifficulty {
		return invalid("initial_difficulty %d below min_difficulty %d", p.InitialDifficulty, p.MinDifficulty)
	}
	if p.RetargetInterval > 0 && p.TargetBlockTime == 0 {
		return invalid("target_block_time must be positive when retargeting")
	}
	if err := p.FinalityWeights.Validate(); err != nil {
		return err
	}
	if p.FinalityThreshold < 0 || p.FinalityThreshold > 1 {
		return invalid("finality_threshold %v outside [0,1]", p.FinalityThreshold)
	}
	if p.CommitteeSize <= 0 {
		return invalid("committee_size must be positive, got %d", p.CommitteeSize)
	}

	seen := make(map[common.Address]bool)
	for _, a := range cs.Genesis.Accounts {
		if a.Address.IsEmpty() {
			return invalid("genesis account without address")
		}
		if seen[a.Address] {
			return invalid("duplicate genesis account %s", a.Address)
		}
		seen[a.Address] = true
	}
	for i, v := range cs.Genesis.Validators {
		kp, err := v.KeyPair()
		if err != nil {
			return invalid("validator %d: %v", i, err)
		}
		if seen[kp.Address()] {
			return invalid("validator %d: duplicate address %s", i, kp.Address())
		}
		seen[kp.Address()] = true
		if v.Stake < p.MinimumStake {
			return invalid("validator %d: stake %d below minimum %d", i, v.Stake, p.MinimumStake)
		}
		if v.Stake > v.Balance {
			return invalid("validator %d: stake %d exceeds balance %d", i, v.Stake, v.Balance)
		}
	}
	return nil
}

type DevConfig struct {
	ID         string `json:"id"`
	Validators int    `json:"validators"`
	Balance    uint64 `json:"balance"`
	Stake      uint64 `json:"stake"`
}

// GenSpec builds a development spec with the demo accounts and
// dev.Validators validators whose seeds are derived from the spec id.
func GenSpec(dev DevConfig) (*ChainSpec, error) {
	spec := &ChainSpec{
		ID:     dev.ID,
		Params: DefaultParams(),
		Genesis: Genesis{
			Accounts: statedb.DefaultGenesisAccounts(),
		},
	}
	for i := 0; i < dev.Validators; i++ {
		seed := common.HashData([]byte(fmt.Sprintf("%s/validator/%d", dev.ID, i)))
		spec.Genesis.Validators = append(spec.Genesis.Validators, GenesisValidator{
			Seed:    seed.Bytes(),
			Balance: dev.Balance,
			Stake:   dev.Stake,
		})
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}
