package node

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/colorfulnotion/zytherion/chainspecs"
	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/pow"
	"github.com/colorfulnotion/zytherion/staking"
	"github.com/colorfulnotion/zytherion/statedb"
	"github.com/colorfulnotion/zytherion/storage"
	"github.com/colorfulnotion/zytherion/types"
	"golang.org/x/exp/slices"
)

var (
	ErrUnknownBlock    = errors.New("unknown candidate block")
	ErrNoValidatorKey  = errors.New("no local key for validator")
	ErrChainNotEmpty   = errors.New("block store already holds a chain")
	ErrMiningInProcess = errors.New("mining already in progress")
)

// TrustScorer is the external validator trust service. ok is false when it
// has no opinion on the block.
type TrustScorer interface {
	Score(block *types.Block) (score float32, ok bool)
}

// StaticTrustScorer returns the same score for every block.
type StaticTrustScorer float32

func (s StaticTrustScorer) Score(*types.Block) (float32, bool) {
	return float32(s), true
}

// candidate is a mined block waiting for votes.
type candidate struct {
	block *types.Block
	votes []types.ValidatorVote
	voted map[common.Address]bool
}

type Node struct {
	spec     *chainspecs.ChainSpec
	params   chainspecs.Params
	state    *statedb.StateDB
	registry *staking.Registry
	miner    *pow.Miner
	retarget pow.Retarget
	store    *storage.PersistenceStore
	blocks   *storage.BlockStore
	scorer   TrustScorer
	now      func() uint64
	seed     *uint64
	hub      *Hub

	mu          sync.Mutex
	head        *types.Block
	difficulty  uint64
	parentVotes []types.ValidatorVote
	pending     map[common.Hash]*candidate
	job         *pow.Job
	keys        map[common.Address]*common.KeyPair
	history     []FinalityRecord
}

type Option func(*Node)

// WithStore persists blocks in ps instead of an in-memory LevelDB.
func WithStore(ps *storage.PersistenceStore) Option {
	return func(n *Node) { n.store = ps }
}

func WithTrustScorer(s TrustScorer) Option {
	return func(n *Node) { n.scorer = s }
}

// WithClock replaces the unix-seconds clock used for block and bonding times.
func WithClock(now func() uint64) Option {
	return func(n *Node) { n.now = now }
}

// WithEventHub publishes produced and finalized blocks to hub.
func WithEventHub(hub *Hub) Option {
	return func(n *Node) { n.hub = hub }
}

// WithSeed makes validator selection reproducible.
func WithSeed(seed uint64) Option {
	return func(n *Node) { n.seed = &seed }
}

// NewNode builds the ledger, stake registry and genesis block described by spec.
func NewNode(spec *chainspecs.ChainSpec, opts ...Option) (*Node, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	n := &Node{
		spec:    spec,
		params:  spec.Params,
		state:   statedb.NewStateDB(),
		now:     func() uint64 { return uint64(time.Now().Unix()) },
		pending: make(map[common.Hash]*candidate),
		keys:    make(map[common.Address]*common.KeyPair),
	}
	for _, opt := range opts {
		opt(n)
	}

	policy, err := pow.ParsePolicy(n.params.TargetPolicy)
	if err != nil {
		return nil, err
	}
	n.miner = pow.NewMiner(pow.WithPolicy(policy), pow.WithMaxNonce(n.params.MaxNonce))
	n.retarget = n.params.Retarget()
	n.difficulty = n.params.InitialDifficulty

	regOpts := []staking.Option{staking.WithFinalityWeights(n.params.FinalityWeights)}
	if n.seed != nil {
		regOpts = append(regOpts, staking.WithSeed(*n.seed))
	}
	n.registry = staking.NewRegistry(n.params.MinimumStake, n.params.UnbondingPeriod, regOpts...)

	if n.store == nil {
		if n.store, err = storage.NewMemoryPersistenceStore(); err != nil {
			return nil, err
		}
	}
	n.blocks = storage.NewBlockStore(n.store)
	if _, ok, err := n.blocks.Head(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrChainNotEmpty
	}

	if err := n.loadGenesis(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) loadGenesis() error {
	g := n.spec.Genesis
	n.state.CreateGenesisAccounts(g.Accounts)
	for i, v := range g.Validators {
		kp, err := v.KeyPair()
		if err != nil {
			return fmt.Errorf("genesis validator %d: %w", i, err)
		}
		addr := kp.Address()
		if err := n.state.Credit(addr, v.Balance); err != nil {
			return fmt.Errorf("genesis validator %d: %w", i, err)
		}
		if err := n.state.BondStake(addr, v.Stake); err != nil {
			return fmt.Errorf("genesis validator %d: %w", i, err)
		}
		if err := n.registry.AddStaker(addr, v.Stake, g.Timestamp); err != nil {
			return fmt.Errorf("genesis validator %d: %w", i, err)
		}
		n.keys[addr] = kp
	}

	genesis := types.NewBlockFromParams(types.BlockParams{Timestamp: g.Timestamp})
	if err := n.blocks.PutBlock(genesis); err != nil {
		return err
	}
	n.head = genesis
	log.Info(log.NodeMonitoring, "genesis loaded", "chain", n.spec.ID, "hash", genesis.Hash.Short(),
		"accounts", n.state.AccountCount(), "validators", n.registry.Count(), "supply", n.state.GetTotalSupply())
	return nil
}

// Head returns a copy of the latest finalized block.
func (n *Node) Head() *types.Block {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head.Copy()
}

// Difficulty is the difficulty the next block is mined at.
func (n *Node) Difficulty() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.difficulty
}

func (n *Node) State() *statedb.StateDB {
	return n.state
}

func (n *Node) Registry() *staking.Registry {
	return n.registry
}

func (n *Node) Blocks() *storage.BlockStore {
	return n.blocks
}

func (n *Node) Params() chainspecs.Params {
	return n.params
}

// ValidatorKeys lists the validators this node can sign for.
func (n *Node) ValidatorKeys() []common.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]common.Address, 0, len(n.keys))
	for addr := range n.keys {
		out = append(out, addr)
	}
	slices.Sort(out)
	return out
}

// Close aborts mining and closes the block store.
func (n *Node) Close() error {
	n.AbortMining()
	return n.store.Close()
}

func (n *Node) String() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fmt.Sprintf("[%s] head=%d/%s difficulty=%d pending=%d", n.spec.ID, n.head.Header.Height, n.head.Hash.Short(), n.difficulty, len(n.pending))
}
