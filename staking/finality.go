package staking

import (
	"fmt"
	"math"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
)

// FinalityWeights blends stake approval with the external trust score.
type FinalityWeights struct {
	Stake           float64 `json:"stake_weight"`
	External        float64 `json:"external_weight"`
	DefaultExternal float64 `json:"default_external_score"`
}

func DefaultFinalityWeights() FinalityWeights {
	return FinalityWeights{Stake: 0.6, External: 0.4, DefaultExternal: 0.5}
}

func (w FinalityWeights) Validate() error {
	if w.Stake < 0 || w.External < 0 || math.Abs(w.Stake+w.External-1) > 1e-9 {
		return fmt.Errorf("%w: finality weights %v + %v must sum to 1", zytherrors.ErrInvalidChainSpec, w.Stake, w.External)
	}
	if w.DefaultExternal < 0 || w.DefaultExternal > 1 {
		return fmt.Errorf("%w: default external score %v outside [0,1]", zytherrors.ErrInvalidChainSpec, w.DefaultExternal)
	}
	return nil
}

// VoteOnBlock signs kind on block for validator. The validator must be an
// active staker and keyPair must derive its address.
func (r *Registry) VoteOnBlock(block *types.Block, validator common.Address, keyPair *common.KeyPair, kind types.VoteKind) (*types.ValidatorVote, error) {
	if !r.IsActive(validator) {
		return nil, fmt.Errorf("%w: %s", zytherrors.ErrNotActiveValidator, validator)
	}
	if keyPair.Address() != validator {
		return nil, fmt.Errorf("%w: key %s for %s", zytherrors.ErrValidatorKeyMismatch, keyPair.Address(), validator)
	}
	vote := &types.ValidatorVote{
		Validator: validator,
		Signature: keyPair.Sign(types.VoteSigningBytes(block.Hash, kind)),
		Vote:      kind,
	}
	log.Trace(log.StakeMonitoring, "vote cast", "validator", validator, "block", block.Hash.Short(), "vote", kind)
	return vote, nil
}

// VerifyVote checks that publicKey belongs to the voting validator and
// signed the vote for blockHash.
func (r *Registry) VerifyVote(vote *types.ValidatorVote, blockHash common.Hash, publicKey []byte) error {
	if common.AddressFromPublicKey(publicKey) != vote.Validator {
		return fmt.Errorf("%w: %s", zytherrors.ErrValidatorKeyMismatch, vote.Validator)
	}
	if !vote.Verify(blockHash, publicKey) {
		return fmt.Errorf("%w: %s", zytherrors.ErrInvalidVoteSignature, vote.Validator)
	}
	if !r.IsActive(vote.Validator) {
		return fmt.Errorf("%w: %s", zytherrors.ErrNotActiveValidator, vote.Validator)
	}
	return nil
}

// CalculateFinalityScore blends the approving share of participating voting
// power with the external score. Votes from unknown or jailed validators are
// ignored and only the first vote per validator counts. A nil or NaN
// external score uses the default; others are clamped to [0,1].
func (r *Registry) CalculateFinalityScore(votes []types.ValidatorVote, externalScore *float32) float64 {
	r.mu.RLock()
	power := make(map[common.Address]float64, len(r.stakers))
	for _, s := range r.stakers {
		if s.Active() {
			power[s.Address] = s.VotingPower
		}
	}
	w := r.weights
	r.mu.RUnlock()

	var participating, approving float64
	seen := make(map[common.Address]struct{}, len(votes))
	for _, v := range votes {
		p, ok := power[v.Validator]
		if !ok {
			continue
		}
		if _, dup := seen[v.Validator]; dup {
			continue
		}
		seen[v.Validator] = struct{}{}
		participating += p
		if v.Vote == types.VoteApprove {
			approving += p
		}
	}

	var stakeScore float64
	if participating > 0 {
		stakeScore = approving / participating
	}
	external := w.DefaultExternal
	if externalScore != nil && !math.IsNaN(float64(*externalScore)) {
		external = math.Min(1, math.Max(0, float64(*externalScore)))
	}
	score := w.Stake*stakeScore + w.External*external
	log.Debug(log.StakeMonitoring, "finality score", "votes", len(seen), "stake", stakeScore, "external", external, "score", score)
	return score
}
