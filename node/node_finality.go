package node

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/telemetry"
	"github.com/colorfulnotion/zytherion/types"
	"go.opentelemetry.io/otel/attribute"
)

// SelectCommittee samples committee_size distinct active validators,
// weighted by voting power.
func (n *Node) SelectCommittee(ctx context.Context) []common.Address {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanCommitteeSelected)
	committee := n.registry.SelectValidators(n.params.CommitteeSize)
	span.SetAttributes(attribute.Int(telemetry.AttrCommitteeSize, len(committee)))
	telemetry.EndSpan(span, nil)
	log.Debug(log.StakeMonitoring, "committee selected", "size", len(committee), "requested", n.params.CommitteeSize)
	return committee
}

// CastVote signs kind on a candidate with a locally held validator key.
func (n *Node) CastVote(ctx context.Context, hash common.Hash, validator common.Address, kind types.VoteKind) (vote *types.ValidatorVote, err error) {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanVoting,
		attribute.String(telemetry.AttrBlockHash, hash.Hex()),
		attribute.String(telemetry.AttrValidator, string(validator)))
	defer func() { telemetry.EndSpan(span, err) }()

	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.pending[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, hash.Short())
	}
	kp, ok := n.keys[validator]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoValidatorKey, validator)
	}
	vote, err = n.registry.VoteOnBlock(c.block, validator, kp, kind)
	if err != nil {
		return nil, err
	}
	c.record(*vote)
	return vote, nil
}

// SubmitVote records a vote signed elsewhere on the given candidate.
func (n *Node) SubmitVote(hash common.Hash, vote *types.ValidatorVote, publicKey []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.pending[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlock, hash.Short())
	}
	if err := n.registry.VerifyVote(vote, hash, publicKey); err != nil {
		return err
	}
	c.record(vote.Copy())
	return nil
}

// CollectVotes selects a committee and has each member this node holds a key
// for vote on the candidate: Approve when the block is well formed, carries
// enough work and extends the head, Reject otherwise.
func (n *Node) CollectVotes(ctx context.Context, hash common.Hash) ([]types.ValidatorVote, error) {
	block, ok := n.Candidate(hash)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, hash.Short())
	}
	kind := types.VoteApprove
	if err := n.checkCandidate(block); err != nil {
		log.Warn(log.StakeMonitoring, "voting against block", "hash", hash.Short(), "err", err)
		kind = types.VoteReject
	}

	committee := n.SelectCommittee(ctx)
	votes := make([]types.ValidatorVote, 0, len(committee))
	for _, validator := range committee {
		vote, err := n.CastVote(ctx, hash, validator, kind)
		if err != nil {
			log.Debug(log.StakeMonitoring, "committee member did not vote", "validator", validator, "err", err)
			continue
		}
		votes = append(votes, *vote)
	}
	return votes, nil
}

func (n *Node) checkCandidate(block *types.Block) error {
	if err := block.ValidateWithLimit(n.params.MaxBlockTransactions); err != nil {
		return err
	}
	if err := n.miner.VerifyWork(block); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.checkAgainstHead(block)
}

// FinalityScore is the current score of a candidate.
func (n *Node) FinalityScore(ctx context.Context, hash common.Hash) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.pending[hash]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownBlock, hash.Short())
	}
	return n.scoreCandidate(ctx, c), nil
}

// Votes returns the votes recorded on a candidate.
func (n *Node) Votes(hash common.Hash) []types.ValidatorVote {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.pending[hash]
	if !ok {
		return nil
	}
	out := make([]types.ValidatorVote, len(c.votes))
	for i, v := range c.votes {
		out[i] = v.Copy()
	}
	return out
}

// scoreCandidate requires n.mu.
func (n *Node) scoreCandidate(ctx context.Context, c *candidate) float64 {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanFinality, attribute.String(telemetry.AttrBlockHash, c.block.Hash.Hex()))
	if n.scorer != nil {
		if s, ok := n.scorer.Score(c.block); ok {
			c.block.SetExternalScore(s)
		}
	}
	score := n.registry.CalculateFinalityScore(c.votes, c.block.ExternalScore)
	span.SetAttributes(attribute.Float64(telemetry.AttrFinalityScore, score))
	telemetry.EndSpan(span, nil)
	return score
}

// record keeps the first vote of each validator.
func (c *candidate) record(v types.ValidatorVote) {
	if c.voted[v.Validator] {
		return
	}
	c.voted[v.Validator] = true
	c.votes = append(c.votes, v)
}
