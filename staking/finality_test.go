package staking

import (
	"testing"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock() *types.Block {
	return types.NewBlockFromParams(types.BlockParams{
		PreviousHash: common.HashData([]byte("parent")),
		Difficulty:   1,
		Height:       3,
		Timestamp:    bondedAt,
	})
}

func f32(v float32) *float32 { return &v }

func TestFinalitySingleApproval(t *testing.T) {
	r := newTestRegistry()
	val := key(t, "v1")
	require.NoError(t, r.AddStaker(val.Address(), 4000, bondedAt))

	block := testBlock()
	vote, err := r.VoteOnBlock(block, val.Address(), val, types.VoteApprove)
	require.NoError(t, err)

	score := r.CalculateFinalityScore([]types.ValidatorVote{*vote}, f32(0.8))
	assert.InDelta(t, 0.92, score, 1e-6)
}

func TestFinalityDefaults(t *testing.T) {
	r := newTestRegistry()
	// no votes, no external score
	assert.InDelta(t, 0.2, r.CalculateFinalityScore(nil, nil), 1e-12)

	a, b := key(t, "a"), key(t, "b")
	require.NoError(t, r.AddStaker(a.Address(), 1000, bondedAt))
	require.NoError(t, r.AddStaker(b.Address(), 1000, bondedAt))

	votes := []types.ValidatorVote{
		{Validator: a.Address(), Vote: types.VoteApprove},
		{Validator: b.Address(), Vote: types.VoteReject},
		{Validator: "ZYTH_UNKNOWN", Vote: types.VoteApprove},
	}
	// half of participating power approves
	assert.InDelta(t, 0.6*0.5+0.4*0.5, r.CalculateFinalityScore(votes, nil), 1e-12)
	// clamped external score
	assert.InDelta(t, 0.6*0.5+0.4*1.0, r.CalculateFinalityScore(votes, f32(3)), 1e-12)
	assert.InDelta(t, 0.6*0.5, r.CalculateFinalityScore(votes, f32(-1)), 1e-12)
}

func TestFinalityAbstainParticipates(t *testing.T) {
	r := newTestRegistry()
	a, b := key(t, "a"), key(t, "b")
	require.NoError(t, r.AddStaker(a.Address(), 1000, bondedAt))
	require.NoError(t, r.AddStaker(b.Address(), 1000, bondedAt))
	votes := []types.ValidatorVote{
		{Validator: a.Address(), Vote: types.VoteApprove},
		{Validator: b.Address(), Vote: types.VoteAbstain},
	}
	assert.InDelta(t, 0.6*0.5+0.4*1.0, r.CalculateFinalityScore(votes, f32(1)), 1e-6)
}

func TestFinalityDedupesAndSkipsJailed(t *testing.T) {
	r := newTestRegistry()
	a, b := key(t, "a"), key(t, "b")
	require.NoError(t, r.AddStaker(a.Address(), 1000, bondedAt))
	require.NoError(t, r.AddStaker(b.Address(), 1000, bondedAt))

	votes := []types.ValidatorVote{
		{Validator: a.Address(), Vote: types.VoteApprove},
		{Validator: a.Address(), Vote: types.VoteReject},
		{Validator: b.Address(), Vote: types.VoteReject},
	}
	assert.InDelta(t, 0.6*0.5+0.4*0.5, r.CalculateFinalityScore(votes, nil), 1e-12)

	require.NoError(t, r.Jail(b.Address(), "offline"))
	assert.InDelta(t, 0.6+0.4*0.5, r.CalculateFinalityScore(votes, nil), 1e-12)
}

func TestFinalityScoreInRange(t *testing.T) {
	r := newTestRegistry()
	a := key(t, "a")
	require.NoError(t, r.AddStaker(a.Address(), 1000, bondedAt))
	for _, kind := range []types.VoteKind{types.VoteApprove, types.VoteReject, types.VoteAbstain} {
		for _, ext := range []*float32{nil, f32(0), f32(1), f32(0.3)} {
			s := r.CalculateFinalityScore([]types.ValidatorVote{{Validator: a.Address(), Vote: kind}}, ext)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestVoteOnBlock(t *testing.T) {
	r := newTestRegistry()
	val, other := key(t, "val"), key(t, "other")
	block := testBlock()

	_, err := r.VoteOnBlock(block, val.Address(), val, types.VoteApprove)
	assert.ErrorIs(t, err, zytherrors.ErrNotActiveValidator)

	require.NoError(t, r.AddStaker(val.Address(), 1000, bondedAt))
	_, err = r.VoteOnBlock(block, val.Address(), other, types.VoteApprove)
	assert.ErrorIs(t, err, zytherrors.ErrValidatorKeyMismatch)

	vote, err := r.VoteOnBlock(block, val.Address(), val, types.VoteReject)
	require.NoError(t, err)
	assert.Equal(t, types.VoteReject, vote.Vote)
	require.NoError(t, r.VerifyVote(vote, block.Hash, val.PublicKey()))

	assert.ErrorIs(t, r.VerifyVote(vote, block.Hash, other.PublicKey()), zytherrors.ErrValidatorKeyMismatch)
	assert.ErrorIs(t, r.VerifyVote(vote, common.HashData([]byte("other")), val.PublicKey()), zytherrors.ErrInvalidVoteSignature)

	require.NoError(t, r.Jail(val.Address(), "test"))
	_, err = r.VoteOnBlock(block, val.Address(), val, types.VoteApprove)
	assert.ErrorIs(t, err, zytherrors.ErrNotActiveValidator)
	assert.ErrorIs(t, r.VerifyVote(vote, block.Hash, val.PublicKey()), zytherrors.ErrNotActiveValidator)
}

func TestFinalityWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultFinalityWeights().Validate())
	assert.ErrorIs(t, FinalityWeights{Stake: 0.7, External: 0.4}.Validate(), zytherrors.ErrInvalidChainSpec)
	assert.ErrorIs(t, FinalityWeights{Stake: 0.5, External: 0.5, DefaultExternal: 2}.Validate(), zytherrors.ErrInvalidChainSpec)

	r := NewRegistry(1, 0, WithFinalityWeights(FinalityWeights{Stake: 1, External: 0, DefaultExternal: 0.5}))
	a := key(t, "a")
	require.NoError(t, r.AddStaker(a.Address(), 1, 0))
	assert.InDelta(t, 1.0, r.CalculateFinalityScore([]types.ValidatorVote{{Validator: a.Address(), Vote: types.VoteApprove}}, f32(0)), 1e-12)
}
