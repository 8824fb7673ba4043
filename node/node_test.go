package node

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/colorfulnotion/zytherion/chainspecs"
	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/pow"
	"github.com/colorfulnotion/zytherion/statedb"
	"github.com/colorfulnotion/zytherion/storage"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice common.Address = "ZYTH_ALICE"
	bob   common.Address = "ZYTH_BOB"

	genesisTime = 1700000000
)

type testClock struct{ now uint64 }

func (c *testClock) Now() uint64 { return c.now }

func newTestNode(t *testing.T, mutate func(*chainspecs.ChainSpec), opts ...Option) (*Node, *testClock) {
	t.Helper()
	spec, err := chainspecs.ReadSpec("dev")
	require.NoError(t, err)
	spec.Params.InitialDifficulty = 1
	spec.Genesis.Accounts = append(spec.Genesis.Accounts, types.Account{Address: alice, Balance: 5000})
	if mutate != nil {
		mutate(spec)
	}
	clock := &testClock{now: genesisTime + 10}
	opts = append([]Option{WithClock(clock.Now), WithSeed(7)}, opts...)
	n, err := NewNode(spec, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n, clock
}

func transfer(from, to common.Address, amount, fee, nonce uint64) types.Transaction {
	return types.Transaction{From: from, To: to, Amount: amount, Fee: fee, Nonce: nonce, Timestamp: genesisTime}
}

// produceAndFinalize runs one block through mining, voting and finality.
func produceAndFinalize(t *testing.T, n *Node, txs ...types.Transaction) *types.Block {
	t.Helper()
	ctx := context.Background()
	block, found, err := n.ProduceBlock(ctx, txs)
	require.NoError(t, err)
	require.True(t, found)
	_, err = n.CollectVotes(ctx, block.Hash)
	require.NoError(t, err)
	final, _, err := n.FinalizeBlock(ctx, block.Hash)
	require.NoError(t, err)
	return final
}

func TestNodeGenesis(t *testing.T) {
	n, _ := newTestNode(t, nil)
	head := n.Head()
	assert.Equal(t, uint64(0), head.Header.Height)
	assert.NoError(t, head.Validate())

	assert.Equal(t, 5, n.Registry().Count())
	assert.Equal(t, uint64(150_000), n.Registry().TotalStake())
	assert.Len(t, n.ValidatorKeys(), 5)
	// demo accounts + alice + validator balances net of their bonded stake
	assert.Equal(t, uint64(1_150_000+5_000+500_000-150_000), n.State().GetTotalSupply())

	stored, ok, err := n.Blocks().Head()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, head.Hash, stored.Hash)
}

func TestNodeRejectsUsedStore(t *testing.T) {
	ps, err := storage.NewMemoryPersistenceStore()
	require.NoError(t, err)
	spec, err := chainspecs.ReadSpec("dev")
	require.NoError(t, err)

	_, err = NewNode(spec, WithStore(ps))
	require.NoError(t, err)
	_, err = NewNode(spec, WithStore(ps))
	assert.ErrorIs(t, err, ErrChainNotEmpty)
}

func TestEndToEndPipeline(t *testing.T) {
	n, clock := newTestNode(t, nil)
	ctx := context.Background()

	block, found, err := n.ProduceBlock(ctx, []types.Transaction{transfer(alice, bob, 1000, 50, 0)})
	require.NoError(t, err)
	require.True(t, found)
	assert.NoError(t, block.Validate())
	assert.NoError(t, pow.NewMiner().VerifyWork(block))
	assert.Equal(t, uint64(1), block.Header.Height)

	votes, err := n.CollectVotes(ctx, block.Hash)
	require.NoError(t, err)
	require.Len(t, votes, 4)
	for _, v := range votes {
		assert.Equal(t, types.VoteApprove, v.Vote)
	}

	score, err := n.FinalityScore(ctx, block.Hash)
	require.NoError(t, err)
	assert.InDelta(t, 0.6+0.4*0.5, score, 1e-9)

	final, score, err := n.FinalizeBlock(ctx, block.Hash)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, score, 1e-9)
	assert.Equal(t, block.Hash, final.Hash)

	sender, _ := n.State().GetAccount(alice)
	assert.Equal(t, uint64(3950), sender.Balance)
	assert.Equal(t, uint64(1), sender.Nonce)
	recipient, _ := n.State().GetAccount(bob)
	assert.Equal(t, uint64(1000), recipient.Balance)

	assert.Equal(t, block.Hash, n.Head().Hash)
	stored, err := n.Blocks().GetBlockByHeight(1)
	require.NoError(t, err)
	assert.Equal(t, block.Hash, stored.Hash)

	// the next block carries the votes that finalized its parent
	clock.now += 600
	next := produceAndFinalize(t, n, transfer(alice, bob, 10, 0, 1))
	assert.Equal(t, uint64(2), next.Header.Height)
	assert.Equal(t, block.Hash, next.Header.PreviousHash)
	assert.Len(t, next.Header.ValidatorVotes, 4)
}

func TestFinalizeNeedsVotes(t *testing.T) {
	n, _ := newTestNode(t, nil, WithTrustScorer(StaticTrustScorer(1)))
	ctx := context.Background()
	block, found, err := n.ProduceBlock(ctx, nil)
	require.NoError(t, err)
	require.True(t, found)

	_, score, err := n.FinalizeBlock(ctx, block.Hash)
	assert.ErrorIs(t, err, zytherrors.ErrNotFinal)
	assert.InDelta(t, 0.4, score, 1e-6)
	assert.Equal(t, uint64(0), n.Head().Header.Height)

	validators := n.ValidatorKeys()
	_, err = n.CastVote(ctx, block.Hash, validators[0], types.VoteReject)
	require.NoError(t, err)
	_, score, err = n.FinalizeBlock(ctx, block.Hash)
	assert.ErrorIs(t, err, zytherrors.ErrNotFinal)
	assert.InDelta(t, 0.4, score, 1e-6)

	// a second vote from the same validator is ignored
	_, err = n.CastVote(ctx, block.Hash, validators[0], types.VoteApprove)
	require.NoError(t, err)
	for _, v := range validators[1:] {
		_, err = n.CastVote(ctx, block.Hash, v, types.VoteApprove)
		require.NoError(t, err)
	}
	_, score, err = n.FinalizeBlock(ctx, block.Hash)
	require.NoError(t, err)
	assert.Greater(t, score, 0.67)
	assert.Less(t, score, 1.0)
}

func TestFinalizeRollsBackBadBlock(t *testing.T) {
	n, _ := newTestNode(t, nil)
	ctx := context.Background()
	before := n.State().Snapshot()

	block, found, err := n.ProduceBlock(ctx, []types.Transaction{
		transfer(alice, bob, 1000, 0, 0),
		transfer(alice, bob, 1000, 0, 7),
	})
	require.NoError(t, err)
	require.True(t, found)
	_, err = n.CollectVotes(ctx, block.Hash)
	require.NoError(t, err)

	_, _, err = n.FinalizeBlock(ctx, block.Hash)
	require.Error(t, err)
	assert.ErrorIs(t, err, zytherrors.ErrInvalidNonce)
	be, ok := statedb.IsBlockError(err)
	require.True(t, ok)
	assert.Equal(t, 1, be.Index)

	diff, err := statedb.DiffSnapshots(before, n.State().Snapshot())
	require.NoError(t, err)
	assert.Empty(t, diff)
	assert.Equal(t, uint64(0), n.Head().Header.Height)

	_, _, err = n.FinalizeBlock(ctx, block.Hash)
	assert.ErrorIs(t, err, ErrUnknownBlock)
}

func TestFinalizeRollsBackOnStoreFailure(t *testing.T) {
	ps, err := storage.NewMemoryPersistenceStore()
	require.NoError(t, err)
	n, _ := newTestNode(t, nil, WithStore(ps))
	ctx := context.Background()
	before := n.State().Snapshot()
	difficulty := n.Difficulty()

	block, found, err := n.ProduceBlock(ctx, []types.Transaction{transfer(alice, bob, 1000, 50, 0)})
	require.NoError(t, err)
	require.True(t, found)
	_, err = n.CollectVotes(ctx, block.Hash)
	require.NoError(t, err)

	require.NoError(t, ps.Close())
	_, _, err = n.FinalizeBlock(ctx, block.Hash)
	require.Error(t, err)

	sender, _ := n.State().GetAccount(alice)
	assert.Equal(t, uint64(5000), sender.Balance)
	assert.Equal(t, uint64(0), sender.Nonce)
	_, ok := n.State().GetAccount(bob)
	assert.False(t, ok)
	diff, err := statedb.DiffSnapshots(before, n.State().Snapshot())
	require.NoError(t, err)
	assert.Empty(t, diff)

	assert.Equal(t, uint64(0), n.Head().Header.Height)
	assert.Equal(t, difficulty, n.Difficulty())
	assert.Empty(t, n.History())
	_, ok = n.Candidate(block.Hash)
	assert.True(t, ok)
}

func TestProduceBlockTooManyTransactions(t *testing.T) {
	n, _ := newTestNode(t, func(cs *chainspecs.ChainSpec) { cs.Params.MaxBlockTransactions = 1 })
	_, _, err := n.ProduceBlock(context.Background(), []types.Transaction{
		transfer(alice, bob, 1, 0, 0),
		transfer(alice, bob, 1, 0, 1),
	})
	assert.ErrorIs(t, err, zytherrors.ErrTooManyTransactions)
	assert.ErrorIs(t, err, zytherrors.ErrBlockValidationFailed)
}

func TestMiningExhausted(t *testing.T) {
	n, _ := newTestNode(t, func(cs *chainspecs.ChainSpec) {
		cs.Params.InitialDifficulty = 64
		cs.Params.MaxNonce = 16
	})
	block, found, err := n.ProduceBlock(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, block)
}

func TestAbortMining(t *testing.T) {
	n, _ := newTestNode(t, func(cs *chainspecs.ChainSpec) { cs.Params.InitialDifficulty = 64 })
	assert.False(t, n.AbortMining())

	type result struct {
		found bool
		err   error
	}
	done := make(chan result, 1)
	go func() {
		_, found, err := n.ProduceBlock(context.Background(), nil)
		done <- result{found, err}
	}()

	require.Eventually(t, n.AbortMining, 5*time.Second, 5*time.Millisecond)
	select {
	case r := <-done:
		assert.False(t, r.found)
		assert.ErrorIs(t, r.err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("mining did not stop after abort")
	}
	assert.Equal(t, uint64(0), n.Head().Header.Height)
}

func TestSubmitBlock(t *testing.T) {
	n, _ := newTestNode(t, nil)
	ctx := context.Background()
	head := n.Head()

	unmined := types.NewBlockFromParams(types.BlockParams{PreviousHash: head.Hash, Height: 1, Timestamp: genesisTime + 5})
	mined, found, err := pow.NewMiner().Mine(ctx, unmined, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, n.SubmitBlock(ctx, mined))

	orphan := types.NewBlockFromParams(types.BlockParams{PreviousHash: common.HashData([]byte("elsewhere")), Height: 1})
	orphan, _, err = pow.NewMiner().Mine(ctx, orphan, 0)
	require.NoError(t, err)
	err = n.SubmitBlock(ctx, orphan)
	assert.ErrorIs(t, err, zytherrors.ErrParentMismatch)

	tooHigh := types.NewBlockFromParams(types.BlockParams{PreviousHash: head.Hash, Height: 5})
	tooHigh, _, err = pow.NewMiner().Mine(ctx, tooHigh, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, n.SubmitBlock(ctx, tooHigh), zytherrors.ErrHeightMismatch)

	tampered := mined.Copy()
	tampered.Header.Timestamp++
	assert.ErrorIs(t, n.SubmitBlock(ctx, tampered), zytherrors.ErrBlockHashMismatch)

	_, err = n.CollectVotes(ctx, mined.Hash)
	require.NoError(t, err)
	_, _, err = n.FinalizeBlock(ctx, mined.Hash)
	require.NoError(t, err)
	assert.Equal(t, mined.Hash, n.Head().Hash)
}

func TestSubmitBlockChecksParentVotes(t *testing.T) {
	n, clock := newTestNode(t, nil)
	ctx := context.Background()
	first := produceAndFinalize(t, n, transfer(alice, bob, 1000, 50, 0))
	clock.now += 600

	own, _, err := n.ProduceBlock(ctx, nil)
	require.NoError(t, err)
	votes := own.Header.ValidatorVotes
	require.NotEmpty(t, votes)

	peerBlock := func(ts uint64, votes []types.ValidatorVote) *types.Block {
		b := types.NewBlockFromParams(types.BlockParams{
			PreviousHash: first.Hash,
			Height:       2,
			Timestamp:    ts,
			Votes:        votes,
		})
		mined, found, err := pow.NewMiner().Mine(ctx, b, n.Difficulty())
		require.NoError(t, err)
		require.True(t, found)
		return mined
	}

	require.NoError(t, n.SubmitBlock(ctx, peerBlock(genesisTime+700, votes)))

	forged := append([]types.ValidatorVote(nil), votes...)
	forged[0] = forged[0].Copy()
	forged[0].Vote = types.VoteReject
	err = n.SubmitBlock(ctx, peerBlock(genesisTime+701, forged))
	assert.ErrorIs(t, err, zytherrors.ErrBlockValidationFailed)
	assert.ErrorIs(t, err, zytherrors.ErrInvalidVoteSignature)

	stranger := append([]types.ValidatorVote(nil), votes...)
	stranger[0] = stranger[0].Copy()
	stranger[0].Validator = "ZYTH_STRANGER"
	err = n.SubmitBlock(ctx, peerBlock(genesisTime+702, stranger))
	assert.ErrorIs(t, err, zytherrors.ErrStakerNotFound)

	// votes signed over some other block do not count for this parent
	kp, err := common.DeriveKeyPair("dave", []byte("node-test"))
	require.NoError(t, err)
	require.NoError(t, n.State().Credit(kp.Address(), 5_000))
	require.NoError(t, n.Stake(kp, 2_000))
	wrongParent := append([]types.ValidatorVote(nil), votes...)
	wrongParent[0] = types.ValidatorVote{
		Validator: kp.Address(),
		Signature: kp.Sign(types.VoteSigningBytes(common.HashData([]byte("elsewhere")), types.VoteApprove)),
		Vote:      types.VoteApprove,
	}
	err = n.SubmitBlock(ctx, peerBlock(genesisTime+703, wrongParent))
	assert.ErrorIs(t, err, zytherrors.ErrInvalidVoteSignature)
}

func TestSubmitVote(t *testing.T) {
	n, _ := newTestNode(t, nil)
	ctx := context.Background()
	block, _, err := n.ProduceBlock(ctx, nil)
	require.NoError(t, err)

	spec, err := chainspecs.ReadSpec("dev")
	require.NoError(t, err)
	kp, err := spec.Genesis.Validators[0].KeyPair()
	require.NoError(t, err)

	vote, err := n.Registry().VoteOnBlock(block, kp.Address(), kp, types.VoteApprove)
	require.NoError(t, err)
	require.NoError(t, n.SubmitVote(block.Hash, vote, kp.PublicKey()))
	assert.Len(t, n.Votes(block.Hash), 1)

	other, err := common.DeriveKeyPair("outsider", []byte("seed"))
	require.NoError(t, err)
	assert.ErrorIs(t, n.SubmitVote(block.Hash, vote, other.PublicKey()), zytherrors.ErrValidatorKeyMismatch)

	forged := *vote
	forged.Vote = types.VoteReject
	assert.ErrorIs(t, n.SubmitVote(block.Hash, &forged, kp.PublicKey()), zytherrors.ErrInvalidVoteSignature)

	assert.ErrorIs(t, n.SubmitVote(common.HashData(nil), vote, kp.PublicKey()), ErrUnknownBlock)
}

func TestStakeAndUnstake(t *testing.T) {
	n, clock := newTestNode(t, nil)
	kp, err := common.DeriveKeyPair("carol", []byte("node-test"))
	require.NoError(t, err)
	carol := kp.Address()
	require.NoError(t, n.State().Credit(carol, 10_000))

	err = n.Stake(kp, 500)
	assert.ErrorIs(t, err, zytherrors.ErrStakeBelowMinimum)
	acct, _ := n.State().GetAccount(carol)
	assert.Equal(t, uint64(10_000), acct.Balance)
	assert.False(t, acct.IsValidator)

	assert.ErrorIs(t, n.Stake(kp, 20_000), zytherrors.ErrInsufficientBalance)

	require.NoError(t, n.Stake(kp, 4_000))
	acct, _ = n.State().GetAccount(carol)
	assert.Equal(t, uint64(6_000), acct.Balance)
	assert.Equal(t, uint64(4_000), acct.StakedAmount)
	assert.True(t, acct.IsValidator)
	assert.Equal(t, uint64(154_000), n.Registry().TotalStake())
	assert.Contains(t, n.ValidatorKeys(), carol)

	assert.ErrorIs(t, n.Stake(kp, 1_000), zytherrors.ErrDuplicateStaker)
	acct, _ = n.State().GetAccount(carol)
	assert.Equal(t, uint64(6_000), acct.Balance)

	_, err = n.Unstake(carol)
	assert.ErrorIs(t, err, zytherrors.ErrUnbondingNotElapsed)

	clock.now += n.Params().UnbondingPeriod
	staker, err := n.Unstake(carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(4_000), staker.StakeAmount)
	acct, _ = n.State().GetAccount(carol)
	assert.Equal(t, uint64(10_000), acct.Balance)
	assert.False(t, acct.IsValidator)
	assert.Equal(t, uint64(150_000), n.Registry().TotalStake())
}

func TestUnstakeKeepsStakerWhenReleaseFails(t *testing.T) {
	n, clock := newTestNode(t, nil)
	kp, err := common.DeriveKeyPair("carol", []byte("node-test"))
	require.NoError(t, err)
	carol := kp.Address()
	require.NoError(t, n.State().Credit(carol, 10_000))
	require.NoError(t, n.Stake(kp, 4_000))
	require.NoError(t, n.Jail(carol, "offline"))
	clock.now += n.Params().UnbondingPeriod

	acct, _ := n.State().GetAccount(carol)
	acct.Balance = math.MaxUint64 - 100
	n.State().UpdateAccount(acct)

	_, err = n.Unstake(carol)
	assert.ErrorIs(t, err, zytherrors.ErrBalanceOverflow)

	staker, ok := n.Registry().Staker(carol)
	require.True(t, ok)
	assert.Equal(t, uint64(4_000), staker.StakeAmount)
	assert.True(t, staker.Jailed)
	assert.Equal(t, "offline", staker.JailReason)
	assert.Equal(t, uint64(154_000), n.Registry().TotalStake())
	assert.Contains(t, n.ValidatorKeys(), carol)
	acct, _ = n.State().GetAccount(carol)
	assert.Equal(t, uint64(4_000), acct.StakedAmount)
	assert.True(t, acct.IsValidator)

	acct.Balance = 6_000
	n.State().UpdateAccount(acct)
	_, err = n.Unstake(carol)
	require.NoError(t, err)
	acct, _ = n.State().GetAccount(carol)
	assert.Equal(t, uint64(10_000), acct.Balance)
	assert.Equal(t, uint64(150_000), n.Registry().TotalStake())
}

func TestJailedValidatorsSitOut(t *testing.T) {
	n, _ := newTestNode(t, nil)
	ctx := context.Background()
	validators := n.ValidatorKeys()
	for _, v := range validators[1:] {
		require.NoError(t, n.Jail(v, "offline"))
	}
	committee := n.SelectCommittee(ctx)
	assert.Equal(t, []common.Address{validators[0]}, committee)

	block, _, err := n.ProduceBlock(ctx, nil)
	require.NoError(t, err)
	_, err = n.CastVote(ctx, block.Hash, validators[1], types.VoteApprove)
	assert.ErrorIs(t, err, zytherrors.ErrNotActiveValidator)

	require.NoError(t, n.Unjail(validators[1]))
	assert.Len(t, n.SelectCommittee(ctx), 2)
}

func TestDifficultyRetarget(t *testing.T) {
	n, clock := newTestNode(t, func(cs *chainspecs.ChainSpec) {
		cs.Params.RetargetInterval = 1
		cs.Params.TargetBlockTime = 600
	})
	assert.Equal(t, uint64(1), n.Difficulty())

	// on-target block time raises difficulty
	clock.now = genesisTime + 600
	produceAndFinalize(t, n)
	assert.Equal(t, uint64(2), n.Difficulty())

	clock.now += 5000
	block := produceAndFinalize(t, n)
	assert.Equal(t, uint64(2), block.Header.Difficulty)
	assert.Equal(t, uint64(1), n.Difficulty())
}
