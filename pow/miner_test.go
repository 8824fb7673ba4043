package pow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock() *types.Block {
	txs := []types.Transaction{
		{From: "ZYTH_A", To: "ZYTH_B", Amount: 1000, Fee: 50, Timestamp: 1700000000},
	}
	return types.NewBlockFromParams(types.BlockParams{
		PreviousHash: common.HashData([]byte("genesis")),
		Transactions: txs,
		Difficulty:   0,
		Height:       1,
		Timestamp:    1700000100,
	})
}

func TestMineDifficultyZeroFirstNonce(t *testing.T) {
	for _, policy := range []TargetPolicy{HexPrefix{}, Numeric{}} {
		m := NewMiner(WithPolicy(policy))
		mined, found, err := m.Mine(context.Background(), testBlock(), 0)
		require.NoError(t, err)
		require.True(t, found, policy.Name())
		assert.Zero(t, mined.Header.Nonce)
		assert.NoError(t, mined.Validate())
	}
}

func TestMineFindsQualifyingHash(t *testing.T) {
	m := NewMiner()
	block := testBlock()
	original := block.Hash

	mined, found, err := m.Mine(context.Background(), block, 2)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, strings.HasPrefix(mined.Hash.Hex(), "00"))
	assert.Equal(t, uint64(2), mined.Header.Difficulty)
	assert.NoError(t, mined.Validate())
	assert.NoError(t, m.VerifyWork(mined))

	// the input block is untouched
	assert.Equal(t, original, block.Hash)
	assert.Zero(t, block.Header.Nonce)
	assert.NoError(t, block.Validate())
}

func TestMineExhaustsBoundedNonceSpace(t *testing.T) {
	m := NewMiner(WithMaxNonce(32))
	mined, found, err := m.Mine(context.Background(), testBlock(), 40)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, mined)
}

func TestLegacyPrefixPolicy(t *testing.T) {
	m := NewMiner(WithPolicy(LegacyPrefix{}), WithMaxNonce(1<<16))
	assert.Equal(t, PolicyLegacyPrefix, m.Policy().Name())
	mined, found, err := m.Mine(context.Background(), testBlock(), 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, strings.HasPrefix(mined.Hash.Hex(), "0f"))
	assert.NoError(t, m.VerifyWork(mined))
}

func TestJobCancel(t *testing.T) {
	m := NewMiner()
	block := testBlock()
	job := m.Start(context.Background(), block, 64)
	job.Cancel()

	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("mining did not stop after cancel")
	}
	mined, found, err := job.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, found)
	assert.Nil(t, mined)
	assert.Zero(t, block.Header.Nonce)
	assert.NoError(t, block.Validate())
}

func TestJobCompletes(t *testing.T) {
	m := NewMiner()
	job := m.Start(context.Background(), testBlock(), 1)
	mined, found, err := job.Wait()
	require.NoError(t, err)
	require.True(t, found)
	assert.NoError(t, m.VerifyWork(mined))
}

func TestMineContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, found, err := NewMiner().Mine(ctx, testBlock(), 64)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, found)
}

func TestVerifyWorkRejects(t *testing.T) {
	m := NewMiner()
	block := testBlock()
	block.Header.Difficulty = 64
	block.Hash = block.CalculateHash()
	err := m.VerifyWork(block)
	assert.ErrorIs(t, err, zytherrors.ErrInsufficientWork)
	assert.ErrorIs(t, err, zytherrors.ErrBlockValidationFailed)

	block.Header.Nonce = 99
	assert.ErrorIs(t, m.VerifyWork(block), zytherrors.ErrBlockHashMismatch)
}
