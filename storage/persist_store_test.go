package storage

import (
	"errors"
	"testing"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistenceStore_BasicOperations(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	defer ps.Close()

	require.NoError(t, ps.Put([]byte("test-key"), []byte("test-value")))
	got, found, err := ps.Get([]byte("test-key"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "test-value", string(got))

	_, found, err = ps.Get([]byte("non-existent"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, ps.Delete([]byte("test-key")))
	_, found, err = ps.Get([]byte("test-key"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPersistenceStore_Prefix(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	defer ps.Close()

	batch := NewBatch()
	batch.Put([]byte("a_2"), []byte("two"))
	batch.Put([]byte("a_1"), []byte("one"))
	batch.Put([]byte("b_1"), []byte("other"))
	batch.Put([]byte("a_3"), []byte("gone"))
	batch.Delete([]byte("a_3"))
	require.Equal(t, 5, batch.Len())
	require.NoError(t, ps.Write(batch))

	var keys, values []string
	require.NoError(t, ps.Iterate([]byte("a_"), func(k, v []byte) error {
		keys = append(keys, string(k))
		values = append(values, string(v))
		return nil
	}))
	assert.Equal(t, []string{"a_1", "a_2"}, keys)
	assert.Equal(t, []string{"one", "two"}, values)

	stop := errors.New("stop")
	n := 0
	err = ps.Iterate(nil, func(_, _ []byte) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)

	has, err := ps.Has([]byte("b_1"))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPersistenceStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ps, err := NewPersistenceStore(dir, WithSync())
	require.NoError(t, err)
	assert.Equal(t, dir, ps.Path())
	require.NoError(t, ps.Put([]byte("k"), []byte("v")))
	require.NoError(t, ps.Close())

	ps, err = NewPersistenceStore(dir)
	require.NoError(t, err)
	defer ps.Close()
	v, found, err := ps.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", string(v))
}

func chain(n int) []*types.Block {
	blocks := make([]*types.Block, 0, n)
	prev := common.Hash{}
	for i := 0; i < n; i++ {
		txs := []types.Transaction{{From: "ZYTH_A", To: "ZYTH_B", Amount: uint64(i + 1), Nonce: uint64(i), Timestamp: 1700000000}}
		b := types.NewBlockFromParams(types.BlockParams{PreviousHash: prev, Transactions: txs, Height: uint64(i), Timestamp: uint64(1700000000 + i)})
		blocks = append(blocks, b)
		prev = b.Hash
	}
	return blocks
}

func TestBlockStore(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	defer ps.Close()
	bs := NewBlockStore(ps)

	_, ok, err := bs.Head()
	require.NoError(t, err)
	assert.False(t, ok)

	blocks := chain(3)
	for _, b := range blocks {
		require.NoError(t, bs.PutBlock(b))
	}

	head, ok, err := bs.Head()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blocks[2].Hash, head.Hash)

	got, err := bs.GetBlockByHeight(1)
	require.NoError(t, err)
	assert.Equal(t, blocks[1].Bytes(), got.Bytes())
	assert.NoError(t, got.Validate())

	got, err = bs.GetBlockByHash(blocks[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Header.Height)

	has, err := bs.HasBlock(blocks[2].Hash)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = bs.GetBlockByHeight(9)
	assert.ErrorIs(t, err, ErrBlockNotFound)
	_, err = bs.GetBlockByHash(common.HashData([]byte("missing")))
	assert.ErrorIs(t, err, ErrBlockNotFound)

	heights, err := bs.Heights()
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, heights)

	// a lower block does not move the head
	require.NoError(t, bs.PutBlock(blocks[0]))
	head, _, err = bs.Head()
	require.NoError(t, err)
	assert.Equal(t, blocks[2].Hash, head.Hash)
}
