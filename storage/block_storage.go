package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/types"
)

var ErrBlockNotFound = errors.New("block not found")

var (
	blockPrefix  = []byte("blk_")
	heightPrefix = []byte("height_")
	headKey      = []byte("head_blk")
)

// BlockStore keeps blocks keyed by hash with a height index and a head pointer.
// Indices:
// - blk_<blockHash> -> encoded block
// - height_<height> -> blockHash
// - head_blk -> blockHash of the highest stored block
type BlockStore struct {
	ps *PersistenceStore
}

func NewBlockStore(ps *PersistenceStore) *BlockStore {
	return &BlockStore{ps: ps}
}

func blockKey(h common.Hash) []byte {
	return append(append([]byte(nil), blockPrefix...), h[:]...)
}

// heightKey is big-endian so the height index iterates in order.
func heightKey(height uint64) []byte {
	k := append([]byte(nil), heightPrefix...)
	return binary.BigEndian.AppendUint64(k, height)
}

// PutBlock stores blk and its height index in one batch. The head moves
// when blk is at least as high as the current head.
func (bs *BlockStore) PutBlock(blk *types.Block) error {
	batch := NewBatch()
	batch.Put(blockKey(blk.Hash), blk.Bytes())
	batch.Put(heightKey(blk.Header.Height), blk.Hash[:])
	head, ok, err := bs.headHash()
	if err != nil {
		return err
	}
	moveHead := !ok
	if ok {
		current, err := bs.GetBlockByHash(head)
		if err != nil {
			return err
		}
		moveHead = blk.Header.Height >= current.Header.Height
	}
	if moveHead {
		batch.Put(headKey, blk.Hash[:])
	}
	if err := bs.ps.Write(batch); err != nil {
		return fmt.Errorf("failed to store block %s: %w", blk.Hash.Short(), err)
	}
	log.Debug(log.StorageMonitoring, "block stored", "height", blk.Header.Height, "hash", blk.Hash.Short(), "head", moveHead)
	return nil
}

func (bs *BlockStore) GetBlockByHash(h common.Hash) (*types.Block, error) {
	data, ok, err := bs.ps.Get(blockKey(h))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, h.Short())
	}
	return types.BlockFromBytes(data)
}

func (bs *BlockStore) HasBlock(h common.Hash) (bool, error) {
	return bs.ps.Has(blockKey(h))
}

func (bs *BlockStore) GetBlockByHeight(height uint64) (*types.Block, error) {
	data, ok, err := bs.ps.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	return bs.GetBlockByHash(common.BytesToHash(data))
}

func (bs *BlockStore) headHash() (common.Hash, bool, error) {
	data, ok, err := bs.ps.Get(headKey)
	if err != nil || !ok {
		return common.Hash{}, ok, err
	}
	return common.BytesToHash(data), true, nil
}

// Head returns the highest stored block, or false for an empty store.
func (bs *BlockStore) Head() (*types.Block, bool, error) {
	h, ok, err := bs.headHash()
	if err != nil || !ok {
		return nil, false, err
	}
	blk, err := bs.GetBlockByHash(h)
	if err != nil {
		return nil, false, err
	}
	return blk, true, nil
}

// Heights lists the indexed heights in ascending order.
func (bs *BlockStore) Heights() ([]uint64, error) {
	var out []uint64
	err := bs.ps.Iterate(heightPrefix, func(key, _ []byte) error {
		out = append(out, binary.BigEndian.Uint64(key[len(heightPrefix):]))
		return nil
	})
	return out, err
}
