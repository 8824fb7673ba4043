package types

import (
	"encoding/json"

	"github.com/colorfulnotion/zytherion/codec"
	"github.com/colorfulnotion/zytherion/common"
)

const BlockVersion uint32 = 1

// BlockHeader field order is the hash input order; changing it breaks every
// stored block hash.
type BlockHeader struct {
	Version        uint32          `json:"version"`
	PreviousHash   common.Hash     `json:"previous_hash"`
	MerkleRoot     common.Hash     `json:"merkle_root"`
	Timestamp      uint64          `json:"timestamp"`
	Difficulty     uint64          `json:"difficulty"`
	Nonce          uint64          `json:"nonce"`
	ValidatorVotes []ValidatorVote `json:"validator_votes"`
	Height         uint64          `json:"height"`
}

// EncodeTo writes the header. Hashes are written as their hex strings.
func (h *BlockHeader) EncodeTo(e *codec.Encoder) {
	e.PutUint32(h.Version)
	e.PutString(h.PreviousHash.Hex())
	e.PutString(h.MerkleRoot.Hex())
	e.PutUint64(h.Timestamp)
	e.PutUint64(h.Difficulty)
	e.PutUint64(h.Nonce)
	e.PutLen(len(h.ValidatorVotes))
	for i := range h.ValidatorVotes {
		e.Put(&h.ValidatorVotes[i])
	}
	e.PutUint64(h.Height)
}

func (h *BlockHeader) DecodeFrom(d *codec.Decoder) (err error) {
	if h.Version, err = d.Uint32(); err != nil {
		return err
	}
	if h.PreviousHash, err = decodeHexHash(d); err != nil {
		return err
	}
	if h.MerkleRoot, err = decodeHexHash(d); err != nil {
		return err
	}
	if h.Timestamp, err = d.Uint64(); err != nil {
		return err
	}
	if h.Difficulty, err = d.Uint64(); err != nil {
		return err
	}
	if h.Nonce, err = d.Uint64(); err != nil {
		return err
	}
	// a vote is at least two length prefixes and a tag
	n, err := d.Len(20)
	if err != nil {
		return err
	}
	h.ValidatorVotes = make([]ValidatorVote, n)
	for i := range h.ValidatorVotes {
		if err = h.ValidatorVotes[i].DecodeFrom(d); err != nil {
			return err
		}
	}
	h.Height, err = d.Uint64()
	return err
}

func decodeHexHash(d *codec.Decoder) (common.Hash, error) {
	s, err := d.String()
	if err != nil {
		return common.Hash{}, err
	}
	return common.ParseHash(s)
}

// Bytes returns the canonical header encoding.
func (h *BlockHeader) Bytes() []byte {
	return codec.Encode(h)
}

// Hash is the block's content hash.
func (h *BlockHeader) Hash() common.Hash {
	return common.HashData(h.Bytes())
}

func (h *BlockHeader) Copy() BlockHeader {
	c := *h
	if h.ValidatorVotes != nil {
		c.ValidatorVotes = make([]ValidatorVote, len(h.ValidatorVotes))
		for i, v := range h.ValidatorVotes {
			c.ValidatorVotes[i] = v.Copy()
		}
	}
	return c
}

func (h *BlockHeader) String() string {
	jsonByte, _ := json.Marshal(h)
	return string(jsonByte)
}
