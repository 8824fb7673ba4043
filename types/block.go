package types

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/colorfulnotion/zytherion/codec"
	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/merkle"
	"github.com/colorfulnotion/zytherion/zytherrors"
)

// DefaultMaxBlockTransactions bounds the transaction count of a valid block.
const DefaultMaxBlockTransactions = 10000

// Block is a header with its transactions. Hash always equals Header.Hash()
// once the block is constructed or mined.
type Block struct {
	Header        BlockHeader   `json:"header"`
	Transactions  []Transaction `json:"transactions"`
	Hash          common.Hash   `json:"hash"`
	ExternalScore *float32      `json:"external_score,omitempty"`
}

// BlockParams describes a block to assemble. A zero Timestamp means now.
type BlockParams struct {
	PreviousHash common.Hash
	Transactions []Transaction
	Difficulty   uint64
	Height       uint64
	Timestamp    uint64
	// Votes collected on the parent block.
	Votes []ValidatorVote
}

// NewBlock assembles an unmined block stamped with the current time.
func NewBlock(previousHash common.Hash, txs []Transaction, difficulty, height uint64) *Block {
	return NewBlockFromParams(BlockParams{
		PreviousHash: previousHash,
		Transactions: txs,
		Difficulty:   difficulty,
		Height:       height,
	})
}

func NewBlockFromParams(p BlockParams) *Block {
	ts := p.Timestamp
	if ts == 0 {
		ts = uint64(time.Now().Unix())
	}
	votes := make([]ValidatorVote, 0, len(p.Votes))
	for _, v := range p.Votes {
		votes = append(votes, v.Copy())
	}
	txs := make([]Transaction, len(p.Transactions))
	for i := range p.Transactions {
		txs[i] = *p.Transactions[i].Copy()
	}
	b := &Block{
		Header: BlockHeader{
			Version:        BlockVersion,
			PreviousHash:   p.PreviousHash,
			MerkleRoot:     CalculateMerkleRoot(txs),
			Timestamp:      ts,
			Difficulty:     p.Difficulty,
			Nonce:          0,
			ValidatorVotes: votes,
			Height:         p.Height,
		},
		Transactions: txs,
	}
	b.Hash = b.CalculateHash()
	return b
}

// TransactionHashes returns the merkle leaves in transaction order.
func TransactionHashes(txs []Transaction) []common.Hash {
	leaves := make([]common.Hash, len(txs))
	for i := range txs {
		leaves[i] = txs[i].Hash()
	}
	return leaves
}

func CalculateMerkleRoot(txs []Transaction) common.Hash {
	return merkle.Root(TransactionHashes(txs))
}

// MerkleTree exposes the full tree for justifications.
func (b *Block) MerkleTree() *merkle.Tree {
	return merkle.NewTree(TransactionHashes(b.Transactions))
}

func (b *Block) CalculateHash() common.Hash {
	return b.Header.Hash()
}

// Validate checks the block against DefaultMaxBlockTransactions.
func (b *Block) Validate() error {
	return b.ValidateWithLimit(DefaultMaxBlockTransactions)
}

// ValidateWithLimit checks the stored hash, the merkle root and the
// transaction count. Failures wrap ErrBlockValidationFailed.
func (b *Block) ValidateWithLimit(maxTransactions int) error {
	if got := b.CalculateHash(); got != b.Hash {
		return fmt.Errorf("%w: %w: stored %s computed %s", zytherrors.ErrBlockValidationFailed, zytherrors.ErrBlockHashMismatch, b.Hash.Short(), got.Short())
	}
	if maxTransactions >= 0 && len(b.Transactions) > maxTransactions {
		return fmt.Errorf("%w: %w: %d > %d", zytherrors.ErrBlockValidationFailed, zytherrors.ErrTooManyTransactions, len(b.Transactions), maxTransactions)
	}
	if root := CalculateMerkleRoot(b.Transactions); root != b.Header.MerkleRoot {
		return fmt.Errorf("%w: %w: header %s computed %s", zytherrors.ErrBlockValidationFailed, zytherrors.ErrMerkleRootMismatch, b.Header.MerkleRoot.Short(), root.Short())
	}
	return nil
}

func (b *Block) IsValid() bool {
	return b.Validate() == nil
}

// SetExternalScore records the external trust score, clamped to [0,1].
// NaN clears it.
func (b *Block) SetExternalScore(score float32) {
	if math.IsNaN(float64(score)) {
		b.ExternalScore = nil
		return
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	b.ExternalScore = &score
}

func (b *Block) Copy() *Block {
	c := &Block{
		Header: b.Header.Copy(),
		Hash:   b.Hash,
	}
	if b.Transactions != nil {
		c.Transactions = make([]Transaction, len(b.Transactions))
		for i := range b.Transactions {
			c.Transactions[i] = *b.Transactions[i].Copy()
		}
	}
	if b.ExternalScore != nil {
		s := *b.ExternalScore
		c.ExternalScore = &s
	}
	return c
}

func (b *Block) EncodeTo(e *codec.Encoder) {
	e.Put(&b.Header)
	e.PutLen(len(b.Transactions))
	for i := range b.Transactions {
		e.Put(&b.Transactions[i])
	}
	e.PutString(b.Hash.Hex())
	e.PutOptionalFloat32(b.ExternalScore)
}

func (b *Block) DecodeFrom(d *codec.Decoder) (err error) {
	if err = b.Header.DecodeFrom(d); err != nil {
		return err
	}
	n, err := d.Len(57)
	if err != nil {
		return err
	}
	b.Transactions = make([]Transaction, n)
	for i := range b.Transactions {
		if err = b.Transactions[i].DecodeFrom(d); err != nil {
			return err
		}
	}
	if b.Hash, err = decodeHexHash(d); err != nil {
		return err
	}
	b.ExternalScore, err = d.OptionalFloat32()
	return err
}

// Bytes returns the full canonical encoding used for storage.
func (b *Block) Bytes() []byte {
	return codec.Encode(b)
}

// BlockFromBytes decodes a block written by Bytes.
func BlockFromBytes(data []byte) (*Block, error) {
	b := new(Block)
	if err := codec.Decode(data, b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return b, nil
}

func (b *Block) String() string {
	jsonByte, _ := json.Marshal(b)
	return string(jsonByte)
}
