package types

import (
	"fmt"

	"github.com/colorfulnotion/zytherion/codec"
	"github.com/colorfulnotion/zytherion/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// VoteKind is a validator's opinion on a block.
type VoteKind uint32

const (
	VoteApprove VoteKind = iota
	VoteReject
	VoteAbstain
)

func (k VoteKind) String() string {
	switch k {
	case VoteApprove:
		return "Approve"
	case VoteReject:
		return "Reject"
	case VoteAbstain:
		return "Abstain"
	}
	return fmt.Sprintf("VoteKind(%d)", uint32(k))
}

func (k VoteKind) Valid() bool {
	return k <= VoteAbstain
}

func ParseVoteKind(s string) (VoteKind, error) {
	switch s {
	case "Approve", "approve":
		return VoteApprove, nil
	case "Reject", "reject":
		return VoteReject, nil
	case "Abstain", "abstain":
		return VoteAbstain, nil
	}
	return 0, fmt.Errorf("unknown vote kind %q", s)
}

func (k VoteKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid vote kind %d", uint32(k))
	}
	return []byte(k.String()), nil
}

func (k *VoteKind) UnmarshalText(text []byte) error {
	v, err := ParseVoteKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ValidatorVote is a validator's signed opinion on a block hash.
type ValidatorVote struct {
	Validator common.Address `json:"validator"`
	Signature hexutil.Bytes  `json:"signature"`
	Vote      VoteKind       `json:"vote"`
}

// VoteSigningBytes is the message a validator signs: the block hash in hex
// followed by the vote kind name.
func VoteSigningBytes(blockHash common.Hash, kind VoteKind) []byte {
	return []byte(blockHash.Hex() + kind.String())
}

func (v *ValidatorVote) EncodeTo(e *codec.Encoder) {
	e.PutString(string(v.Validator))
	e.PutBytes(v.Signature)
	e.PutUint32(uint32(v.Vote))
}

func (v *ValidatorVote) DecodeFrom(d *codec.Decoder) error {
	validator, err := d.String()
	if err != nil {
		return err
	}
	v.Validator = common.Address(validator)
	if v.Signature, err = d.Bytes(); err != nil {
		return err
	}
	kind, err := d.Uint32()
	if err != nil {
		return err
	}
	v.Vote = VoteKind(kind)
	if !v.Vote.Valid() {
		return codec.ErrInvalidTag
	}
	return nil
}

// Verify checks the vote signature for blockHash under publicKey.
func (v *ValidatorVote) Verify(blockHash common.Hash, publicKey []byte) bool {
	return common.VerifySignature(publicKey, VoteSigningBytes(blockHash, v.Vote), v.Signature)
}

func (v ValidatorVote) Copy() ValidatorVote {
	c := v
	c.Signature = append(hexutil.Bytes(nil), v.Signature...)
	return c
}
