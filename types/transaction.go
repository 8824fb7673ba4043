package types

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/colorfulnotion/zytherion/codec"
	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/zytherrors"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is a value transfer from one account to another. Data is an
// optional payload for the contract layer; nil means absent.
type Transaction struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Amount    uint64         `json:"amount"`
	Fee       uint64         `json:"fee"`
	Nonce     uint64         `json:"nonce"`
	Signature hexutil.Bytes  `json:"signature"`
	Timestamp uint64         `json:"timestamp"`
	Data      hexutil.Bytes  `json:"data,omitempty"`
}

// NewTransaction builds an unsigned transfer stamped with the current time.
func NewTransaction(from, to common.Address, amount, fee, nonce uint64) *Transaction {
	return &Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		Nonce:     nonce,
		Timestamp: uint64(time.Now().Unix()),
	}
}

func (tx *Transaction) EncodeTo(e *codec.Encoder) {
	e.PutString(string(tx.From))
	e.PutString(string(tx.To))
	e.PutUint64(tx.Amount)
	e.PutUint64(tx.Fee)
	e.PutUint64(tx.Nonce)
	e.PutBytes(tx.Signature)
	e.PutUint64(tx.Timestamp)
	e.PutOptionalBytes(tx.Data)
}

func (tx *Transaction) DecodeFrom(d *codec.Decoder) error {
	from, err := d.String()
	if err != nil {
		return err
	}
	to, err := d.String()
	if err != nil {
		return err
	}
	tx.From, tx.To = common.Address(from), common.Address(to)
	if tx.Amount, err = d.Uint64(); err != nil {
		return err
	}
	if tx.Fee, err = d.Uint64(); err != nil {
		return err
	}
	if tx.Nonce, err = d.Uint64(); err != nil {
		return err
	}
	if tx.Signature, err = d.Bytes(); err != nil {
		return err
	}
	if tx.Timestamp, err = d.Uint64(); err != nil {
		return err
	}
	tx.Data, err = d.OptionalBytes()
	return err
}

// Bytes returns the canonical encoding, signature included.
func (tx *Transaction) Bytes() []byte {
	return codec.Encode(tx)
}

// Hash is the merkle leaf of the transaction.
func (tx *Transaction) Hash() common.Hash {
	return common.HashData(tx.Bytes())
}

// SigningBytes is the canonical encoding with the signature cleared.
func (tx *Transaction) SigningBytes() []byte {
	unsigned := *tx
	unsigned.Signature = nil
	return codec.Encode(&unsigned)
}

// Sign fills in the signature. The key must derive the sender address.
func (tx *Transaction) Sign(kp *common.KeyPair) error {
	if kp.Address() != tx.From {
		return fmt.Errorf("%w: key %s signs for %s", zytherrors.ErrValidatorKeyMismatch, kp.Address(), tx.From)
	}
	tx.Signature = kp.Sign(tx.SigningBytes())
	return nil
}

// VerifySignature checks the signature against the sender's public key.
func (tx *Transaction) VerifySignature(publicKey []byte) bool {
	if common.AddressFromPublicKey(publicKey) != tx.From {
		return false
	}
	return common.VerifySignature(publicKey, tx.SigningBytes(), tx.Signature)
}

// TotalCost returns amount+fee, failing on overflow.
func (tx *Transaction) TotalCost() (uint64, error) {
	if tx.Amount > math.MaxUint64-tx.Fee {
		return 0, zytherrors.ErrBalanceOverflow
	}
	return tx.Amount + tx.Fee, nil
}

func (tx *Transaction) Copy() *Transaction {
	c := *tx
	if tx.Signature != nil {
		c.Signature = append(hexutil.Bytes{}, tx.Signature...)
	}
	if tx.Data != nil {
		c.Data = append(hexutil.Bytes{}, tx.Data...)
	}
	return &c
}

func (tx *Transaction) String() string {
	jsonByte, _ := json.Marshal(tx)
	return string(jsonByte)
}
