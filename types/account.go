package types

import (
	"encoding/json"

	"github.com/colorfulnotion/zytherion/common"
)

// Account is a ledger balance record.
type Account struct {
	Address      common.Address `json:"address"`
	Balance      uint64         `json:"balance"`
	Nonce        uint64         `json:"nonce"`
	StakedAmount uint64         `json:"staked_amount"`
	IsValidator  bool           `json:"is_validator"`
}

// NewAccount returns an empty account, the shape created on first credit.
func NewAccount(addr common.Address) *Account {
	return &Account{Address: addr}
}

func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func (a *Account) String() string {
	jsonByte, _ := json.Marshal(a)
	return string(jsonByte)
}
