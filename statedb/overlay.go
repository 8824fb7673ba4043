package statedb

import (
	"fmt"
	"math"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
)

// overlay stages account changes over a base map. Nothing reaches the base
// until commit.
type overlay struct {
	base  map[common.Address]*types.Account
	dirty map[common.Address]*types.Account
}

func newOverlay(base map[common.Address]*types.Account) *overlay {
	return &overlay{base: base, dirty: make(map[common.Address]*types.Account)}
}

// get returns a private copy of the staged account.
func (o *overlay) get(addr common.Address) (*types.Account, bool) {
	if a, ok := o.dirty[addr]; ok {
		return a.Copy(), true
	}
	if a, ok := o.base[addr]; ok {
		return a.Copy(), true
	}
	return nil, false
}

func (o *overlay) put(a *types.Account) {
	o.dirty[a.Address] = a
}

func (o *overlay) commit() {
	for addr, a := range o.dirty {
		o.base[addr] = a
	}
	o.dirty = make(map[common.Address]*types.Account)
}

func (o *overlay) credit(addr common.Address, amount uint64) error {
	a, ok := o.get(addr)
	if !ok {
		a = types.NewAccount(addr)
	}
	if a.Balance > math.MaxUint64-amount {
		return fmt.Errorf("%w: credit %d to %s", zytherrors.ErrBalanceOverflow, amount, addr)
	}
	a.Balance += amount
	o.put(a)
	return nil
}

func (o *overlay) debit(addr common.Address, amount uint64) error {
	a, ok := o.get(addr)
	if !ok {
		return fmt.Errorf("%w: %s", zytherrors.ErrAccountNotFound, addr)
	}
	if a.Balance < amount {
		return fmt.Errorf("%w: balance %d, need %d", zytherrors.ErrInsufficientBalance, a.Balance, amount)
	}
	a.Balance -= amount
	o.put(a)
	return nil
}

// applyTransaction checks everything before staging anything, so a failed
// transaction leaves the overlay as it was. The fee is burned.
func (o *overlay) applyTransaction(tx *types.Transaction) error {
	from, ok := o.get(tx.From)
	if !ok {
		return fmt.Errorf("%w: %s", zytherrors.ErrAccountNotFound, tx.From)
	}
	if from.Nonce != tx.Nonce {
		return fmt.Errorf("%w: account %d, transaction %d", zytherrors.ErrInvalidNonce, from.Nonce, tx.Nonce)
	}
	cost, err := tx.TotalCost()
	if err != nil {
		return err
	}
	if from.Balance < cost {
		return fmt.Errorf("%w: balance %d, need %d", zytherrors.ErrInsufficientBalance, from.Balance, cost)
	}
	from.Balance -= cost
	from.Nonce++

	if tx.To == tx.From {
		from.Balance += tx.Amount
		o.put(from)
		return nil
	}
	to, ok := o.get(tx.To)
	if !ok {
		to = types.NewAccount(tx.To)
	}
	if to.Balance > math.MaxUint64-tx.Amount {
		return fmt.Errorf("%w: credit %d to %s", zytherrors.ErrBalanceOverflow, tx.Amount, tx.To)
	}
	to.Balance += tx.Amount
	o.put(from)
	o.put(to)
	return nil
}
