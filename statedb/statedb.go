package statedb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/telemetry"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/slices"
)

// StateDB owns the account ledger. Every mutation is serialized by mu and
// reads return copies.
type StateDB struct {
	mu       sync.RWMutex
	accounts map[common.Address]*types.Account
}

func NewStateDB() *StateDB {
	return &StateDB{accounts: make(map[common.Address]*types.Account)}
}

// BlockError reports the transaction that aborted a block.
type BlockError struct {
	Index  int
	TxHash common.Hash
	Err    error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("transaction %d (%s): %v", e.Index, e.TxHash.Short(), e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// GetAccount returns a copy of the account at addr.
func (s *StateDB) GetAccount(addr common.Address) (types.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[addr]
	if !ok {
		return types.Account{}, false
	}
	return *a, true
}

// GetAllAccounts returns copies sorted by address.
func (s *StateDB) GetAllAccounts() []types.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b types.Account) int { return cmp.Compare(a.Address, b.Address) })
	return out
}

// UpdateAccount stores acct as given, replacing any existing record.
func (s *StateDB) UpdateAccount(acct types.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.Address] = acct.Copy()
}

// GetTotalSupply sums every balance, saturating at the u64 maximum.
func (s *StateDB) GetTotalSupply() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, a := range s.accounts {
		if total > math.MaxUint64-a.Balance {
			return math.MaxUint64
		}
		total += a.Balance
	}
	return total
}

// AccountCount is the number of accounts ever credited.
func (s *StateDB) AccountCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// ApplyTransaction applies tx on its own. It either fully succeeds or
// leaves the ledger unchanged.
func (s *StateDB) ApplyTransaction(tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := newOverlay(s.accounts)
	if err := o.applyTransaction(tx); err != nil {
		log.Debug(log.StateMonitoring, "transaction rejected", "from", tx.From, "nonce", tx.Nonce, "err", zytherrors.GetErrorName(err))
		return err
	}
	o.commit()
	return nil
}

// ApplyBlock applies every transaction of block in order against a staged
// overlay. The ledger is published only if all of them succeed; the first
// failure is returned as a *BlockError and nothing is committed.
func (s *StateDB) ApplyBlock(ctx context.Context, block *types.Block) (err error) {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanApplyBlock,
		attribute.String(telemetry.AttrBlockHash, block.Hash.Hex()),
		attribute.Int64(telemetry.AttrBlockHeight, int64(block.Header.Height)),
		attribute.Int(telemetry.AttrTxCount, len(block.Transactions)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	o := newOverlay(s.accounts)
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if err := o.applyTransaction(tx); err != nil {
			log.Warn(log.StateMonitoring, "block rejected", "height", block.Header.Height, "index", i, "err", zytherrors.GetErrorName(err))
			return &BlockError{Index: i, TxHash: tx.Hash(), Err: err}
		}
	}
	o.commit()
	log.Info(log.StateMonitoring, "block applied", "height", block.Header.Height, "hash", block.Hash.Short(), "txs", len(block.Transactions))
	return nil
}

// Credit adds amount to addr, creating the account if needed. Used by the
// contract layer and genesis.
func (s *StateDB) Credit(addr common.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := newOverlay(s.accounts)
	if err := o.credit(addr, amount); err != nil {
		return err
	}
	o.commit()
	return nil
}

// Debit removes amount from addr without touching its nonce.
func (s *StateDB) Debit(addr common.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := newOverlay(s.accounts)
	if err := o.debit(addr, amount); err != nil {
		return err
	}
	o.commit()
	return nil
}

// BondStake moves amount from balance into staked amount and marks the
// account as a validator.
func (s *StateDB) BondStake(addr common.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := newOverlay(s.accounts)
	if err := o.debit(addr, amount); err != nil {
		return err
	}
	a, _ := o.get(addr)
	if a.StakedAmount > math.MaxUint64-amount {
		return zytherrors.ErrBalanceOverflow
	}
	a.StakedAmount += amount
	a.IsValidator = true
	o.put(a)
	o.commit()
	log.Debug(log.StateMonitoring, "stake bonded", "address", addr, "amount", amount)
	return nil
}

// ReleaseStake moves amount from staked amount back to balance. The
// validator flag clears when nothing stays staked.
func (s *StateDB) ReleaseStake(addr common.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := newOverlay(s.accounts)
	a, ok := o.get(addr)
	if !ok {
		return fmt.Errorf("%w: %s", zytherrors.ErrAccountNotFound, addr)
	}
	if a.StakedAmount < amount {
		return fmt.Errorf("%w: staked %d, release %d", zytherrors.ErrInsufficientBalance, a.StakedAmount, amount)
	}
	if a.Balance > math.MaxUint64-amount {
		return zytherrors.ErrBalanceOverflow
	}
	a.StakedAmount -= amount
	a.Balance += amount
	if a.StakedAmount == 0 {
		a.IsValidator = false
	}
	o.put(a)
	o.commit()
	log.Debug(log.StateMonitoring, "stake released", "address", addr, "amount", amount)
	return nil
}

// IsBlockError reports whether err came from a rejected block and returns it.
func IsBlockError(err error) (*BlockError, bool) {
	var be *BlockError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
