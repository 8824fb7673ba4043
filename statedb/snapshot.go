package statedb

import (
	"encoding/json"
	"fmt"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Snapshot is a point-in-time copy of the ledger keyed by address.
type Snapshot map[common.Address]types.Account

func (s *StateDB) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.accounts))
	for addr, a := range s.accounts {
		snap[addr] = *a
	}
	return snap
}

// Restore replaces the ledger with snap.
func (s *StateDB) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[common.Address]*types.Account, len(snap))
	for addr, a := range snap {
		acct := a
		s.accounts[addr] = &acct
	}
}

// JSON encodes the snapshot with keys in address order.
func (snap Snapshot) JSON() ([]byte, error) {
	return json.Marshal(snap)
}

// DiffSnapshots renders the changes from before to after as an ASCII
// JSON diff. It returns "" when nothing changed.
func DiffSnapshots(before, after Snapshot) (string, error) {
	left, err := before.JSON()
	if err != nil {
		return "", err
	}
	right, err := after.JSON()
	if err != nil {
		return "", err
	}
	delta, err := gojsondiff.New().Compare(left, right)
	if err != nil {
		return "", fmt.Errorf("diff snapshots: %w", err)
	}
	if !delta.Modified() {
		return "", nil
	}
	var leftObj map[string]interface{}
	if err := json.Unmarshal(left, &leftObj); err != nil {
		return "", err
	}
	f := formatter.NewAsciiFormatter(leftObj, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	return f.Format(delta)
}
