package statedb

import (
	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/types"
)

const (
	GenesisAddress   common.Address = "ZYTH_GENESIS_00000000000000000000"
	DeveloperAddress common.Address = "ZYTH_DEVELOPER_000000000000000000"
	UserAddress      common.Address = "ZYTH_USER_0000000000000000000000"
)

// DefaultGenesisAccounts are the demo accounts of a fresh development ledger.
func DefaultGenesisAccounts() []types.Account {
	return []types.Account{
		{Address: GenesisAddress, Balance: 1_000_000},
		{Address: DeveloperAddress, Balance: 100_000, StakedAmount: 10_000, IsValidator: true},
		{Address: UserAddress, Balance: 50_000, StakedAmount: 5_000},
	}
}

// CreateGenesisAccounts stores accounts, or the defaults when none are given.
func (s *StateDB) CreateGenesisAccounts(accounts []types.Account) {
	if len(accounts) == 0 {
		accounts = DefaultGenesisAccounts()
	}
	for _, a := range accounts {
		s.UpdateAccount(a)
	}
	log.Info(log.StateMonitoring, "genesis accounts created", "count", len(accounts), "supply", s.GetTotalSupply())
}
