package types

import (
	"math"

	"github.com/colorfulnotion/zytherion/common"
)

// Staker is a stake registry entry. VotingPower is derived from StakeAmount.
type Staker struct {
	Address     common.Address `json:"address"`
	StakeAmount uint64         `json:"stake_amount"`
	BondedSince uint64         `json:"bonded_since"`
	VotingPower float64        `json:"voting_power"`
	Jailed      bool           `json:"jailed,omitempty"`
	JailReason  string         `json:"jail_reason,omitempty"`
}

// VotingPower is the square root of the stake.
func VotingPower(stake uint64) float64 {
	return math.Sqrt(float64(stake))
}

// Active reports whether the staker may be selected and vote.
func (s *Staker) Active() bool {
	return !s.Jailed
}
