package pow

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/holiman/uint256"
)

// TargetPolicy decides whether a block hash meets a difficulty.
type TargetPolicy interface {
	Name() string
	Met(hash common.Hash, difficulty uint64) bool
}

const (
	PolicyHexPrefix    = "hex-prefix"
	PolicyLegacyPrefix = "legacy-prefix"
	PolicyNumeric      = "numeric"
)

// HexPrefix requires the hex hash to start with difficulty '0' digits.
type HexPrefix struct{}

func (HexPrefix) Name() string { return PolicyHexPrefix }

func (HexPrefix) Met(hash common.Hash, difficulty uint64) bool {
	if difficulty > common.HashLength*2 {
		return false
	}
	return strings.HasPrefix(hash.Hex(), strings.Repeat("0", int(difficulty)))
}

// LegacyPrefix requires difficulty '0' digits followed by an 'f'.
type LegacyPrefix struct{}

func (LegacyPrefix) Name() string { return PolicyLegacyPrefix }

func (LegacyPrefix) Met(hash common.Hash, difficulty uint64) bool {
	if difficulty >= common.HashLength*2 {
		return false
	}
	return strings.HasPrefix(hash.Hex(), strings.Repeat("0", int(difficulty))+"f")
}

// Numeric reads difficulty as leading zero bits: hash < 2^(256-difficulty).
type Numeric struct{}

func (Numeric) Name() string { return PolicyNumeric }

func (Numeric) Met(hash common.Hash, difficulty uint64) bool {
	if difficulty == 0 {
		return true
	}
	if difficulty > 256 {
		return false
	}
	value := new(uint256.Int).SetBytes32(hash[:])
	if difficulty == 256 {
		return value.IsZero()
	}
	target := new(uint256.Int).Lsh(uint256.NewInt(1), uint(256-difficulty))
	return value.Lt(target)
}

// ParsePolicy maps a policy name to its implementation. Empty selects HexPrefix.
func ParsePolicy(name string) (TargetPolicy, error) {
	switch name {
	case "", PolicyHexPrefix:
		return HexPrefix{}, nil
	case PolicyLegacyPrefix:
		return LegacyPrefix{}, nil
	case PolicyNumeric:
		return Numeric{}, nil
	}
	return nil, fmt.Errorf("unknown target policy %q", name)
}
