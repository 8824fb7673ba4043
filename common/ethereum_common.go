package common

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	ethereumCommon "github.com/ethereum/go-ethereum/common"
)

const HashLength = ethereumCommon.HashLength

// Hash is a custom type based on Ethereum's common.Hash.
// Unlike Ethereum, its text form is lowercase hex without a 0x prefix.
type Hash ethereumCommon.Hash

// Bytes returns the byte representation of the hash.
func (h Hash) Bytes() []byte {
	return ethereumCommon.Hash(h).Bytes()
}

// Hex returns the 64-character lowercase hex form of the hash.
func (h Hash) Hex() string {
	return ethereumCommon.Bytes2Hex(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

// Short returns the first and last four hex digits, for logs.
func (h Hash) Short() string {
	s := h.Hex()
	return fmt.Sprintf("%s..%s", s[:4], s[len(s)-4:])
}

// BytesToHash converts a byte slice to a Hash.
func BytesToHash(b []byte) Hash {
	return Hash(ethereumCommon.BytesToHash(b))
}

// HexToHash converts a hexadecimal string to a Hash. Invalid input is
// tolerated the way go-ethereum tolerates it; use ParseHash to validate.
func HexToHash(s string) Hash {
	return Hash(ethereumCommon.HexToHash(s))
}

// ParseHash parses exactly 64 hex characters, with or without a 0x prefix.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*HashLength {
		return Hash{}, fmt.Errorf("hash must be %d hex characters, got %d", 2*HashLength, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return BytesToHash(b), nil
}

// MarshalJSON custom marshaler to convert Hash to hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

// UnmarshalJSON custom unmarshaler to handle hex strings for Hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	parsed, err := ParseHash(hexStr)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
