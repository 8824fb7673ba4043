package common

import (
	"crypto/sha256"
	"encoding/binary"
)

// ComputeHash is the raw SHA-256 digest of data.
func ComputeHash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func HashData(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashHex is the lowercase hex digest used for addresses and merkle nodes.
func HashHex(data []byte) string {
	return HashData(data).Hex()
}

// Uint64ToBytes and Uint32ToBytes are the little-endian integer encodings
// used in signing payloads.
func Uint64ToBytes(val uint64) []byte {
	return binary.LittleEndian.AppendUint64(make([]byte, 0, 8), val)
}

func Uint32ToBytes(val uint32) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, 4), val)
}
