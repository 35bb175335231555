package merkle

import (
	"github.com/glint-chain/glintd/crypto"
)

var (
	leafPrefix  = []byte{0}
	innerPrefix = []byte{1}
)

// returns Checksum of an empty input
func emptyHash() []byte {
	return crypto.Checksum([]byte{})
}

// returns Checksum(0x00 || leaf)
func leafHash(leaf []byte) []byte {
	return crypto.Checksum(append(leafPrefix, leaf...))
}

// returns Checksum(0x01 || left || right)
func innerHash(left []byte, right []byte) []byte {
	data := make([]byte, len(innerPrefix)+len(left)+len(right))
	n := copy(data, innerPrefix)
	n += copy(data[n:], left)
	copy(data[n:], right)
	return crypto.Checksum(data)
}
