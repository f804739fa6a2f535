// Package cluster groups near-duplicate creatives by the Hamming distance of
// their perceptual hashes.
package cluster

import (
	"encoding/hex"
	"errors"
	"math/bits"
	"strings"
)

// ErrInvalidHash is returned for digests that are not hexadecimal.
var ErrInvalidHash = errors.New("invalid hex digest")

// Hamming returns the number of differing bits between two hex digests.
// The shorter digest is left-padded with zeros to the longer one's length.
func Hamming(a, b string) (int, error) {
	x, err := decodeHex(a)
	if err != nil {
		return 0, err
	}
	y, err := decodeHex(b)
	if err != nil {
		return 0, err
	}
	return distance(x, y), nil
}

// decodeHex parses a digest into bytes, padding an odd-length digest on the left.
func decodeHex(s string) ([]byte, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, ErrInvalidHash
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidHash
	}
	return out, nil
}

// distance compares two byte digests aligned at their least significant end.
func distance(x, y []byte) int {
	if len(x) < len(y) {
		x, y = y, x
	}
	pad := len(x) - len(y)

	d := 0
	for i := 0; i < pad; i++ {
		d += bits.OnesCount8(x[i])
	}
	for i := range y {
		d += bits.OnesCount8(x[pad+i] ^ y[i])
	}
	return d
}
