package crypto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	DigestSize   = 32             // size in bytes of both keys and node digests
	KeyBitLength = DigestSize * 8 // the depth of the tree, one level per key bit
)

var (
	// ZeroDigest is the reserved 'empty' sentinel
	// it never denotes a stored value or a non-empty subtree
	ZeroDigest = Digest{}

	ErrInvalidDigestLength = errors.New("digest must be 32 bytes")
)

// Digest is a fixed width 256-bit value used both as tree key, leaf value and node digest
type Digest [DigestSize]byte

// NewDigest() copies bz into a digest, bz must be exactly DigestSize bytes
func NewDigest(bz []byte) (d Digest, err error) {
	if len(bz) != DigestSize {
		return d, fmt.Errorf("%w: got %d", ErrInvalidDigestLength, len(bz))
	}
	copy(d[:], bz)
	return
}

// NewDigestFromString() decodes a hex string (with or without a 0x prefix) into a digest
func NewDigestFromString(s string) (d Digest, err error) {
	bz, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return d, err
	}
	return NewDigest(bz)
}

// IsZero() returns true if the digest is the empty sentinel
func (d Digest) IsZero() bool { return d == ZeroDigest }

// Bit() returns the bit at position i where i=0 is the most significant bit of the first byte
func (d Digest) Bit(i int) int {
	if i < 0 || i >= KeyBitLength {
		panic("bit position out of bounds")
	}
	return int(d[i/8]>>(7-uint(i%8))) & 1
}

// FlipBit() returns a copy of the digest with the bit at position i inverted
func (d Digest) FlipBit(i int) Digest {
	d[i/8] ^= 1 << (7 - uint(i%8))
	return d
}

// Compare() orders two digests by their big-endian byte order, which is also the order of their tree paths
func (d Digest) Compare(o Digest) int { return bytes.Compare(d[:], o[:]) }

// Less() returns true if d sorts before o
func (d Digest) Less(o Digest) bool { return d.Compare(o) < 0 }

// Bytes() returns a copy of the digest as a byte slice
func (d Digest) Bytes() []byte { return bytes.Clone(d[:]) }

// String() returns the hex representation of the digest
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// MarshalJSON() encodes the digest as a hex string
func (d Digest) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// UnmarshalJSON() decodes a hex string into the digest
func (d *Digest) UnmarshalJSON(bz []byte) (err error) {
	var s string
	if err = json.Unmarshal(bz, &s); err != nil {
		return
	}
	*d, err = NewDigestFromString(s)
	return
}
