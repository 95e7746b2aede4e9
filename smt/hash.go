package smt

import (
	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
)

// domain tags keep a leaf preimage from ever colliding with a branch preimage
const (
	leafPrefix   byte = 0x00
	branchPrefix byte = 0x01
)

// leafDigest() returns H(0x00 || key || value), an unset value is the empty subtree
func leafDigest(h crypto.HasherI, key, value crypto.Digest) crypto.Digest {
	if value.IsZero() {
		return crypto.ZeroDigest
	}
	return h.Sum([]byte{leafPrefix}, key[:], value[:])
}

// branchDigest() returns H(0x01 || left || right), a branch of two empty children is itself empty
func branchDigest(h crypto.HasherI, left, right crypto.Digest) crypto.Digest {
	if left.IsZero() && right.IsZero() {
		return crypto.ZeroDigest
	}
	return h.Sum([]byte{branchPrefix}, left[:], right[:])
}

// NewHasher() resolves the hasher named by the tree configuration
func NewHasher(config lib.TreeConfig) (crypto.HasherI, lib.ErrorI) {
	h, err := crypto.NewHasher(config.Hasher)
	if err != nil {
		return nil, lib.ErrUnknownHasher(err)
	}
	return h, nil
}
