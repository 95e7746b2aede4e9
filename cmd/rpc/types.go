package rpc

import (
	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/smt"
)

// versionRequest names a committed version, an omitted version is the latest
type versionRequest struct {
	Version *lib.VersionID `json:"version,omitempty"`
}

// keysRequest names a set of keys at a committed version
type keysRequest struct {
	versionRequest
	Keys []crypto.Digest `json:"keys"`
}

// verifyRequest is a proof to check, either in its json form or hex encoded
type verifyRequest struct {
	Root    crypto.Digest `json:"root"`
	Proof   *smt.Proof    `json:"proof,omitempty"`
	Encoded string        `json:"encoded,omitempty"`
	Leaves  []smt.Leaf    `json:"leaves"`
}

// RootResult is the root digest of a committed version
type RootResult struct {
	Version lib.VersionID `json:"version"`
	Root    crypto.Digest `json:"root"`
}

// GetResult holds the values of the requested keys, an unset key has the zero value
type GetResult struct {
	RootResult
	Leaves []smt.Leaf `json:"leaves"`
}

// ProveResult is a proof of the requested keys together with the leaves it authenticates
type ProveResult struct {
	RootResult
	Leaves  []smt.Leaf `json:"leaves"`
	Proof   *smt.Proof `json:"proof"`
	Encoded string     `json:"encoded"`
	Size    int        `json:"size"`
}

// VerifyResult is the verdict of a verification
type VerifyResult struct {
	Valid bool `json:"valid"`
}
