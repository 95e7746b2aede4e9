package smt

import (
	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
)

// View is a read only tree over a committed version
// committed versions are immutable so a View is safe for concurrent use
type View struct {
	store   lib.ReadOnlyStoreI
	hasher  crypto.HasherI
	metrics *lib.Metrics
}

// NewView() wraps a committed snapshot of the store
func NewView(store lib.ReadOnlyStoreI, hasher crypto.HasherI, metrics *lib.Metrics) *View {
	if hasher == nil {
		hasher = crypto.DefaultHasher()
	}
	return &View{store: store, hasher: hasher, metrics: metrics}
}

// Version() returns the version the view reads
func (v *View) Version() lib.VersionID { return v.store.Info().ID }

// Root() returns the committed root digest
func (v *View) Root() crypto.Digest { return v.store.Info().Root }

// Get() returns the value stored under a key, the zero digest if unset
func (v *View) Get(key crypto.Digest) (crypto.Digest, lib.ErrorI) {
	v.metrics.ObserveGet()
	_, value, err := walk(v.store, v.Root(), key, false)
	return value, err
}

// MerkleProof() generates a single proof of every key against the committed root
func (v *View) MerkleProof(keys []crypto.Digest) (*Proof, lib.ErrorI) {
	return buildProof(v.store, v.Root(), keys, v.metrics)
}

// Prove() generates a proof of a single key against the committed root
func (v *View) Prove(key crypto.Digest) (*Proof, lib.ErrorI) {
	return v.MerkleProof([]crypto.Digest{key})
}
