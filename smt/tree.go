package smt

import (
	"time"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
)

// =====================================================
// SMT: A versioned sparse Merkle tree of fixed depth
// =====================================================
//
// 1. Every 256 bit key has exactly one leaf position, the path to it is the
//    key read most significant bit first: bit d picks the child of the
//    branch at depth d (0 = left, 1 = right). Leaves live at depth 256.
// 2. The zero digest is the empty subtree. An unset leaf is empty and a
//    branch with two empty children is empty. Empty subtrees are never
//    materialized or stored, every other node is stored under its digest.
// 3. There is no path compression: a branch with one empty child is stored
//    like any other branch, so the root of a set of leaves is independent of
//    the order they were inserted in.
//
// -----------------------------------------------------
// Digests:
// -----------------------------------------------------
// - Leaf:   H(0x00 || key || value)
// - Branch: H(0x01 || left || right)
//
// -----------------------------------------------------
// 1) Traversal: Walk from the root towards the target leaf.
// -----------------------------------------------------
// - Start at the root with depth = 0.
// - LOOP while depth < 256:
//   1. Current is empty: every remaining sibling is empty, exit.
//   2. Read the branch under Current.
//   3. Record the child opposite to bit(depth) as the sibling at depth.
//   4. Current = the child at bit(depth), depth++.
// - Current is now the leaf (or empty).
//
// -----------------------------------------------------
// 2) ReHash: Rebuild the path bottom up.
// -----------------------------------------------------
// - Current = leafDigest(target.key, target.value)
// - For depth = 255 down to 0:
//   1. Order (Current, sibling[depth]) by bit(depth).
//   2. Current = branchDigest(left, right).
//   3. Stage the branch unless Current is empty.
// - Put every staged node into the version, then swap in the new root.
//
// =====================================================

// SMT is the sparse Merkle tree engine bound to one open (current) version
// It is not safe for concurrent use: every version has exactly one writer
type SMT struct {
	// store: the versioned node store the tree reads from and writes to
	store lib.VersionedStoreI
	// hasher: the hash function of the tree, once nodes are written it cannot be changed
	hasher crypto.HasherI
	// version: the current version receiving updates
	version lib.VersionID
	// root: the root digest of the current version
	root crypto.Digest

	metrics *lib.Metrics
	log     lib.LoggerI
}

// New() creates a tree on a fresh version forked from the empty genesis version
func New(store lib.VersionedStoreI, hasher crypto.HasherI, metrics *lib.Metrics, log lib.LoggerI) (*SMT, lib.ErrorI) {
	return Open(store, hasher, lib.GenesisVersion, metrics, log)
}

// Open() creates a tree on a fresh version forked from a committed parent
func Open(store lib.VersionedStoreI, hasher crypto.HasherI, parent lib.VersionID, metrics *lib.Metrics, log lib.LoggerI) (*SMT, lib.ErrorI) {
	if hasher == nil {
		hasher = crypto.DefaultHasher()
	}
	if log == nil {
		log = lib.NewNullLogger()
	}
	if err := store.BindHasher(hasher.Name()); err != nil {
		return nil, err
	}
	s := &SMT{store: store, hasher: hasher, metrics: metrics, log: log}
	if _, err := s.VersionCreate(parent); err != nil {
		return nil, err
	}
	return s, nil
}

// VersionCreate() forks a new version from a committed parent and makes it current
// a previously current version that was never committed is discarded along with its pending writes
func (s *SMT) VersionCreate(parent lib.VersionID) (lib.VersionID, lib.ErrorI) {
	id, err := s.store.VersionCreate(parent)
	if err != nil {
		return 0, err
	}
	info, err := s.store.Version(id)
	if err != nil {
		return 0, err
	}
	if prev, e := s.store.Version(s.version); e == nil && !prev.Committed {
		if e = s.store.Discard(s.version); e != nil {
			s.log.Warnf("Failed to discard replaced version %d with err: %s", s.version, e.Error())
		}
	}
	s.version, s.root = id, info.Root
	s.log.Debugf("Tree moved to version %d (parent %d, root %s)", id, parent, info.Root)
	return id, nil
}

// Version() returns the current version
func (s *SMT) Version() lib.VersionID { return s.version }

// Root() returns the root digest of the current version, the zero digest for an empty tree
func (s *SMT) Root() crypto.Digest { return s.root }

// Hasher() returns the hash function of the tree
func (s *SMT) Hasher() crypto.HasherI { return s.hasher }

// Get() returns the value stored under a key in the current version, the zero digest if unset
func (s *SMT) Get(key crypto.Digest) (crypto.Digest, lib.ErrorI) {
	s.metrics.ObserveGet()
	_, value, err := walk(s.reader(), s.root, key, false)
	return value, err
}

// Update() sets the value of a key in the current version and returns the previous value
// setting the zero digest deletes the key
func (s *SMT) Update(key, value crypto.Digest) (old crypto.Digest, err lib.ErrorI) {
	start := time.Now()
	if err = s.writable(); err != nil {
		return
	}
	siblings, old, err := walk(s.reader(), s.root, key, true)
	if err != nil {
		return
	}
	if old == value {
		return old, nil
	}
	nodes := make([]staged, 0, crypto.KeyBitLength+1)
	current := leafDigest(s.hasher, key, value)
	if !current.IsZero() {
		nodes = append(nodes, staged{current, lib.NewLeaf(key, value)})
	}
	for depth := crypto.KeyBitLength - 1; depth >= 0; depth-- {
		left, right := current, siblings[depth]
		if key.Bit(depth) == 1 {
			left, right = right, left
		}
		if current = branchDigest(s.hasher, left, right); !current.IsZero() {
			nodes = append(nodes, staged{current, lib.NewBranch(left, right)})
		}
	}
	// the root only moves once every node on the new path is in the store
	for _, n := range nodes {
		if err = s.store.PutNode(s.version, n.digest, n.node); err != nil {
			return crypto.ZeroDigest, err
		}
	}
	s.root = current
	s.metrics.ObserveUpdate(len(nodes), time.Since(start))
	return old, nil
}

// Remove() deletes a key from the current version and returns the previous value
func (s *SMT) Remove(key crypto.Digest) (old crypto.Digest, err lib.ErrorI) {
	return s.Update(key, crypto.ZeroDigest)
}

// UpdateAll() applies a batch of leaves in order and returns their previous values
// on failure the leaves before the failing one remain applied
func (s *SMT) UpdateAll(leaves []Leaf) (old []crypto.Digest, err lib.ErrorI) {
	old = make([]crypto.Digest, len(leaves))
	for i, l := range leaves {
		if old[i], err = s.Update(l.Key, l.Value); err != nil {
			return old[:i], err
		}
	}
	return old, nil
}

// MerkleProof() generates a single proof of every key against the current root
func (s *SMT) MerkleProof(keys []crypto.Digest) (*Proof, lib.ErrorI) {
	return buildProof(s.reader(), s.root, keys, s.metrics)
}

// Prove() generates a proof of a single key against the current root
func (s *SMT) Prove(key crypto.Digest) (*Proof, lib.ErrorI) {
	return s.MerkleProof([]crypto.Digest{key})
}

// Commit() publishes the current version with its root, after which it is immutable
func (s *SMT) Commit() (lib.VersionID, crypto.Digest, lib.ErrorI) {
	if err := s.writable(); err != nil {
		return 0, crypto.ZeroDigest, err
	}
	if err := s.store.Commit(s.version, s.root); err != nil {
		return 0, crypto.ZeroDigest, err
	}
	s.log.Infof("Committed version %d with root %s", s.version, s.root)
	return s.version, s.root, nil
}

// Discard() drops every pending write of the current version, which must not be committed
// the tree has no current version afterwards until VersionCreate() is called
func (s *SMT) Discard() lib.ErrorI {
	if err := s.store.Discard(s.version); err != nil {
		return err
	}
	s.log.Debugf("Discarded version %d", s.version)
	return nil
}

// Checkout() returns a read only view of any committed version
func (s *SMT) Checkout(version lib.VersionID) (*View, lib.ErrorI) {
	snapshot, err := s.store.Checkout(version)
	if err != nil {
		return nil, err
	}
	return NewView(snapshot, s.hasher, s.metrics), nil
}

// writable() ensures the current version still accepts writes
func (s *SMT) writable() lib.ErrorI {
	info, err := s.store.Version(s.version)
	if err != nil {
		return err
	}
	if info.Committed {
		return lib.ErrVersionCommitted(s.version)
	}
	return nil
}

// reader() returns the current version as a node reader
func (s *SMT) reader() nodeReader { return versionReader{store: s.store, version: s.version} }

// staged is a node waiting to be put into the store
type staged struct {
	digest crypto.Digest
	node   *lib.Node
}

// nodeReader is anything that resolves a digest into a node of one version
type nodeReader interface {
	GetNode(digest crypto.Digest) (*lib.Node, lib.ErrorI)
}

// versionReader binds the current (possibly open) version to the nodeReader interface
type versionReader struct {
	store   lib.VersionedStoreI
	version lib.VersionID
}

func (r versionReader) GetNode(digest crypto.Digest) (*lib.Node, lib.ErrorI) {
	return r.store.GetNode(r.version, digest)
}

// walk() traverses from root to the leaf position of key and returns the value there
// when collect is set it also returns the sibling digest at every depth
func walk(r nodeReader, root, key crypto.Digest, collect bool) (siblings []crypto.Digest, value crypto.Digest, err lib.ErrorI) {
	if collect {
		siblings = make([]crypto.Digest, crypto.KeyBitLength)
	}
	current := root
	for depth := 0; depth < crypto.KeyBitLength; depth++ {
		if current.IsZero() {
			return siblings, crypto.ZeroDigest, nil
		}
		n, e := r.GetNode(current)
		if e != nil {
			return nil, crypto.ZeroDigest, e
		}
		if !n.IsBranch() {
			return nil, crypto.ZeroDigest, ErrInvalidMerkleTree(depth, current, n)
		}
		bit := key.Bit(depth)
		if collect {
			siblings[depth] = n.Child(1 - bit)
		}
		current = n.Child(bit)
	}
	if current.IsZero() {
		return siblings, crypto.ZeroDigest, nil
	}
	n, e := r.GetNode(current)
	if e != nil {
		return nil, crypto.ZeroDigest, e
	}
	if !n.IsLeaf() || n.Key() != key {
		return nil, crypto.ZeroDigest, ErrInvalidMerkleTree(crypto.KeyBitLength, current, n)
	}
	return siblings, n.Value(), nil
}
