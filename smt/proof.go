package smt

import (
	"fmt"
	"math/bits"
	"slices"
	"sort"
	"time"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
)

// =====================================================
// Proof: A compact multi-leaf Merkle proof
// =====================================================
//
// The requested keys are sorted and every path is walked at once, depth
// first and left before right. At depth d the keys of a subtree split on
// bit(d). When one side of the split holds no requested key its subtree is
// opaque to the verifier and becomes a slot:
//
//   - bit 0: the sibling subtree is empty, no digest is carried
//   - bit 1: the sibling subtree is real, its digest is carried
//
// Paths share every slot above the depth where they diverge, so a proof
// carries one slot per level of each distinct path segment and a digest
// only for the non-empty ones. The verifier replays the same walk over the
// supplied leaves, consuming the slots in order.
//
// =====================================================

// Leaf is a (key, value) pair claimed to be in the tree, the zero value claims absence
type Leaf struct {
	Key   crypto.Digest `json:"key"`
	Value crypto.Digest `json:"value"`
}

// Proof authenticates a set of leaves against a root
type Proof struct {
	slots    uint64          // the number of slots
	bitmap   []byte          // a bit per slot, most significant bit first: 1 = explicit sibling
	siblings []crypto.Digest // the explicit (non-empty) siblings in slot order
}

// Slots() returns the number of sibling slots
func (p *Proof) Slots() uint64 { return p.slots }

// Siblings() returns a copy of the explicit sibling digests
func (p *Proof) Siblings() []crypto.Digest { return slices.Clone(p.siblings) }

// Size() returns the encoded size in bytes
func (p *Proof) Size() int { return len(p.Bytes()) }

// isExplicit() returns the bit of a slot
func (p *Proof) isExplicit(slot uint64) bool { return p.bitmap[slot/8]&(0x80>>(slot%8)) != 0 }

// push() appends a slot for a sibling subtree
func (p *Proof) push(sibling crypto.Digest) {
	if p.slots%8 == 0 {
		p.bitmap = append(p.bitmap, 0)
	}
	if !sibling.IsZero() {
		p.bitmap[p.slots/8] |= 0x80 >> (p.slots % 8)
		p.siblings = append(p.siblings, sibling)
	}
	p.slots++
}

// buildProof() generates a proof of keys against the tree at root
func buildProof(r nodeReader, root crypto.Digest, keys []crypto.Digest, metrics *lib.Metrics) (*Proof, lib.ErrorI) {
	start := time.Now()
	if len(keys) == 0 {
		return nil, ErrKeyNotFoundInScope("no keys requested")
	}
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, crypto.Digest.Compare)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, ErrKeyNotFoundInScope(fmt.Sprintf("duplicate key %s", sorted[i]))
		}
	}
	p := new(Proof)
	if err := p.build(r, root, 0, sorted); err != nil {
		return nil, err
	}
	// sizing re-encodes the proof so it only happens when someone is watching
	if metrics != nil {
		metrics.ObserveProof(p.Size(), time.Since(start))
	}
	return p, nil
}

// build() walks the subtree under digest at depth for a sorted, non-empty set of keys
func (p *Proof) build(r nodeReader, digest crypto.Digest, depth int, keys []crypto.Digest) lib.ErrorI {
	if depth == crypto.KeyBitLength {
		return nil
	}
	var left, right crypto.Digest
	if !digest.IsZero() {
		n, err := r.GetNode(digest)
		if err != nil {
			return err
		}
		if !n.IsBranch() {
			return ErrInvalidMerkleTree(depth, digest, n)
		}
		left, right = n.Left(), n.Right()
	}
	lKeys, rKeys := splitKeys(keys, depth, func(k crypto.Digest) crypto.Digest { return k })
	if len(lKeys) == 0 {
		p.push(left)
	} else if err := p.build(r, left, depth+1, lKeys); err != nil {
		return err
	}
	if len(rKeys) == 0 {
		p.push(right)
	} else if err := p.build(r, right, depth+1, rKeys); err != nil {
		return err
	}
	return nil
}

// Verify() recomputes the root from the proof and the leaves, which must be strictly ascending by key
// a mismatch (including unsorted leaves) is (false, nil), a self-inconsistent proof is ErrMalformedProof
func (p *Proof) Verify(hasher crypto.HasherI, root crypto.Digest, leaves []Leaf) (bool, lib.ErrorI) {
	if len(leaves) == 0 {
		return false, nil
	}
	for i := 1; i < len(leaves); i++ {
		if !leaves[i-1].Key.Less(leaves[i].Key) {
			return false, nil
		}
	}
	if err := p.checkShape(); err != nil {
		return false, err
	}
	v := &verifier{proof: p, hasher: hasher}
	got, err := v.rebuild(0, leaves)
	if err != nil {
		return false, err
	}
	if v.slot != p.slots || v.sibling != len(p.siblings) {
		return false, ErrMalformedProof(fmt.Sprintf("%d of %d slots left over", p.slots-v.slot, p.slots))
	}
	return got == root, nil
}

// VerifyLeaf() verifies a proof of a single leaf
func (p *Proof) VerifyLeaf(hasher crypto.HasherI, root, key, value crypto.Digest) (bool, lib.ErrorI) {
	return p.Verify(hasher, root, []Leaf{{Key: key, Value: value}})
}

// checkShape() validates the bitmap against the slot count and the sibling list
func (p *Proof) checkShape() lib.ErrorI {
	if p.slots > uint64(len(p.bitmap))*8 || uint64(len(p.bitmap)) != (p.slots+7)/8 {
		return ErrMalformedProof(fmt.Sprintf("bitmap of %d bytes for %d slots", len(p.bitmap), p.slots))
	}
	explicit := 0
	for _, b := range p.bitmap {
		explicit += bits.OnesCount8(b)
	}
	if pad := p.slots % 8; pad != 0 && p.bitmap[len(p.bitmap)-1]&(0xFF>>pad) != 0 {
		return ErrMalformedProof("bitmap padding is not zero")
	}
	if explicit != len(p.siblings) {
		return ErrMalformedProof(fmt.Sprintf("bitmap marks %d siblings but %d are carried", explicit, len(p.siblings)))
	}
	for _, s := range p.siblings {
		if s.IsZero() {
			return ErrMalformedProof("explicit sibling is the empty digest")
		}
	}
	return nil
}

// verifier replays the proof walk over the supplied leaves
type verifier struct {
	proof   *Proof
	hasher  crypto.HasherI
	slot    uint64 // next slot to consume
	sibling int    // next explicit sibling to consume
}

// rebuild() returns the digest of the subtree at depth that holds the sorted, non-empty leaves
func (v *verifier) rebuild(depth int, leaves []Leaf) (crypto.Digest, lib.ErrorI) {
	if depth == crypto.KeyBitLength {
		// strictly ascending keys only share a full path when there is exactly one
		return leafDigest(v.hasher, leaves[0].Key, leaves[0].Value), nil
	}
	lLeaves, rLeaves := splitKeys(leaves, depth, func(l Leaf) crypto.Digest { return l.Key })
	var (
		left, right crypto.Digest
		err         lib.ErrorI
	)
	if len(lLeaves) == 0 {
		left, err = v.next()
	} else {
		left, err = v.rebuild(depth+1, lLeaves)
	}
	if err != nil {
		return crypto.ZeroDigest, err
	}
	if len(rLeaves) == 0 {
		right, err = v.next()
	} else {
		right, err = v.rebuild(depth+1, rLeaves)
	}
	if err != nil {
		return crypto.ZeroDigest, err
	}
	return branchDigest(v.hasher, left, right), nil
}

// next() consumes the next slot
func (v *verifier) next() (crypto.Digest, lib.ErrorI) {
	if v.slot >= v.proof.slots {
		return crypto.ZeroDigest, ErrMalformedProof(fmt.Sprintf("slots exhausted after %d", v.proof.slots))
	}
	explicit := v.proof.isExplicit(v.slot)
	v.slot++
	if !explicit {
		return crypto.ZeroDigest, nil
	}
	if v.sibling >= len(v.proof.siblings) {
		return crypto.ZeroDigest, ErrMalformedProof("siblings exhausted")
	}
	d := v.proof.siblings[v.sibling]
	v.sibling++
	return d, nil
}

// splitKeys() partitions items sorted by key into the left (bit 0) and right (bit 1) subtree at depth
func splitKeys[T any](items []T, depth int, key func(T) crypto.Digest) (left, right []T) {
	i := sort.Search(len(items), func(i int) bool { return key(items[i]).Bit(depth) == 1 })
	return items[:i], items[i:]
}
