package smt

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/store"
	"github.com/stretchr/testify/require"
)

func TestEmptyTree(t *testing.T) {
	tree, _ := newTestTree(t)
	require.True(t, tree.Root().IsZero())
	key := filled(0x42)
	got, err := tree.Get(key)
	require.NoError(t, err)
	require.True(t, got.IsZero())
	// removing an absent key from an empty tree is a no-op
	old, err := tree.Remove(key)
	require.NoError(t, err)
	require.True(t, old.IsZero())
	require.True(t, tree.Root().IsZero())
}

func TestSingleLeafRoot(t *testing.T) {
	tree, _ := newTestTree(t)
	h := tree.Hasher()
	key, value := filled(0x0F), filled(0x01)
	_, err := tree.Update(key, value)
	require.NoError(t, err)
	// fold the leaf up through 256 branches whose siblings are all empty
	expected := h.Sum([]byte{leafPrefix}, key[:], value[:])
	for depth := crypto.KeyBitLength - 1; depth >= 0; depth-- {
		var empty crypto.Digest
		if key.Bit(depth) == 0 {
			expected = h.Sum([]byte{branchPrefix}, expected[:], empty[:])
		} else {
			expected = h.Sum([]byte{branchPrefix}, empty[:], expected[:])
		}
	}
	require.Equal(t, expected, tree.Root())
}

func TestRoundTrip(t *testing.T) {
	tree, _ := newTestTree(t)
	leaves := testLeaves(32)
	for _, l := range leaves {
		old, err := tree.Update(l.Key, l.Value)
		require.NoError(t, err)
		require.True(t, old.IsZero())
	}
	for _, l := range leaves {
		got, err := tree.Get(l.Key)
		require.NoError(t, err)
		require.Equal(t, l.Value, got)
	}
	// overwrite returns the previous value
	old, err := tree.Update(leaves[0].Key, filled(0x77))
	require.NoError(t, err)
	require.Equal(t, leaves[0].Value, old)
	// delete every key, the tree collapses back to empty
	for i, l := range leaves {
		old, err = tree.Remove(l.Key)
		require.NoError(t, err)
		if i == 0 {
			require.Equal(t, filled(0x77), old)
		} else {
			require.Equal(t, l.Value, old)
		}
		got, e := tree.Get(l.Key)
		require.NoError(t, e)
		require.True(t, got.IsZero())
	}
	require.True(t, tree.Root().IsZero())
}

func TestDeterminism(t *testing.T) {
	leaves := testLeaves(64)
	// the first tree also writes and then deletes keys that the second tree never sees
	first, _ := newTestTree(t)
	extra := testLeaves(80)[64:]
	_, err := first.UpdateAll(extra)
	require.NoError(t, err)
	_, err = first.UpdateAll(leaves)
	require.NoError(t, err)
	for _, l := range extra {
		_, err = first.Remove(l.Key)
		require.NoError(t, err)
	}
	shuffled := append([]Leaf(nil), leaves...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	second, _ := newTestTree(t)
	_, err = second.UpdateAll(shuffled)
	require.NoError(t, err)
	require.False(t, first.Root().IsZero())
	require.Equal(t, first.Root(), second.Root())
	// a different hasher yields a different root over the same mapping
	s := store.NewStoreInMemory(lib.NewNullLogger())
	defer s.Close()
	h, hErr := crypto.NewHasher(crypto.SHA256Name)
	require.NoError(t, hErr)
	third, e := New(s, h, nil, nil)
	require.NoError(t, e)
	_, e = third.UpdateAll(leaves)
	require.NoError(t, e)
	require.NotEqual(t, first.Root(), third.Root())
}

func TestOpenHasherMismatch(t *testing.T) {
	tree, s := newTestTree(t)
	_, err := tree.UpdateAll(testLeaves(4))
	require.NoError(t, err)
	committed, _, err := tree.Commit()
	require.NoError(t, err)
	sha, e := crypto.NewHasher(crypto.SHA256Name)
	require.NoError(t, e)
	_, err = Open(s, sha, committed, nil, nil)
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeHasherMismatch))
	// the same hasher opens fine
	again, err := Open(s, crypto.DefaultHasher(), committed, nil, nil)
	require.NoError(t, err)
	require.Equal(t, tree.Root(), again.Root())
}

func TestScenario(t *testing.T) {
	tree, _ := newTestTree(t)
	k1, v1 := crypto.Digest{31: 0x01}, filled(0xAA)
	k2, v2 := crypto.Digest{31: 0x02}, filled(0xBB)
	k3 := crypto.Digest{31: 0x03}
	_, err := tree.Update(k1, v1)
	require.NoError(t, err)
	_, err = tree.Update(k2, v2)
	require.NoError(t, err)
	got, err := tree.Get(k1)
	require.NoError(t, err)
	require.Equal(t, v1, got)
	got, err = tree.Get(k2)
	require.NoError(t, err)
	require.Equal(t, v2, got)
	got, err = tree.Get(k3)
	require.NoError(t, err)
	require.True(t, got.IsZero())
	proof, err := tree.MerkleProof([]crypto.Digest{k2, k1})
	require.NoError(t, err)
	valid, err := proof.Verify(tree.Hasher(), tree.Root(), []Leaf{{k1, v1}, {k2, v2}})
	require.NoError(t, err)
	require.True(t, valid)
	valid, err = proof.Verify(tree.Hasher(), tree.Root(), []Leaf{{k1, v1.FlipBit(0)}, {k2, v2}})
	require.NoError(t, err)
	require.False(t, valid)
}

func TestUpdateAll(t *testing.T) {
	tree, _ := newTestTree(t)
	leaves := testLeaves(4)
	old, err := tree.UpdateAll(leaves)
	require.NoError(t, err)
	require.Len(t, old, 4)
	leaves[1].Value = filled(0x01)
	old, err = tree.UpdateAll(leaves[1:2])
	require.NoError(t, err)
	require.Equal(t, []crypto.Digest{testLeaves(4)[1].Value}, old)
}

func TestVersionIsolation(t *testing.T) {
	tree, s := newTestTree(t)
	leaves := testLeaves(16)
	_, err := tree.UpdateAll(leaves[:8])
	require.NoError(t, err)
	a, rootA, err := tree.Commit()
	require.NoError(t, err)
	require.Equal(t, tree.Root(), rootA)
	// fork B from A and diverge
	b, err := tree.VersionCreate(a)
	require.NoError(t, err)
	require.Equal(t, tree.Version(), b)
	require.Equal(t, rootA, tree.Root())
	_, err = tree.UpdateAll(leaves[8:])
	require.NoError(t, err)
	_, err = tree.Remove(leaves[0].Key)
	require.NoError(t, err)
	require.NotEqual(t, rootA, tree.Root())
	// B is still open so it cannot be checked out
	_, err = tree.Checkout(b)
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeVersionNotCommitted))
	viewA, err := tree.Checkout(a)
	require.NoError(t, err)
	require.Equal(t, rootA, viewA.Root())
	require.Equal(t, a, viewA.Version())
	for i, l := range leaves {
		got, e := viewA.Get(l.Key)
		require.NoError(t, e)
		if i < 8 {
			require.Equal(t, l.Value, got)
		} else {
			require.True(t, got.IsZero())
		}
	}
	_, rootB, err := tree.Commit()
	require.NoError(t, err)
	// a sibling of B forked from A never sees B's writes
	c, err := Open(s, tree.Hasher(), a, nil, nil)
	require.NoError(t, err)
	require.Equal(t, rootA, c.Root())
	got, err := c.Get(leaves[10].Key)
	require.NoError(t, err)
	require.True(t, got.IsZero())
	viewB, err := tree.Checkout(b)
	require.NoError(t, err)
	require.Equal(t, rootB, viewB.Root())
	got, err = viewB.Get(leaves[0].Key)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestCommitIsFinal(t *testing.T) {
	tree, _ := newTestTree(t)
	_, err := tree.Update(filled(1), filled(2))
	require.NoError(t, err)
	_, _, err = tree.Commit()
	require.NoError(t, err)
	_, err = tree.Update(filled(1), filled(3))
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeVersionCommitted))
	_, err = tree.Remove(filled(9))
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeVersionCommitted))
	_, _, err = tree.Commit()
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeVersionCommitted))
	require.True(t, lib.HasCode(tree.Discard(), lib.StorageModule, lib.CodeVersionCommitted))
	// reads of a committed version keep working
	got, err := tree.Get(filled(1))
	require.NoError(t, err)
	require.Equal(t, filled(2), got)
}

func TestDiscard(t *testing.T) {
	tree, s := newTestTree(t)
	discarded := tree.Version()
	_, err := tree.Update(filled(1), filled(2))
	require.NoError(t, err)
	require.NoError(t, tree.Discard())
	_, err = tree.Update(filled(1), filled(3))
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeUnknownVersion))
	// a fresh fork from genesis is empty and never reuses the discarded id
	next, err := tree.VersionCreate(lib.GenesisVersion)
	require.NoError(t, err)
	require.Greater(t, next, discarded)
	require.True(t, tree.Root().IsZero())
	require.Zero(t, s.PendingSize(next))
}

func TestVersionCreateReplacesOpenVersion(t *testing.T) {
	tree, s := newTestTree(t)
	replaced := tree.Version()
	_, err := tree.UpdateAll(testLeaves(8))
	require.NoError(t, err)
	require.NotZero(t, s.PendingSize(replaced))
	// an invalid parent leaves the open version untouched
	_, err = tree.VersionCreate(replaced)
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeVersionNotCommitted))
	require.Equal(t, replaced, tree.Version())
	require.NotZero(t, s.PendingSize(replaced))
	// forking again drops the uncommitted version and its pending writes
	next, err := tree.VersionCreate(lib.GenesisVersion)
	require.NoError(t, err)
	require.NotEqual(t, replaced, next)
	require.Zero(t, s.PendingSize(replaced))
	_, err = s.Version(replaced)
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeUnknownVersion))
	// a committed version is never dropped
	committed, _, err := tree.Commit()
	require.NoError(t, err)
	_, err = tree.VersionCreate(committed)
	require.NoError(t, err)
	info, err := s.Version(committed)
	require.NoError(t, err)
	require.True(t, info.Committed)
}

func TestConcurrentViews(t *testing.T) {
	tree, _ := newTestTree(t)
	leaves := testLeaves(64)
	_, err := tree.UpdateAll(leaves)
	require.NoError(t, err)
	committed, root, err := tree.Commit()
	require.NoError(t, err)
	view, err := tree.Checkout(committed)
	require.NoError(t, err)
	_, err = tree.VersionCreate(committed)
	require.NoError(t, err)
	var (
		wg       sync.WaitGroup
		failures atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, l := range leaves {
				got, e := view.Get(l.Key)
				if e != nil || got != l.Value {
					failures.Add(1)
				}
			}
			proof, e := view.MerkleProof([]crypto.Digest{leaves[i].Key, leaves[i+8].Key})
			if e != nil {
				failures.Add(1)
				return
			}
			valid, e := proof.Verify(view.hasher, root, sortedLeaves(leaves[i], leaves[i+8]))
			if e != nil || !valid {
				failures.Add(1)
			}
		}()
	}
	// the writer keeps mutating the next version meanwhile
	for _, l := range testLeaves(96)[64:] {
		_, err = tree.Update(l.Key, l.Value)
		require.NoError(t, err)
	}
	wg.Wait()
	require.Zero(t, failures.Load())
	require.Equal(t, root, view.Root())
}

func TestStoreUnavailable(t *testing.T) {
	s := &failingStore{VersionedStoreI: store.NewStoreInMemory(lib.NewNullLogger())}
	defer s.Close()
	tree, err := New(s, nil, nil, nil)
	require.NoError(t, err)
	leaves := testLeaves(4)
	_, err = tree.UpdateAll(leaves[:2])
	require.NoError(t, err)
	before := tree.Root()
	// the put of a branch half way up the path fails
	s.failAfter.Store(100)
	_, err = tree.Update(leaves[2].Key, leaves[2].Value)
	require.True(t, lib.IsStoreUnavailable(err))
	require.Equal(t, before, tree.Root())
	for _, l := range leaves[:2] {
		got, e := tree.Get(l.Key)
		require.NoError(t, e)
		require.Equal(t, l.Value, got)
	}
	// the engine never retries, the caller does
	s.failAfter.Store(-1)
	_, err = tree.Update(leaves[2].Key, leaves[2].Value)
	require.NoError(t, err)
	got, err := tree.Get(leaves[2].Key)
	require.NoError(t, err)
	require.Equal(t, leaves[2].Value, got)
}

func TestInvalidMerkleTree(t *testing.T) {
	key := filled(0x01)
	leaf := lib.NewLeaf(key, filled(0x02))
	root := filled(0xEE)
	// a leaf found where a branch is expected
	_, _, err := walk(mapReader{root: leaf}, root, key, false)
	require.True(t, lib.HasCode(err, lib.SMTModule, lib.CodeInvalidMerkleTree))
	_, err = buildProof(mapReader{root: leaf}, root, []crypto.Digest{key}, nil)
	require.True(t, lib.HasCode(err, lib.SMTModule, lib.CodeInvalidMerkleTree))
	// a missing node surfaces the store error
	_, _, err = walk(mapReader{}, root, key, false)
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeNodeNotFound))
}

func TestBackends(t *testing.T) {
	var roots []crypto.Digest
	for _, backend := range []string{lib.BackendMemory, lib.BackendBadger, lib.BackendPebble, lib.BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			config := lib.DefaultStoreConfig()
			config.Backend, config.InMemory, config.DataDirPath = backend, true, t.TempDir()
			config.MemTableSize, config.BlockCacheSize = 0, 0
			s, err := store.New(config, nil, lib.NewNullLogger())
			require.NoError(t, err)
			defer s.Close()
			tree, err := New(s, nil, nil, nil)
			require.NoError(t, err)
			leaves := testLeaves(24)
			_, err = tree.UpdateAll(leaves)
			require.NoError(t, err)
			version, root, err := tree.Commit()
			require.NoError(t, err)
			view, err := tree.Checkout(version)
			require.NoError(t, err)
			for _, l := range leaves {
				got, e := view.Get(l.Key)
				require.NoError(t, e)
				require.Equal(t, l.Value, got)
			}
			proof, err := view.MerkleProof([]crypto.Digest{leaves[3].Key, leaves[5].Key})
			require.NoError(t, err)
			valid, err := proof.Verify(view.hasher, root, sortedLeaves(leaves[3], leaves[5]))
			require.NoError(t, err)
			require.True(t, valid)
			roots = append(roots, root)
		})
	}
	for _, r := range roots {
		require.Equal(t, roots[0], r)
	}
}

// newTestTree() returns a tree on a fresh version of an in-memory store
func newTestTree(t *testing.T) (*SMT, *store.Store) {
	s := store.NewStoreInMemory(lib.NewNullLogger())
	t.Cleanup(func() { s.Close() })
	tree, err := New(s, crypto.DefaultHasher(), nil, lib.NewNullLogger())
	require.NoError(t, err)
	return tree, s
}

// testLeaves() returns n deterministic leaves with pseudo random keys
func testLeaves(n int) []Leaf {
	h := crypto.DefaultHasher()
	out := make([]Leaf, n)
	for i := range out {
		out[i] = Leaf{Key: h.Sum([]byte("key"), []byte{byte(i >> 8), byte(i)}), Value: h.Sum([]byte("value"), []byte{byte(i >> 8), byte(i)})}
	}
	return out
}

// sortedLeaves() orders leaves by key
func sortedLeaves(leaves ...Leaf) []Leaf {
	out := append([]Leaf(nil), leaves...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Key.Less(out[j-1].Key); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// filled() returns a digest with every byte set to b
func filled(b byte) (d crypto.Digest) {
	for i := range d {
		d[i] = b
	}
	return
}

// failingStore fails PutNode once a countdown reaches zero, a negative countdown never fails
type failingStore struct {
	lib.VersionedStoreI
	failAfter atomic.Int64
}

func (f *failingStore) PutNode(version lib.VersionID, digest crypto.Digest, n *lib.Node) lib.ErrorI {
	if f.failAfter.Load() > 0 && f.failAfter.Add(-1) == 0 {
		f.failAfter.Store(1)
		return store.ErrStoreSet(errors.New("disk unavailable"))
	}
	return f.VersionedStoreI.PutNode(version, digest, n)
}

// mapReader serves nodes from a map
type mapReader map[crypto.Digest]*lib.Node

func (m mapReader) GetNode(digest crypto.Digest) (*lib.Node, lib.ErrorI) {
	if n, ok := m[digest]; ok {
		return n, nil
	}
	return nil, store.ErrNodeNotFound(0, digest)
}
