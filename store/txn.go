package store

import (
	"slices"
	"sync"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
)

/*
	txn is the pending write set of one uncommitted version
	It holds put nodes in memory and the store reads through it before falling back to the database,
	as if the version had already been flushed. Commit() drains it to the database, Discard() drops it.

	CONTRACT:
	- nodes are content addressed so a repeated put of the same digest is a no-op
	- a single writer per version, readers may run concurrently with it
	- stored nodes are shared with readers and must never be mutated
*/
type txn struct {
	mu    sync.RWMutex
	nodes map[crypto.Digest]*lib.Node // [digest] -> node written in this version
}

// newTxn() creates an empty pending set
func newTxn() *txn { return &txn{nodes: make(map[crypto.Digest]*lib.Node)} }

// get() returns a pending node
func (t *txn) get(digest crypto.Digest) (n *lib.Node, found bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, found = t.nodes[digest]
	return
}

// put() saves a node into the pending set
func (t *txn) put(digest crypto.Digest, n *lib.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, found := t.nodes[digest]; !found {
		t.nodes[digest] = n
	}
}

// size() returns the number of pending nodes
func (t *txn) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// entries() encodes the pending set sorted lexicographically by storage key
// engines ingest sorted batches with the least amount of work
func (t *txn) entries() ([]KV, lib.ErrorI) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	digests := make([]crypto.Digest, 0, len(t.nodes))
	for d := range t.nodes {
		digests = append(digests, d)
	}
	slices.SortFunc(digests, crypto.Digest.Compare)
	out := make([]KV, 0, len(digests))
	for _, d := range digests {
		bz, err := lib.EncodeNode(t.nodes[d])
		if err != nil {
			return nil, err
		}
		out = append(out, KV{Key: nodeKey(d), Value: bz})
	}
	return out, nil
}
