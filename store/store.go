package store

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/cenkalti/backoff/v4"
)

var _ lib.VersionedStoreI = &Store{}

/*
The store package persists the content addressed nodes of a sparse merkle tree across versions.

A version moves through two states:

1. Open: created by VersionCreate() from a committed parent. Nodes are put into an in-memory
   pending set (txn) and reads of the version consult that set before the database, which makes
   a version readable by its own writer before anything is durable.

2. Committed: Commit() flushes the pending set to the database at the version, then writes the
   version record. The record is the commit point: a crash before it leaves only unreachable
   node records behind, and the version is simply unknown after restart. Committed versions are
   immutable and can be read concurrently through Checkout().

Version 0 (genesis) is always committed and has the empty root. Version ids are allocated in
strictly increasing order, so a read of version v at the database level (every record written at
a version <= v) always includes every ancestor of v.
*/

// Store is the versioned node store over any KVStoreI engine
type Store struct {
	mu       sync.RWMutex                       // guards the version table
	db       KVStoreI                           // the underlying engine
	versions map[lib.VersionID]*lib.VersionInfo // every known version, committed or not
	pending  map[lib.VersionID]*txn             // pending writes of the open versions
	latest   lib.VersionID                      // highest committed version
	next     lib.VersionID                      // next id to allocate
	closed   bool                               // no operation is allowed after Close()
	hasher   string                             // the hash function bound by BindHasher(), empty until then
	config   lib.StoreConfig                    // config
	metrics  *lib.Metrics                       // telemetry
	log      lib.LoggerI                        // logger
}

// New() creates a new instance of a Store backed by the configured engine
func New(config lib.StoreConfig, metrics *lib.Metrics, log lib.LoggerI) (*Store, lib.ErrorI) {
	if log == nil {
		log = lib.NewNullLogger()
	}
	var (
		db  KVStoreI
		err lib.ErrorI
	)
	switch config.Backend {
	case lib.BackendMemory:
		db = NewMemoryKV()
	case lib.BackendBadger:
		db, err = NewBadgerKV(config, log)
	case lib.BackendPebble, "":
		db, err = NewPebbleKV(config, log)
	case lib.BackendLevelDB:
		db, err = NewLevelDBKV(config)
	default:
		return nil, ErrUnknownBackend(config.Backend)
	}
	if err != nil {
		return nil, err
	}
	log.Debugf("Opened %s store (in memory: %t)", config.Backend, config.InMemory)
	return NewStoreWithDB(config, db, metrics, log)
}

// NewStoreInMemory() creates a new instance of a map backed Store
func NewStoreInMemory(log lib.LoggerI) *Store {
	config := lib.DefaultStoreConfig()
	config.Backend, config.InMemory = lib.BackendMemory, true
	s, _ := NewStoreWithDB(config, NewMemoryKV(), nil, log)
	return s
}

// NewStoreWithDB() returns a Store given an engine, loading every committed version record
func NewStoreWithDB(config lib.StoreConfig, db KVStoreI, metrics *lib.Metrics, log lib.LoggerI) (*Store, lib.ErrorI) {
	if log == nil {
		log = lib.NewNullLogger()
	}
	s := &Store{
		db:       db,
		versions: map[lib.VersionID]*lib.VersionInfo{lib.GenesisVersion: {ID: lib.GenesisVersion, Committed: true}},
		pending:  make(map[lib.VersionID]*txn),
		config:   config,
		metrics:  metrics,
		log:      log,
	}
	var decodeErr lib.ErrorI
	if err := db.Scan([]byte{versionPrefix}, func(_, value []byte) error {
		info, e := decodeVersion(value)
		if e != nil {
			decodeErr = e
			return e
		}
		s.versions[info.ID] = info
		if info.ID > s.latest {
			s.latest = info.ID
		}
		return nil
	}); err != nil {
		if decodeErr != nil {
			return nil, decodeErr
		}
		return nil, ErrStoreGet(err)
	}
	s.next = s.latest + 1
	s.log.Infof("Loaded %d committed versions, latest is %d", len(s.versions), s.latest)
	return s, nil
}

// VersionCreate() forks a new open version from a committed parent in O(1)
func (s *Store) VersionCreate(parent lib.VersionID) (lib.VersionID, lib.ErrorI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed()
	}
	p, ok := s.versions[parent]
	if !ok {
		return 0, ErrUnknownVersion(parent)
	}
	if !p.Committed {
		return 0, ErrVersionNotCommitted(parent)
	}
	id := s.next
	s.next++
	s.versions[id] = &lib.VersionInfo{ID: id, Parent: parent, Root: p.Root}
	s.pending[id] = newTxn()
	s.log.Debugf("Created version %d from parent %d", id, parent)
	return id, nil
}

// GetNode() retrieves a node as seen by a version, the sentinel digest is always the empty node
func (s *Store) GetNode(version lib.VersionID, digest crypto.Digest) (*lib.Node, lib.ErrorI) {
	if digest.IsZero() {
		return lib.EmptyNode(), nil
	}
	s.mu.RLock()
	_, known := s.versions[version]
	t, closed := s.pending[version], s.closed
	s.mu.RUnlock()
	switch {
	case closed:
		return nil, ErrStoreClosed()
	case !known:
		return nil, ErrUnknownVersion(version)
	}
	if t != nil {
		if n, found := t.get(digest); found {
			return n, nil
		}
	}
	bz, err := s.db.GetAt(nodeKey(digest), uint64(version))
	if err != nil {
		return nil, ErrStoreGet(err)
	}
	if bz == nil {
		return nil, ErrNodeNotFound(version, digest)
	}
	return lib.DecodeNode(bz)
}

// PutNode() saves a node into the pending set of an open version, repeated puts are no-ops
func (s *Store) PutNode(version lib.VersionID, digest crypto.Digest, node *lib.Node) lib.ErrorI {
	if digest.IsZero() || node.IsEmpty() {
		return lib.ErrInvalidArgument("the empty node is never persisted")
	}
	t, err := s.openTxn(version)
	if err != nil {
		return err
	}
	t.put(digest, node)
	return nil
}

// Commit() flushes the pending set of an open version and publishes it with its root
func (s *Store) Commit(version lib.VersionID, root crypto.Digest) lib.ErrorI {
	start := time.Now()
	t, err := s.openTxn(version)
	if err != nil {
		return err
	}
	entries, err := t.entries()
	if err != nil {
		return err
	}
	s.mu.RLock()
	info := *s.versions[version]
	s.mu.RUnlock()
	info.Root, info.Committed = root, true
	// nodes first, the version record is the commit point
	if err = s.flush(version, entries); err != nil {
		return err
	}
	if err = s.flush(version, []KV{{Key: versionKey(version), Value: encodeVersion(&info)}}); err != nil {
		return err
	}
	s.mu.Lock()
	s.versions[version] = &info
	delete(s.pending, version)
	if version > s.latest {
		s.latest = version
	}
	s.mu.Unlock()
	s.metrics.ObserveCommit(version, time.Since(start))
	s.log.Debugf("Committed version %d with %d nodes and root %s", version, len(entries), root)
	return nil
}

// flush() writes a batch at a version, retrying with exponential backoff
func (s *Store) flush(version lib.VersionID, entries []KV) lib.ErrorI {
	if len(entries) == 0 {
		return nil
	}
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if s.config.CommitRetryMS > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 10 * time.Millisecond
		exp.MaxElapsedTime = time.Duration(s.config.CommitRetryMS) * time.Millisecond
		policy = exp
	}
	err := backoff.RetryNotify(func() error {
		if err := s.db.WriteAt(uint64(version), entries); err != nil {
			if errors.Is(err, errClosed) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, policy, func(err error, wait time.Duration) {
		s.metrics.ObserveCommitRetry()
		s.log.Warnf("Flushing version %d failed, retrying in %s: %s", version, wait, err.Error())
	})
	if err != nil {
		return ErrCommitDB(err)
	}
	return nil
}

// BindHasher() ties the store to the named hash function, nodes built by two functions never mix
// the first bind persists the name, every later bind (across restarts too) must name the same function
func (s *Store) BindHasher(name string) lib.ErrorI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed()
	}
	if s.hasher == "" {
		stored, err := s.db.GetAt(hasherKey, math.MaxUint64)
		if err != nil {
			return ErrStoreGet(err)
		}
		if stored == nil {
			if err := s.flush(s.next, []KV{{Key: hasherKey, Value: []byte(name)}}); err != nil {
				return err
			}
			stored = []byte(name)
			s.log.Infof("Bound store to hasher %s", name)
		}
		s.hasher = string(stored)
	}
	if s.hasher != name {
		return ErrHasherMismatch(s.hasher, name)
	}
	return nil
}

// Discard() drops an open version and its pending set, the id is never reused
func (s *Store) Discard(version lib.VersionID) lib.ErrorI {
	if _, err := s.openTxn(version); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.pending, version)
	delete(s.versions, version)
	s.mu.Unlock()
	s.log.Debugf("Discarded version %d", version)
	return nil
}

// Checkout() returns a read-only snapshot of a committed version
func (s *Store) Checkout(version lib.VersionID) (lib.ReadOnlyStoreI, lib.ErrorI) {
	info, err := s.Version(version)
	if err != nil {
		return nil, err
	}
	if !info.Committed {
		return nil, ErrVersionNotCommitted(version)
	}
	return &Snapshot{store: s, info: *info}, nil
}

// Version() returns a copy of the record of a version
func (s *Store) Version(id lib.VersionID) (*lib.VersionInfo, lib.ErrorI) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed()
	}
	info, ok := s.versions[id]
	if !ok {
		return nil, ErrUnknownVersion(id)
	}
	cp := *info
	return &cp, nil
}

// Versions() returns a copy of every known version ordered by id
func (s *Store) Versions() ([]*lib.VersionInfo, lib.ErrorI) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed()
	}
	out := make([]*lib.VersionInfo, 0, len(s.versions))
	for _, info := range s.versions {
		cp := *info
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Latest() returns the committed version with the highest id
func (s *Store) Latest() (*lib.VersionInfo, lib.ErrorI) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	return s.Version(latest)
}

// PendingSize() returns how many nodes an open version holds in memory
func (s *Store) PendingSize(version lib.VersionID) int {
	s.mu.RLock()
	t := s.pending[version]
	s.mu.RUnlock()
	if t == nil {
		return 0
	}
	return t.size()
}

// Close() gracefully stops the database, open versions are lost
func (s *Store) Close() lib.ErrorI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed, s.pending = true, nil
	if err := s.db.Close(); err != nil {
		return ErrCloseDB(err)
	}
	return nil
}

// openTxn() returns the pending set of a version that still accepts writes
func (s *Store) openTxn(version lib.VersionID) (*txn, lib.ErrorI) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed()
	}
	info, ok := s.versions[version]
	if !ok {
		return nil, ErrUnknownVersion(version)
	}
	t := s.pending[version]
	if info.Committed || t == nil {
		return nil, lib.ErrVersionCommitted(version)
	}
	return t, nil
}

var _ lib.ReadOnlyStoreI = &Snapshot{}

// Snapshot is a committed version frozen in time
type Snapshot struct {
	store *Store
	info  lib.VersionInfo
}

// Info() returns the committed record backing the snapshot
func (s *Snapshot) Info() lib.VersionInfo { return s.info }

// GetNode() retrieves a node of the committed version
func (s *Snapshot) GetNode(digest crypto.Digest) (*lib.Node, lib.ErrorI) {
	return s.store.GetNode(s.info.ID, digest)
}
