package store

import (
	"bytes"

	"github.com/canopy-network/vsmt/lib"
	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
)

var _ KVStoreI = &PebbleKV{}

// PebbleKV implements KVStoreI over pebble with the [key][^version] layout
type PebbleKV struct {
	db *pebble.DB
}

// NewPebbleKV() opens a pebble db at path, or on a memory file system
func NewPebbleKV(config lib.StoreConfig, log lib.LoggerI) (*PebbleKV, lib.ErrorI) {
	path, fs := config.DBPath(), vfs.Default
	if config.InMemory {
		path, fs = "", vfs.NewMem()
	}
	opts := &pebble.Options{
		FS:                    fs,
		L0CompactionThreshold: 6,                           // keep L0 small to avoid read amplification
		L0StopWritesThreshold: 12,                          // stop writes when L0 reaches this size
		MaxOpenFiles:          5000,                        // more file handles
		FormatMajorVersion:    pebble.FormatColumnarBlocks, // current format version
		Logger:                log,                         // use project's logger
	}
	if config.MemTableSize > 0 {
		opts.MemTableSize = uint64(config.MemTableSize)
	}
	if config.BlockCacheSize > 0 {
		cache := pebble.NewCache(config.BlockCacheSize)
		defer cache.Unref()
		opts.Cache = cache
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &PebbleKV{db: db}, nil
}

// GetAt() performs SeekGE to [key][^version] within the key's boundary and returns the first entry
func (p *PebbleKV) GetAt(key []byte, version uint64) ([]byte, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: key, UpperBound: prefixEnd(key)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	if !iter.SeekGE(makeVersionedKey(key, version)) {
		return nil, iter.Error()
	}
	// the iterator is bound to [key, prefixEnd(key)) and user keys of a prefix share a width
	if userKey, _ := parseVersionedKey(iter.Key()); !bytes.Equal(userKey, key) {
		return nil, nil
	}
	value, err := iter.ValueAndErr()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(value), nil
}

// WriteAt() applies every entry in a single synced batch
func (p *PebbleKV) WriteAt(version uint64, entries []KV) error {
	batch := p.db.NewBatch()
	defer batch.Close()
	for _, e := range entries {
		if err := batch.Set(makeVersionedKey(e.Key, version), e.Value, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// Scan() visits the first (newest) entry of every user key with the prefix
func (p *PebbleKV) Scan(prefix []byte, cb func(key, value []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	var last []byte
	for valid := iter.First(); valid; valid = iter.Next() {
		userKey, _ := parseVersionedKey(iter.Key())
		if last != nil && bytes.Equal(userKey, last) {
			continue
		}
		last = bytes.Clone(userKey)
		value, vErr := iter.ValueAndErr()
		if vErr != nil {
			return vErr
		}
		if err = cb(last, bytes.Clone(value)); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Close() gracefully stops the database
func (p *PebbleKV) Close() error { return p.db.Close() }
