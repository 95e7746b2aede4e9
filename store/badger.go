package store

import (
	"errors"
	"math"

	"github.com/canopy-network/vsmt/lib"
	"github.com/dgraph-io/badger/v4"
)

var _ KVStoreI = &BadgerKV{}

/*
	BadgerKV runs badger in 'managed' mode where the caller owns the timestamps. A version id is used
	directly as the commit timestamp, so a read transaction opened at ts=v sees exactly the records
	written at versions <= v.

	A WriteBatch may be split into several internal transactions when it grows past badger's limits,
	so a single WriteAt() isn't atomic on crash. The versioned store never relies on that: nodes are
	content addressed and the version record is only written after every node landed.
*/

// BadgerKV is a wrapper over a managed badgerDB that conforms to KVStoreI
type BadgerKV struct {
	db *badger.DB
}

// NewBadgerKV() opens a managed badger db at path, or in memory
func NewBadgerKV(config lib.StoreConfig, log lib.LoggerI) (*BadgerKV, lib.ErrorI) {
	path := config.DBPath()
	if config.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(config.InMemory).
		WithNumVersionsToKeep(math.MaxInt).
		WithLogger(badgerLogger{log}).
		WithLoggingLevel(badger.WARNING)
	if config.MemTableSize > 0 {
		opts = opts.WithMemTableSize(config.MemTableSize)
	}
	// badger refuses a value threshold above its max batch size, which is 15% of the memtable
	if maxBatch := opts.MemTableSize * 15 / 100; opts.ValueThreshold > maxBatch {
		opts = opts.WithValueThreshold(maxBatch)
	}
	db, err := badger.OpenManaged(opts)
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &BadgerKV{db: db}, nil
}

// GetAt() retrieves the value from a read-only transaction at ts=version
func (b *BadgerKV) GetAt(key []byte, version uint64) ([]byte, error) {
	txn := b.db.NewTransactionAt(version, false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// WriteAt() writes the entries with commit ts=version
func (b *BadgerKV) WriteAt(version uint64, entries []KV) error {
	wb := b.db.NewWriteBatchAt(version)
	defer wb.Cancel()
	for _, e := range entries {
		if err := wb.Set(e.Key, e.Value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Scan() iterates the newest version of each key with the prefix
func (b *BadgerKV) Scan(prefix []byte, cb func(key, value []byte) error) error {
	txn := b.db.NewTransactionAt(math.MaxUint64, false)
	defer txn.Discard()
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err = cb(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

// Close() gracefully stops the database
func (b *BadgerKV) Close() error { return b.db.Close() }

// badgerLogger adapts LoggerI to badger.Logger, which spells warn 'Warningf'
type badgerLogger struct{ lib.LoggerI }

func (l badgerLogger) Warningf(format string, args ...interface{}) { l.Warnf(format, args...) }
