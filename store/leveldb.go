package store

import (
	"bytes"

	"github.com/canopy-network/vsmt/lib"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

/*
	This file wraps LevelDB for the KVStoreI interface using the same [key][^version] layout as pebble
*/

var _ KVStoreI = &LevelDBKV{}

// LevelDBKV implements KVStoreI over goleveldb
type LevelDBKV struct {
	db *leveldb.DB
}

// NewLevelDBKV() opens a leveldb at path, or over memory storage
func NewLevelDBKV(config lib.StoreConfig) (*LevelDBKV, lib.ErrorI) {
	o := &opt.Options{}
	if config.BlockCacheSize > 0 {
		o.BlockCacheCapacity = int(config.BlockCacheSize)
	}
	if config.MemTableSize > 0 {
		o.WriteBuffer = int(config.MemTableSize)
	}
	var (
		db  *leveldb.DB
		err error
	)
	if config.InMemory {
		db, err = leveldb.Open(storage.NewMemStorage(), o)
	} else {
		db, err = leveldb.OpenFile(config.DBPath(), o)
	}
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &LevelDBKV{db: db}, nil
}

// GetAt() seeks to [key][^version] within the key's range and returns the first entry
func (l *LevelDBKV) GetAt(key []byte, version uint64) ([]byte, error) {
	itr := l.db.NewIterator(&util.Range{Start: key, Limit: prefixEnd(key)}, nil)
	defer itr.Release()
	if !itr.Seek(makeVersionedKey(key, version)) {
		return nil, itr.Error()
	}
	if userKey, _ := parseVersionedKey(itr.Key()); !bytes.Equal(userKey, key) {
		return nil, nil
	}
	return bytes.Clone(itr.Value()), nil
}

// WriteAt() applies every entry in a single synced batch
func (l *LevelDBKV) WriteAt(version uint64, entries []KV) error {
	batch := new(leveldb.Batch)
	for _, e := range entries {
		batch.Put(makeVersionedKey(e.Key, version), e.Value)
	}
	return l.db.Write(batch, &opt.WriteOptions{Sync: true})
}

// Scan() visits the first (newest) entry of every user key with the prefix
func (l *LevelDBKV) Scan(prefix []byte, cb func(key, value []byte) error) error {
	itr := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer itr.Release()
	var last []byte
	for itr.Next() {
		userKey, _ := parseVersionedKey(itr.Key())
		if last != nil && bytes.Equal(userKey, last) {
			continue
		}
		last = bytes.Clone(userKey)
		if err := cb(last, bytes.Clone(itr.Value())); err != nil {
			return err
		}
	}
	return itr.Error()
}

// Close() gracefully stops the database
func (l *LevelDBKV) Close() error { return l.db.Close() }
