package store

import (
	"encoding/binary"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/codec"
	"github.com/canopy-network/vsmt/lib/crypto"
)

/*
	Every backend persists two kinds of records, each written 'at' the version that committed it:

	  nodes:    ['n'][32 byte digest]         -> encoded lib.Node
	  versions: ['v'][8 byte big endian id]   -> encoded version record
	  meta:     ['m'][name]                   -> raw value, e.g. the hasher the nodes were built with

	Engines without native timestamps (pebble, leveldb) append the inverted version to the user key:

	  [user key][^version]

	so the newest write of a key sorts first and a single SeekGE to [key][^v] lands on the newest
	record written at or before v. User keys of the same prefix share a width, which keeps the
	versions of one key contiguous.
*/

const (
	VersionSize = 8 // width of the version suffix

	nodePrefix    = byte('n')
	versionPrefix = byte('v')
	metaPrefix    = byte('m')
)

// hasherKey is the meta record binding the store to a single hash function
var hasherKey = append([]byte{metaPrefix}, "hasher"...)

var cdc = codec.Protowire{}

// KVStoreI is the minimal contract a persistence engine fulfills to back the versioned store
// records are immutable once written and a read 'at' v sees the newest record written at version <= v
type KVStoreI interface {
	// GetAt() returns the newest value of the key written at or before the version, nil if none
	GetAt(key []byte, version uint64) ([]byte, error)
	// WriteAt() atomically writes every entry at the version
	WriteAt(version uint64, entries []KV) error
	// Scan() visits the newest value of every key with the prefix in key order
	Scan(prefix []byte, cb func(key, value []byte) error) error
	// Close() releases the engine
	Close() error
}

// KV is a single key value pair
type KV struct {
	Key   []byte
	Value []byte
}

// nodeKey() returns the storage key of a node
func nodeKey(digest crypto.Digest) []byte {
	k := make([]byte, 1+crypto.DigestSize)
	k[0] = nodePrefix
	copy(k[1:], digest[:])
	return k
}

// versionKey() returns the storage key of a version record
func versionKey(id lib.VersionID) []byte {
	k := make([]byte, 1+VersionSize)
	k[0] = versionPrefix
	binary.BigEndian.PutUint64(k[1:], uint64(id))
	return k
}

// makeVersionedKey() creates a versioned key with inverted version encoding
// k = [userKey][^version]
func makeVersionedKey(userKey []byte, version uint64) []byte {
	k := make([]byte, len(userKey)+VersionSize)
	offset := copy(k, userKey)
	binary.BigEndian.PutUint64(k[offset:], ^version)
	return k
}

// parseVersionedKey() splits a versioned key into the user key and the real version
// the returned user key aliases the input
func parseVersionedKey(versionedKey []byte) (userKey []byte, version uint64) {
	if len(versionedKey) < VersionSize {
		return versionedKey, 0
	}
	end := len(versionedKey) - VersionSize
	return versionedKey[:end], ^binary.BigEndian.Uint64(versionedKey[end:])
}

// prefixEnd() returns the smallest key greater than every key with the prefix, nil means unbounded
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for len(end) > 0 {
		if end[len(end)-1] != 0xFF {
			end[len(end)-1]++
			return end
		}
		end = end[:len(end)-1]
	}
	return nil
}

// versionRecord is the persisted form of a committed version
type versionRecord struct{ lib.VersionInfo }

// AppendWire() lays out the record as protobuf fields: 1 id, 2 parent, 3 root
func (r *versionRecord) AppendWire(b []byte) []byte {
	b = codec.AppendVarint(b, 1, uint64(r.ID))
	b = codec.AppendVarint(b, 2, uint64(r.Parent))
	return codec.AppendBytes(b, 3, r.Root[:])
}

// SetWireField() decodes a single record field
func (r *versionRecord) SetWireField(f codec.Field) (err error) {
	switch f.Num {
	case 1:
		r.ID = lib.VersionID(f.Varint)
	case 2:
		r.Parent = lib.VersionID(f.Varint)
	case 3:
		r.Root, err = crypto.NewDigest(f.Bytes)
	}
	return
}

// encodeVersion() converts committed version info into record bytes
func encodeVersion(info *lib.VersionInfo) []byte {
	bz, _ := cdc.Marshal(&versionRecord{*info})
	return bz
}

// decodeVersion() converts record bytes into committed version info
func decodeVersion(bz []byte) (*lib.VersionInfo, lib.ErrorI) {
	r := new(versionRecord)
	if err := cdc.Unmarshal(bz, r); err != nil {
		return nil, lib.ErrUnmarshal(err)
	}
	r.Committed = true
	return &r.VersionInfo, nil
}
