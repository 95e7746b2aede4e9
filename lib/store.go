package lib

import (
	"github.com/canopy-network/vsmt/lib/crypto"
)

/* This file contains persistence module interfaces that are used throughout the app */

// VersionID identifies one snapshot of the tree, ids are allocated in strictly increasing order
type VersionID uint64

// GenesisVersion is always committed and always has the empty root
const GenesisVersion VersionID = 0

// VersionInfo is the durable record of a version
type VersionInfo struct {
	ID        VersionID     `json:"id"`        // the version identifier
	Parent    VersionID     `json:"parent"`    // the committed version this one was forked from
	Root      crypto.Digest `json:"root"`      // the root digest, only meaningful once committed
	Committed bool          `json:"committed"` // immutable once true
}

// VersionedStoreI defines the interface the tree uses to persist content addressed nodes per version
type VersionedStoreI interface {
	NodeReaderI                                          // read nodes visible at a version
	NodeWriterI                                          // write nodes into a version pending set
	VersionCreate(parent VersionID) (VersionID, ErrorI)  // fork a new mutable version from a committed parent
	Checkout(version VersionID) (ReadOnlyStoreI, ErrorI) // read only snapshot of a committed version
	Commit(version VersionID, root crypto.Digest) ErrorI // atomically publish the pending set and the root
	Discard(version VersionID) ErrorI                    // drop an uncommitted version and its pending set
	Version(id VersionID) (*VersionInfo, ErrorI)         // get the record of a version
	Versions() ([]*VersionInfo, ErrorI)                  // all known versions ordered by id
	Latest() (*VersionInfo, ErrorI)                      // the committed version with the highest id
	BindHasher(name string) ErrorI                       // persist or check the hash function the nodes are built with
	Close() ErrorI                                       // gracefully stop the database
}

// NodeReaderI defines the read interface for content addressed nodes
type NodeReaderI interface {
	GetNode(version VersionID, digest crypto.Digest) (*Node, ErrorI) // get a node by its digest as seen by a version
}

// NodeWriterI defines the write interface for content addressed nodes
type NodeWriterI interface {
	PutNode(version VersionID, digest crypto.Digest, node *Node) ErrorI // idempotent, the digest is the node's own hash
}

// ReadOnlyStoreI is a committed version frozen in time, safe for concurrent use
type ReadOnlyStoreI interface {
	Info() VersionInfo                            // the committed record backing the snapshot
	GetNode(digest crypto.Digest) (*Node, ErrorI) // get a node by digest
}
