package lib

import (
	"fmt"

	"github.com/canopy-network/vsmt/lib/codec"
	"github.com/canopy-network/vsmt/lib/crypto"
)

// NodeKind tags the variant held by a Node
type NodeKind uint8

const (
	NodeEmpty  NodeKind = iota // the sentinel subtree, never persisted
	NodeLeaf                   // terminates a path: (key, value)
	NodeBranch                 // an interior node at some depth: (left, right)
)

func (k NodeKind) String() string {
	switch k {
	case NodeEmpty:
		return "empty"
	case NodeLeaf:
		return "leaf"
	case NodeBranch:
		return "branch"
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Node is the tagged union stored under its own digest
// a Leaf carries (Key, Value) while a Branch carries (Left, Right) in the same two slots
type Node struct {
	Kind NodeKind
	A    crypto.Digest // leaf key or left child digest
	B    crypto.Digest // leaf value or right child digest
}

// the empty node is a value, never a stored record
var emptyNode = Node{Kind: NodeEmpty}

// EmptyNode() returns the sentinel node
func EmptyNode() *Node { n := emptyNode; return &n }

// NewLeaf() constructs a leaf node
func NewLeaf(key, value crypto.Digest) *Node { return &Node{Kind: NodeLeaf, A: key, B: value} }

// NewBranch() constructs a branch node
func NewBranch(left, right crypto.Digest) *Node {
	return &Node{Kind: NodeBranch, A: left, B: right}
}

// IsEmpty() returns true for the sentinel node
func (n *Node) IsEmpty() bool { return n == nil || n.Kind == NodeEmpty }

// IsLeaf() returns true for a leaf node
func (n *Node) IsLeaf() bool { return n != nil && n.Kind == NodeLeaf }

// IsBranch() returns true for a branch node
func (n *Node) IsBranch() bool { return n != nil && n.Kind == NodeBranch }

// Key() returns the key of a leaf
func (n *Node) Key() crypto.Digest { return n.A }

// Value() returns the value of a leaf
func (n *Node) Value() crypto.Digest { return n.B }

// Left() returns the left child digest of a branch
func (n *Node) Left() crypto.Digest { return n.A }

// Right() returns the right child digest of a branch
func (n *Node) Right() crypto.Digest { return n.B }

// Child() returns the child digest of a branch selected by a key bit
func (n *Node) Child(bit int) crypto.Digest {
	if bit == 0 {
		return n.A
	}
	return n.B
}

// String() returns a short human readable form of the node
func (n *Node) String() string {
	switch {
	case n.IsLeaf():
		return fmt.Sprintf("leaf(%s=%s)", n.A, n.B)
	case n.IsBranch():
		return fmt.Sprintf("branch(%s,%s)", n.A, n.B)
	}
	return "empty"
}

var _ codec.WireMessage = &Node{}

// AppendWire() lays out the node as protobuf fields: 1 kind, 2 first digest, 3 second digest
func (n *Node) AppendWire(b []byte) []byte {
	b = codec.AppendVarint(b, 1, uint64(n.Kind))
	b = codec.AppendBytes(b, 2, n.A[:])
	return codec.AppendBytes(b, 3, n.B[:])
}

// SetWireField() decodes a single node field
func (n *Node) SetWireField(f codec.Field) (err error) {
	switch f.Num {
	case 1:
		n.Kind = NodeKind(f.Varint)
	case 2:
		n.A, err = crypto.NewDigest(f.Bytes)
	case 3:
		n.B, err = crypto.NewDigest(f.Bytes)
	}
	return
}

var nodeCodec = codec.Protowire{}

// EncodeNode() converts a node into its storage bytes
func EncodeNode(n *Node) ([]byte, ErrorI) {
	if n.IsEmpty() {
		return nil, ErrInvalidArgument("the empty node is never persisted")
	}
	bz, err := nodeCodec.Marshal(n)
	if err != nil {
		return nil, ErrMarshal(err)
	}
	return bz, nil
}

// DecodeNode() converts storage bytes into a node
func DecodeNode(bz []byte) (*Node, ErrorI) {
	n := new(Node)
	if err := nodeCodec.Unmarshal(bz, n); err != nil {
		return nil, ErrDecodeNode(err)
	}
	if n.Kind != NodeLeaf && n.Kind != NodeBranch {
		return nil, ErrDecodeNode(fmt.Errorf("unexpected node kind %s", n.Kind))
	}
	return n, nil
}
