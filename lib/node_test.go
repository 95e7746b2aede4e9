package lib

import (
	"testing"

	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/stretchr/testify/require"
)

func TestNodeEncodeDecode(t *testing.T) {
	key, value := crypto.Digest{1}, crypto.Digest{2}
	tests := []struct {
		name string
		node *Node
	}{
		{name: "leaf", node: NewLeaf(key, value)},
		{name: "branch", node: NewBranch(key, value)},
		{name: "one child branch", node: NewBranch(crypto.ZeroDigest, value)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bz, err := EncodeNode(test.node)
			require.NoError(t, err)
			got, err := DecodeNode(bz)
			require.NoError(t, err)
			require.Equal(t, test.node, got)
		})
	}
}

func TestNodeAccessors(t *testing.T) {
	l, r := crypto.Digest{1}, crypto.Digest{2}
	b := NewBranch(l, r)
	require.True(t, b.IsBranch())
	require.Equal(t, l, b.Child(0))
	require.Equal(t, r, b.Child(1))
	leaf := NewLeaf(l, r)
	require.True(t, leaf.IsLeaf())
	require.Equal(t, l, leaf.Key())
	require.Equal(t, r, leaf.Value())
	require.True(t, EmptyNode().IsEmpty())
	require.True(t, (*Node)(nil).IsEmpty())
	require.Equal(t, "empty", EmptyNode().String())
}

func TestNodeDecodeErrors(t *testing.T) {
	// the empty node is never persisted
	_, err := EncodeNode(EmptyNode())
	require.True(t, HasCode(err, MainModule, CodeInvalidArgument))
	// a record without a kind
	_, err = DecodeNode(nil)
	require.True(t, HasCode(err, MainModule, CodeDecodeNode))
	// a digest of the wrong width
	_, err = DecodeNode([]byte{0x08, 0x01, 0x12, 0x01, 0xff})
	require.True(t, HasCode(err, MainModule, CodeDecodeNode))
}
