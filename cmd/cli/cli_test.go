package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/smt"
	"github.com/canopy-network/vsmt/store"
	"github.com/stretchr/testify/require"
)

func TestInitializeDataDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vsmt")
	c := InitializeDataDirectory(dir, lib.NewNullLogger())
	require.Equal(t, dir, c.DataDirPath)
	require.Equal(t, lib.DefaultConfig().RPCPort, c.RPCPort)
	_, err := os.Stat(filepath.Join(dir, lib.ConfigFilePath))
	require.NoError(t, err)
	// an existing config is loaded, not overwritten
	c.RPCPort = "6000"
	require.NoError(t, c.WriteToFile(filepath.Join(dir, lib.ConfigFilePath)))
	require.Equal(t, "6000", InitializeDataDirectory(dir, lib.NewNullLogger()).RPCPort)
}

func TestParseDigest(t *testing.T) {
	h := crypto.DefaultHasher()
	hexKey := strings.Repeat("ab", crypto.DigestSize)
	got, err := parseDigest(h, hexKey, false)
	require.NoError(t, err)
	require.Equal(t, hexKey, got.String())
	// hashed input
	got, err = parseDigest(h, "alice", true)
	require.NoError(t, err)
	require.Equal(t, h.Sum([]byte("alice")), got)
	// not a digest
	_, err = parseDigest(h, "alice", false)
	require.Error(t, err)
}

func TestParseLeaf(t *testing.T) {
	h := crypto.DefaultHasher()
	leaf, err := parseLeaf(h, "alice=100", true)
	require.NoError(t, err)
	require.Equal(t, smt.Leaf{Key: h.Sum([]byte("alice")), Value: h.Sum([]byte("100"))}, leaf)
	_, err = parseLeaf(h, "alice", true)
	require.Error(t, err)
	_, err = parseLeaf(h, "zz=00", false)
	require.Error(t, err)
}

func TestReadVersion(t *testing.T) {
	db := store.NewStoreInMemory(lib.NewNullLogger())
	t.Cleanup(func() { db.Close() })
	h := crypto.DefaultHasher()
	tree, err := smt.New(db, h, nil, nil)
	require.NoError(t, err)
	key, value := h.Sum([]byte("key")), h.Sum([]byte("value"))
	_, err = tree.Update(key, value)
	require.NoError(t, err)
	committed, root, err := tree.Commit()
	require.NoError(t, err)
	readRoot := func(v *smt.View) (any, lib.ErrorI) { return v.Root(), nil }
	// 0 is the latest
	got, err := readVersion(db, h, 0, readRoot)
	require.NoError(t, err)
	require.Equal(t, root, got)
	got, err = readVersion(db, h, committed, readRoot)
	require.NoError(t, err)
	require.Equal(t, root, got)
	_, err = readVersion(db, h, committed+1, readRoot)
	require.True(t, lib.HasCode(err, lib.StorageModule, lib.CodeUnknownVersion))
}
