package rpc

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/smt"
	"github.com/canopy-network/vsmt/store"
	"github.com/stretchr/testify/require"
)

func TestQueries(t *testing.T) {
	c, committed, leaves := newTestServer(t)
	// version
	version, err := c.Version()
	require.NoError(t, err)
	require.Equal(t, SoftwareVersion, *version)
	// versions include genesis and the committed version
	versions, err := c.Versions()
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, lib.GenesisVersion, versions[0].ID)
	require.Equal(t, committed, versions[1].ID)
	require.True(t, versions[1].Committed)
	// root of the latest and of genesis
	latest, err := c.Root(nil)
	require.NoError(t, err)
	require.Equal(t, committed, latest.Version)
	require.False(t, latest.Root.IsZero())
	genesis := lib.GenesisVersion
	empty, err := c.Root(&genesis)
	require.NoError(t, err)
	require.True(t, empty.Root.IsZero())
	// get a present and an absent key
	absent := digest(0xEE)
	got, err := c.Get(nil, []crypto.Digest{leaves[0].Key, absent})
	require.NoError(t, err)
	require.Equal(t, latest.Root, got.Root)
	require.Equal(t, []smt.Leaf{leaves[0], {Key: absent}}, got.Leaves)
}

func TestProveAndVerify(t *testing.T) {
	c, _, leaves := newTestServer(t)
	keys := []crypto.Digest{leaves[2].Key, leaves[0].Key, digest(0xEE)}
	proved, err := c.Prove(nil, keys)
	require.NoError(t, err)
	require.Len(t, proved.Leaves, 3)
	require.NotEmpty(t, proved.Encoded)
	require.Equal(t, len(proved.Encoded)/2, proved.Size)
	// the returned leaves are sorted and verify locally
	valid, e := proved.Proof.Verify(crypto.DefaultHasher(), proved.Root, proved.Leaves)
	require.NoError(t, e)
	require.True(t, valid)
	// and remotely, both as json and hex encoded
	result, err := c.Verify(proved.Root, proved.Proof, "", proved.Leaves)
	require.NoError(t, err)
	require.True(t, result.Valid)
	result, err = c.Verify(proved.Root, nil, proved.Encoded, proved.Leaves)
	require.NoError(t, err)
	require.True(t, result.Valid)
	// a tampered value is a clean false
	tampered := append([]smt.Leaf(nil), proved.Leaves...)
	tampered[0].Value = digest(0x99)
	result, err = c.Verify(proved.Root, proved.Proof, "", tampered)
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestQueryErrors(t *testing.T) {
	c, _, _ := newTestServer(t)
	tests := []struct {
		name   string
		detail string
		call   func() lib.ErrorI
		status int
	}{
		{
			name:   "unknown version",
			detail: "checking out a version that was never created is not found",
			call: func() lib.ErrorI {
				unknown := lib.VersionID(42)
				_, err := c.Root(&unknown)
				return err
			},
			status: http.StatusNotFound,
		},
		{
			name:   "empty key set",
			detail: "a proof must name at least one key",
			call: func() lib.ErrorI {
				_, err := c.Prove(nil, nil)
				return err
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed encoded proof",
			detail: "the hex form must decode into a well formed proof",
			call: func() lib.ErrorI {
				_, err := c.Verify(crypto.ZeroDigest, nil, "zz", nil)
				return err
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing proof",
			detail: "verify requires a proof",
			call: func() lib.ErrorI {
				_, err := c.Verify(crypto.ZeroDigest, nil, "", nil)
				return err
			},
			status: http.StatusBadRequest,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.call()
			require.Error(t, err, test.detail)
			require.True(t, lib.HasCode(err, lib.RPCModule, lib.CodeHttpStatus))
			require.Contains(t, err.Error(), http.StatusText(test.status))
		})
	}
}

func TestInvalidBody(t *testing.T) {
	srv := httptest.NewServer(NewServer(store.NewStoreInMemory(lib.NewNullLogger()), nil, lib.DefaultConfig(), nil, nil).Handler())
	t.Cleanup(srv.Close)
	resp, err := http.Post(srv.URL+RootRoutePath, ApplicationJSON, bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	config := lib.DefaultConfig()
	config.MetricsEnabled = true
	metrics := lib.NewMetricsServer(config.MetricsConfig, nil)
	srv := httptest.NewServer(NewServer(store.NewStoreInMemory(lib.NewNullLogger()), nil, config, metrics, nil).Handler())
	t.Cleanup(srv.Close)
	resp, err := http.Get(srv.URL + MetricsRoutePath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// newTestServer() commits a small tree into an in-memory store and serves it
func newTestServer(t *testing.T) (*Client, lib.VersionID, []smt.Leaf) {
	s := store.NewStoreInMemory(lib.NewNullLogger())
	t.Cleanup(func() { s.Close() })
	tree, err := smt.New(s, nil, nil, nil)
	require.NoError(t, err)
	leaves := []smt.Leaf{
		{Key: digest(0x01), Value: digest(0x10)},
		{Key: digest(0x80), Value: digest(0x20)},
		{Key: digest(0xC0), Value: digest(0x30)},
	}
	_, err = tree.UpdateAll(leaves)
	require.NoError(t, err)
	committed, _, err := tree.Commit()
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(s, nil, lib.DefaultConfig(), nil, nil).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), committed, leaves
}

// digest() returns a digest with every byte set to b
func digest(b byte) (d crypto.Digest) {
	for i := range d {
		d[i] = b
	}
	return
}
