package rpc

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/smt"
)

// Client is a thin http client of the query RPC
type Client struct {
	rpcURL string
	client http.Client
}

func NewClient(rpcURL string) *Client {
	return &Client{rpcURL: strings.TrimSuffix(rpcURL, "/"), client: http.Client{}}
}

func (c *Client) Version() (version *string, err lib.ErrorI) {
	version = new(string)
	err = c.get(VersionRouteName, version)
	return
}

func (c *Client) Versions() (p []*lib.VersionInfo, err lib.ErrorI) {
	err = c.get(VersionsRouteName, &p)
	return
}

// Root() returns the root of a committed version, a nil version is the latest
func (c *Client) Root(version *lib.VersionID) (p *RootResult, err lib.ErrorI) {
	p = new(RootResult)
	err = c.versionRequest(RootRouteName, version, nil, p)
	return
}

func (c *Client) Get(version *lib.VersionID, keys []crypto.Digest) (p *GetResult, err lib.ErrorI) {
	p = new(GetResult)
	err = c.versionRequest(GetRouteName, version, keys, p)
	return
}

func (c *Client) Prove(version *lib.VersionID, keys []crypto.Digest) (p *ProveResult, err lib.ErrorI) {
	p = new(ProveResult)
	err = c.versionRequest(ProveRouteName, version, keys, p)
	return
}

// Verify() asks the server to check a proof against a root, an empty proof sends encoded instead
func (c *Client) Verify(root crypto.Digest, proof *smt.Proof, encoded string, leaves []smt.Leaf) (p *VerifyResult, err lib.ErrorI) {
	bz, err := lib.MarshalJSON(verifyRequest{Root: root, Proof: proof, Encoded: encoded, Leaves: leaves})
	if err != nil {
		return nil, err
	}
	p = new(VerifyResult)
	err = c.post(VerifyRouteName, bz, p)
	return
}

func (c *Client) versionRequest(routeName string, version *lib.VersionID, keys []crypto.Digest, ptr any) lib.ErrorI {
	bz, err := lib.MarshalJSON(keysRequest{versionRequest: versionRequest{Version: version}, Keys: keys})
	if err != nil {
		return err
	}
	return c.post(routeName, bz, ptr)
}

func (c *Client) url(routeName string) string {
	return c.rpcURL + routePaths[routeName].Path
}

func (c *Client) post(routeName string, json []byte, ptr any) lib.ErrorI {
	resp, err := c.client.Post(c.url(routeName), ApplicationJSON, bytes.NewBuffer(json))
	if err != nil {
		return ErrPostRequest(err)
	}
	return c.unmarshal(resp, ptr)
}

func (c *Client) get(routeName string, ptr any) lib.ErrorI {
	resp, err := c.client.Get(c.url(routeName))
	if err != nil {
		return ErrGetRequest(err)
	}
	return c.unmarshal(resp, ptr)
}

func (c *Client) unmarshal(resp *http.Response, ptr any) lib.ErrorI {
	defer func() { _ = resp.Body.Close() }()
	bz, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrReadBody(err)
	}
	if resp.StatusCode != http.StatusOK {
		return ErrHttpStatus(resp.Status, resp.StatusCode, bz)
	}
	return lib.UnmarshalJSON(bz, ptr)
}
