package smt

import (
	"fmt"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
)

func ErrMalformedProof(msg string) lib.ErrorI {
	return lib.NewError(lib.CodeMalformedProof, lib.SMTModule, fmt.Sprintf("malformed proof: %s", msg))
}

func ErrKeyNotFoundInScope(msg string) lib.ErrorI {
	return lib.NewError(lib.CodeKeyNotFoundInScope, lib.SMTModule, fmt.Sprintf("keys cannot be proven together: %s", msg))
}

func ErrInvalidMerkleTree(depth int, digest crypto.Digest, n *lib.Node) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidMerkleTree, lib.SMTModule,
		fmt.Sprintf("unexpected %s at depth %d under digest %s", n.String(), depth, digest))
}
