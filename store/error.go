package store

import (
	"fmt"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
)

func ErrOpenDB(err error) lib.ErrorI {
	return lib.NewError(lib.CodeOpenDB, lib.StorageModule, fmt.Sprintf("openDB() failed with err: %s", err.Error()))
}

func ErrCloseDB(err error) lib.ErrorI {
	return lib.NewError(lib.CodeCloseDB, lib.StorageModule, fmt.Sprintf("closeDB() failed with err: %s", err.Error()))
}

func ErrCommitDB(err error) lib.ErrorI {
	return lib.NewError(lib.CodeCommitDB, lib.StorageModule, fmt.Sprintf("commitDB() failed with err: %s", err.Error()))
}

func ErrStoreSet(err error) lib.ErrorI {
	return lib.NewError(lib.CodeStoreSet, lib.StorageModule, fmt.Sprintf("store.set() failed with err: %s", err.Error()))
}

func ErrStoreGet(err error) lib.ErrorI {
	return lib.NewError(lib.CodeStoreGet, lib.StorageModule, fmt.Sprintf("store.get() failed with err: %s", err.Error()))
}

func ErrUnknownVersion(v lib.VersionID) lib.ErrorI {
	return lib.NewError(lib.CodeUnknownVersion, lib.StorageModule, fmt.Sprintf("version %d is unknown", v))
}

func ErrVersionNotCommitted(v lib.VersionID) lib.ErrorI {
	return lib.NewError(lib.CodeVersionNotCommitted, lib.StorageModule, fmt.Sprintf("version %d is not committed", v))
}

func ErrNodeNotFound(v lib.VersionID, digest crypto.Digest) lib.ErrorI {
	return lib.NewError(lib.CodeNodeNotFound, lib.StorageModule, fmt.Sprintf("node %s not found at version %d", digest, v))
}

func ErrUnknownBackend(name string) lib.ErrorI {
	return lib.NewError(lib.CodeUnknownBackend, lib.StorageModule, fmt.Sprintf("store backend %q is unknown", name))
}

func ErrStoreClosed() lib.ErrorI {
	return lib.NewError(lib.CodeStoreClosed, lib.StorageModule, "store is closed")
}

func ErrHasherMismatch(stored, requested string) lib.ErrorI {
	return lib.NewError(lib.CodeHasherMismatch, lib.StorageModule, fmt.Sprintf("store was built with hasher %s, not %s", stored, requested))
}
