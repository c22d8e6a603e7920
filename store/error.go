package store

import (
	"fmt"

	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
)

func ErrOpenDB(err error) lib.ErrorI {
	return lib.NewError(lib.CodeOpenDB, lib.StorageModule, fmt.Sprintf("openDB() failed with err: %s", err.Error()))
}

func ErrCloseDB(err error) lib.ErrorI {
	return lib.NewError(lib.CodeCloseDB, lib.StorageModule, fmt.Sprintf("closeDB() failed with err: %s", err.Error()))
}

func ErrStorePut(err error) lib.ErrorI {
	return lib.NewError(lib.CodeStorePut, lib.StorageModule, fmt.Sprintf("store.put() failed with err: %s", err.Error()))
}

func ErrStoreGet(err error) lib.ErrorI {
	return lib.NewError(lib.CodeStoreGet, lib.StorageModule, fmt.Sprintf("store.get() failed with err: %s", err.Error()))
}

func ErrFlushBatch(err error) lib.ErrorI {
	return lib.NewError(lib.CodeFlushBatch, lib.StorageModule, fmt.Sprintf("flushBatch() failed with err: %s", err.Error()))
}

func ErrNodeNotFound(digest crypto.Digest) lib.ErrorI {
	return lib.NewError(lib.CodeNodeNotFound, lib.StorageModule, fmt.Sprintf("node %s not found", digest))
}

func ErrInvalidNode(reason string) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidNode, lib.StorageModule, fmt.Sprintf("invalid node: %s", reason))
}

func ErrMalformedProof(reason string) lib.ErrorI {
	return lib.NewError(lib.CodeMalformedProof, lib.ProofModule, fmt.Sprintf("malformed proof: %s", reason))
}

func ErrKeyMismatch() lib.ErrorI {
	return lib.NewError(lib.CodeKeyMismatch, lib.ProofModule, "entry keys do not match the proof keys")
}

func ErrEmptyKeySet() lib.ErrorI {
	return lib.NewError(lib.CodeEmptyKeySet, lib.ProofModule, "a proof needs at least one key")
}

func ErrDecodeProof(err error) lib.ErrorI {
	return lib.NewError(lib.CodeDecodeProof, lib.ProofModule, fmt.Sprintf("decodeProof() failed with err: %s", err.Error()))
}

func ErrNoRootForClaims() lib.ErrorI {
	return lib.NewError(lib.CodeNoRootForClaims, lib.ProofModule, "no tree holds every claimed entry")
}
