package lib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := NewError(CodeStoreGet, StorageModule, "get failed")
	wrapped := fmt.Errorf("while reading: %w", err)
	require.True(t, errors.Is(wrapped, NewError(CodeStoreGet, StorageModule, "other message")))
	require.False(t, errors.Is(wrapped, NewError(CodeStoreSet, StorageModule, "")))
	require.True(t, HasCode(wrapped, StorageModule, CodeStoreGet))
	require.False(t, HasCode(errors.New("plain"), StorageModule, CodeStoreGet))
}

func TestIsStoreUnavailable(t *testing.T) {
	require.True(t, IsStoreUnavailable(NewError(CodeCommitDB, StorageModule, "")))
	require.True(t, IsStoreUnavailable(fmt.Errorf("%w", NewError(CodeStoreSet, StorageModule, ""))))
	require.False(t, IsStoreUnavailable(NewError(CodeUnknownVersion, StorageModule, "")))
	// same code, different module
	require.False(t, IsStoreUnavailable(NewError(CodeCommitDB, SMTModule, "")))
	require.False(t, IsStoreUnavailable(nil))
}

func TestErrorString(t *testing.T) {
	err := ErrInvalidArgument("bad")
	require.Equal(t, CodeInvalidArgument, err.Code())
	require.Equal(t, MainModule, err.Module())
	require.Contains(t, err.Error(), "invalid argument: bad")
}
