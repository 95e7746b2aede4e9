package lib

import (
	"errors"
	"fmt"
	"math"
)

type ErrorI interface {
	Code() ErrorCode     // Returns the error code
	Module() ErrorModule // Returns the error module
	error                // Implements the built-in error interface
}

var _ ErrorI = &Error{} // Ensures *Error implements ErrorI

type ErrorCode uint32 // Defines a type for error codes

type ErrorModule string // Defines a type for error modules

type Error struct {
	ECode   ErrorCode   `json:"code"`   // Error code
	EModule ErrorModule `json:"module"` // Error module
	Msg     string      `json:"msg"`    // Error message
}

// NewError() constructs a new Error instance
func NewError(code ErrorCode, module ErrorModule, msg string) *Error {
	return &Error{ECode: code, EModule: module, Msg: msg}
}

// Code() returns the associated error code
func (p *Error) Code() ErrorCode { return p.ECode }

// Module() returns module field
func (p *Error) Module() ErrorModule { return p.EModule }

// String() calls Error()
func (p *Error) String() string { return p.Error() }

// Error() returns a formatted string including module, code and message
func (p *Error) Error() string {
	return fmt.Sprintf("\nModule:  %s\nCode:    %d\nMessage: %s", p.EModule, p.ECode, p.Msg)
}

// Is() allows errors.Is to match two errors of the same module and code
func (p *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.ECode == p.ECode && t.EModule == p.EModule
}

// HasCode() returns true if err is an ErrorI from the module with the code
func HasCode(err error, module ErrorModule, code ErrorCode) bool {
	var e ErrorI
	if !errors.As(err, &e) {
		return false
	}
	return e.Module() == module && e.Code() == code
}

// IsStoreUnavailable() returns true if the error originates from an I/O failure of the backing store
// these failures are fatal to the operation in flight but never corrupt other versions
func IsStoreUnavailable(err error) bool {
	var e ErrorI
	if !errors.As(err, &e) || e.Module() != StorageModule {
		return false
	}
	switch e.Code() {
	case CodeOpenDB, CodeCloseDB, CodeCommitDB, CodeStoreSet, CodeStoreGet:
		return true
	}
	return false
}

const (
	NoCode ErrorCode = math.MaxUint32

	// Main Module
	MainModule ErrorModule = "main"

	// Main Module Error Codes
	CodeJSONMarshal     ErrorCode = 1
	CodeJSONUnmarshal   ErrorCode = 2
	CodeMarshal         ErrorCode = 3
	CodeUnmarshal       ErrorCode = 4
	CodeWriteFile       ErrorCode = 5
	CodeReadFile        ErrorCode = 6
	CodeInvalidArgument ErrorCode = 7
	CodeInvalidDigest   ErrorCode = 8
	CodeUnknownHasher   ErrorCode = 9
	CodeDecodeNode      ErrorCode = 10
	CodeServerTimeout   ErrorCode = 11
	CodeCancelled       ErrorCode = 12

	// Storage Module
	StorageModule ErrorModule = "store"

	// Storage Module Error Codes
	CodeOpenDB              ErrorCode = 1
	CodeCloseDB             ErrorCode = 2
	CodeStoreSet            ErrorCode = 3
	CodeStoreGet            ErrorCode = 4
	CodeCommitDB            ErrorCode = 5
	CodeUnknownVersion      ErrorCode = 6
	CodeVersionCommitted    ErrorCode = 7
	CodeVersionNotCommitted ErrorCode = 8
	CodeNodeNotFound        ErrorCode = 9
	CodeUnknownBackend      ErrorCode = 10
	CodeStoreClosed         ErrorCode = 11
	CodeHasherMismatch      ErrorCode = 12

	// SMT Module
	SMTModule ErrorModule = "smt"

	// SMT Module Error Codes
	CodeMalformedProof     ErrorCode = 1
	CodeKeyNotFoundInScope ErrorCode = 2
	CodeInvalidMerkleTree  ErrorCode = 3

	// RPC Module
	RPCModule ErrorModule = "rpc"

	// RPC Module Error Codes
	CodeInvalidParams ErrorCode = 1
	CodePostRequest   ErrorCode = 2
	CodeGetRequest    ErrorCode = 3
	CodeHttpStatus    ErrorCode = 4
	CodeReadBody      ErrorCode = 5
)

// MAIN MODULE ERRORS BELOW

func ErrJSONMarshal(err error) ErrorI {
	return NewError(CodeJSONMarshal, MainModule, fmt.Sprintf("json.marshal() failed with err: %s", err.Error()))
}

func ErrJSONUnmarshal(err error) ErrorI {
	return NewError(CodeJSONUnmarshal, MainModule, fmt.Sprintf("json.unmarshal() failed with err: %s", err.Error()))
}

func ErrMarshal(err error) ErrorI {
	return NewError(CodeMarshal, MainModule, fmt.Sprintf("marshal() failed with err: %s", err.Error()))
}

func ErrUnmarshal(err error) ErrorI {
	return NewError(CodeUnmarshal, MainModule, fmt.Sprintf("unmarshal() failed with err: %s", err.Error()))
}

func ErrWriteFile(err error) ErrorI {
	return NewError(CodeWriteFile, MainModule, fmt.Sprintf("os.WriteFile() failed with err: %s", err.Error()))
}

func ErrReadFile(err error) ErrorI {
	return NewError(CodeReadFile, MainModule, fmt.Sprintf("os.ReadFile() failed with err: %s", err.Error()))
}

func ErrInvalidArgument(msg string) ErrorI {
	return NewError(CodeInvalidArgument, MainModule, fmt.Sprintf("invalid argument: %s", msg))
}

func ErrDecodeNode(err error) ErrorI {
	return NewError(CodeDecodeNode, MainModule, fmt.Sprintf("decodeNode() failed with err: %s", err.Error()))
}

func ErrServerTimeout() ErrorI {
	return NewError(CodeServerTimeout, MainModule, "server timeout")
}

func ErrCancelled(err error) ErrorI {
	return NewError(CodeCancelled, MainModule, fmt.Sprintf("operation cancelled: %s", err.Error()))
}

func ErrInvalidDigest(err error) ErrorI {
	return NewError(CodeInvalidDigest, MainModule, fmt.Sprintf("invalid digest: %s", err.Error()))
}

func ErrUnknownHasher(err error) ErrorI {
	return NewError(CodeUnknownHasher, MainModule, err.Error())
}

// STORAGE MODULE ERRORS RAISED OUTSIDE THE STORE

// ErrVersionCommitted is returned by the store and by the tree for any write to a published version
func ErrVersionCommitted(v VersionID) ErrorI {
	return NewError(CodeVersionCommitted, StorageModule, fmt.Sprintf("version %d is committed and immutable", v))
}
