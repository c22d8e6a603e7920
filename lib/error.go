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

func NewError(code ErrorCode, module ErrorModule, msg string) *Error {
	// Constructs a new Error instance
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

// Is() matches errors of the same module and code, enabling errors.Is() against a sentinel constructor
func (p *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return p.ECode == t.ECode && p.EModule == t.EModule
}

// HasCode() returns true if err is an ErrorI from the module with the code
func HasCode(err error, module ErrorModule, code ErrorCode) bool {
	var e ErrorI
	if !errors.As(err, &e) {
		return false
	}
	return e.Module() == module && e.Code() == code
}

const (
	NoCode ErrorCode = math.MaxUint32

	// Main Module
	MainModule ErrorModule = "main"

	// Main Module Error Codes
	CodeInvalidArgument ErrorCode = 1
	CodeJSONMarshal     ErrorCode = 2
	CodeJSONUnmarshal   ErrorCode = 3
	CodeUnmarshal       ErrorCode = 4
	CodeMarshal         ErrorCode = 5
	CodeReadFile        ErrorCode = 6
	CodeWriteFile       ErrorCode = 7
	CodeUnknownHasher   ErrorCode = 8
	CodeInvalidDigest   ErrorCode = 9
	CodeUnknownBackend  ErrorCode = 10
	CodeDecodeValue     ErrorCode = 11

	// Storage Module
	StorageModule ErrorModule = "store"

	// Storage Module Error Codes
	CodeOpenDB       ErrorCode = 1
	CodeCloseDB      ErrorCode = 2
	CodeStorePut     ErrorCode = 3
	CodeStoreGet     ErrorCode = 4
	CodeNodeNotFound ErrorCode = 5
	CodeDecodeNode   ErrorCode = 6
	CodeFlushBatch   ErrorCode = 7
	CodeInvalidNode  ErrorCode = 8

	// Proof Module
	ProofModule ErrorModule = "proof"

	// Proof Module Error Codes
	CodeMalformedProof  ErrorCode = 1
	CodeKeyMismatch     ErrorCode = 2
	CodeEmptyKeySet     ErrorCode = 3
	CodeDecodeProof     ErrorCode = 4
	CodeNoRootForClaims ErrorCode = 5

	// Demo Module
	DemoModule ErrorModule = "demo"

	// Demo Module Error Codes
	CodeTrivialFactor    ErrorCode = 1
	CodeJournalFinalized ErrorCode = 3
	CodeEnvRead          ErrorCode = 4
	CodeEnvCommit        ErrorCode = 5
)

// error implementations below for the `lib` package
func newLogError(err error) ErrorI {
	return NewError(NoCode, MainModule, err.Error())
}

func ErrInvalidArgument(err error) ErrorI {
	return NewError(CodeInvalidArgument, MainModule, fmt.Sprintf("invalid argument: %s", err.Error()))
}

func ErrUnmarshal(err error) ErrorI {
	return NewError(CodeUnmarshal, MainModule, fmt.Sprintf("unmarshal() failed with err: %s", err.Error()))
}

func ErrMarshal(err error) ErrorI {
	return NewError(CodeMarshal, MainModule, fmt.Sprintf("marshal() failed with err: %s", err.Error()))
}

func ErrJSONUnmarshal(err error) ErrorI {
	return NewError(CodeJSONUnmarshal, MainModule, fmt.Sprintf("json.unmarshal() failed with err: %s", err.Error()))
}

func ErrJSONMarshal(err error) ErrorI {
	return NewError(CodeJSONMarshal, MainModule, fmt.Sprintf("json.marshal() failed with err: %s", err.Error()))
}

func ErrReadFile(err error) ErrorI {
	return NewError(CodeReadFile, MainModule, fmt.Sprintf("readFile() failed with err: %s", err.Error()))
}

func ErrWriteFile(err error) ErrorI {
	return NewError(CodeWriteFile, MainModule, fmt.Sprintf("writeFile() failed with err: %s", err.Error()))
}

func ErrUnknownHasher(err error) ErrorI {
	return NewError(CodeUnknownHasher, MainModule, err.Error())
}

func ErrInvalidDigest(err error) ErrorI {
	return NewError(CodeInvalidDigest, MainModule, fmt.Sprintf("invalid digest: %s", err.Error()))
}

func ErrUnknownBackend(name string) ErrorI {
	return NewError(CodeUnknownBackend, MainModule, fmt.Sprintf("unknown store backend %q", name))
}

func ErrDecodeValue(err error) ErrorI {
	return NewError(CodeDecodeValue, MainModule, fmt.Sprintf("decodeValue() failed with err: %s", err.Error()))
}
