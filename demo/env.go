package demo

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/canopy-network/smt/lib"
)

// Env is the host the driver talks to: it supplies inputs and receives the single public output
type Env interface {
	Read(ptr any) lib.ErrorI // decode the next input into ptr
	Commit(v any) lib.ErrorI // publish v; an env accepts exactly one commit
}

var _ Env = &JournalEnv{}

// JournalEnv reads JSON values from an input stream and commits one JSON value to a journal
type JournalEnv struct {
	in        *json.Decoder
	journal   io.Writer
	finalized bool
	mu        sync.Mutex
}

// NewJournalEnv() creates an env over the input and journal streams
func NewJournalEnv(in io.Reader, journal io.Writer) *JournalEnv {
	return &JournalEnv{in: json.NewDecoder(in), journal: journal}
}

// Read() decodes the next JSON value of the input
func (e *JournalEnv) Read(ptr any) lib.ErrorI {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return ErrJournalFinalized()
	}
	if err := e.in.Decode(ptr); err != nil {
		return ErrEnvRead(err)
	}
	return nil
}

// Commit() writes v to the journal and closes the env
func (e *JournalEnv) Commit(v any) lib.ErrorI {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return ErrJournalFinalized()
	}
	if err := json.NewEncoder(e.journal).Encode(v); err != nil {
		return ErrEnvCommit(err)
	}
	e.finalized = true
	return nil
}

// Finalized() returns true once the journal holds its commit
func (e *JournalEnv) Finalized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalized
}
