package demo

import (
	"fmt"

	"github.com/canopy-network/smt/lib"
)

func ErrTrivialFactor(a, b uint64) lib.ErrorI {
	return lib.NewError(lib.CodeTrivialFactor, lib.DemoModule, fmt.Sprintf("trivial factors %d and %d", a, b))
}

func ErrJournalFinalized() lib.ErrorI {
	return lib.NewError(lib.CodeJournalFinalized, lib.DemoModule, "the journal has already been committed")
}

func ErrEnvRead(err error) lib.ErrorI {
	return lib.NewError(lib.CodeEnvRead, lib.DemoModule, fmt.Sprintf("env.read() failed with err: %s", err.Error()))
}

func ErrEnvCommit(err error) lib.ErrorI {
	return lib.NewError(lib.CodeEnvCommit, lib.DemoModule, fmt.Sprintf("env.commit() failed with err: %s", err.Error()))
}
