package app

import (
	"context"
	"errors"

	"github.com/khrees2412/waterworks/internal/database"
	"github.com/khrees2412/waterworks/internal/pipeline"
)

// Process exit codes
const (
	ExitOK          = 0
	ExitError       = 1
	ExitAborted     = 2
	ExitInterrupted = 130
)

// Sentinel errors for the command layer
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrCancelled       = errors.New("cancelled by user")
)

// ExitCode maps a command error to the process exit status. Per-job failures
// never reach here; a completed run returns nil.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return ExitInterrupted
	case errors.Is(err, database.ErrCorrupt), errors.Is(err, database.ErrLocked):
		return ExitError
	case errors.Is(err, pipeline.ErrAborted):
		return ExitAborted
	default:
		return ExitError
	}
}
