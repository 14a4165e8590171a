package batch

import "fmt"

// SpawnError means the encoder executable could not be started at all:
// missing binary, permission problem, or the OS rejecting the spawn.
// Fatal to the job, not to the batch.
type SpawnError struct {
	Bin string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("cannot start %s: %v", e.Bin, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// PathError means the output directory could not be created or the
// destination path could not be resolved. Fatal to the job.
type PathError struct {
	Dir string
	Err error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("cannot prepare output directory %s: %v", e.Dir, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// ProcessFailure means the encoder exited non-zero or died unexpectedly.
// The diagnostic tail travels with the error so the user can see why.
type ProcessFailure struct {
	ExitCode int
	Tail     []string
	Err      error
}

func (e *ProcessFailure) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("encoder exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("encoder died unexpectedly: %v", e.Err)
}

func (e *ProcessFailure) Unwrap() error { return e.Err }

// InvalidStateError means pause/resume/cancel was requested in a state that
// forbids it. Callers log and ignore it; it never crashes the orchestrator.
type InvalidStateError struct {
	Op    string
	State ProcState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not valid while process is %s", e.Op, e.State)
}

// ParseAnomaly means a progress record completed without any usable key.
// The record is skipped and the previous known-good progress retained.
type ParseAnomaly struct {
	Record map[string]string
}

func (e *ParseAnomaly) Error() string {
	return fmt.Sprintf("progress record missing usable keys (%d raw keys)", len(e.Record))
}
