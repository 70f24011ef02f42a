// Package twopc is the prepare/finish state machine: it orchestrates the
// GXact table, the WAL, the post-checkpoint index, and the storage,
// clog, process-array, subxact, resource-manager and distributed-xact
// collaborators into the reserve -> end_prepare -> lock_for_finish ->
// finish_prepared lifecycle.
package twopc

import "fmt"

// DataCorruptedError is raised when a prepare record cannot be read back
// from the WAL, or fails to parse, during finish_prepared. The caller
// must treat this as fatal: the entry is already locked and the WAL is
// the only source of truth for what it should do next.
type DataCorruptedError struct {
	GID    string
	Reason string
}

func (e *DataCorruptedError) Error() string {
	return fmt.Sprintf("twopc: prepare record for %q is corrupted: %s", e.GID, e.Reason)
}

// ProgramLimitExceededError is raised before a WAL insertion is attempted
// when the assembled payload would exceed the configured ceiling.
type ProgramLimitExceededError struct {
	Len     int
	Ceiling int
}

func (e *ProgramLimitExceededError) Error() string {
	return fmt.Sprintf("twopc: assembled record of %d bytes exceeds the %d byte WAL ceiling", e.Len, e.Ceiling)
}

// HeaderMismatchError is raised when a parsed prepare record's xid does
// not match the GXact entry that pointed at it.
type HeaderMismatchError struct {
	Expected, Got uint32
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("twopc: prepare record xid %d does not match locked entry's xid %d", e.Got, e.Expected)
}
