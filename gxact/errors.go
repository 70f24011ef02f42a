package gxact

import "fmt"

// DuplicateGIDError is raised by Reserve when the GID is already present in
// the active array, valid or not.
type DuplicateGIDError struct {
	GID string
}

func (e *DuplicateGIDError) Error() string {
	return fmt.Sprintf("gxact: gid %q is already prepared or being prepared", e.GID)
}

// TableFullError is raised by Reserve when the freelist is exhausted.
type TableFullError struct {
	Capacity int
}

func (e *TableFullError) Error() string {
	return fmt.Sprintf("gxact: no room for another prepared transaction (max_prepared_transactions=%d); consider increasing it", e.Capacity)
}

// DisabledError is raised when the table capacity is zero.
type DisabledError struct{}

func (e *DisabledError) Error() string {
	return "gxact: prepared transactions are disabled (max_prepared_transactions=0)"
}

// GIDTooLongError is raised when a caller-supplied GID exceeds GIDMaxBytes.
type GIDTooLongError struct {
	Len int
}

func (e *GIDTooLongError) Error() string {
	return fmt.Sprintf("gxact: gid length %d exceeds maximum of %d bytes", e.Len, GIDMaxBytes)
}

// NotFoundError is raised by LockForFinish/Find when no entry matches.
type NotFoundError struct {
	GID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gxact: no prepared transaction with gid %q", e.GID)
}

// BusyError is raised by LockForFinish when the entry is already locked by
// another backend.
type BusyError struct {
	GID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("gxact: prepared transaction %q is being finished by another backend", e.GID)
}

// InsufficientPrivilegeError is raised when the caller is neither the
// owning role nor a superuser.
type InsufficientPrivilegeError struct {
	GID string
}

func (e *InsufficientPrivilegeError) Error() string {
	return fmt.Sprintf("gxact: caller lacks privilege to finish prepared transaction %q", e.GID)
}

// CrossDatabaseError is raised when finishing a transaction prepared under
// a different database outside coordinator mode.
type CrossDatabaseError struct {
	GID string
}

func (e *CrossDatabaseError) Error() string {
	return fmt.Sprintf("gxact: prepared transaction %q belongs to another database; enable coordinator_mode to finish across databases", e.GID)
}
