package walrecord

import "fmt"

// GIDTooLongError mirrors gxact.GIDTooLongError at the assembler boundary,
// since Start is the first place a caller-supplied GID is validated.
type GIDTooLongError struct {
	Len int
}

func (e *GIDTooLongError) Error() string {
	return fmt.Sprintf("walrecord: gid length %d exceeds maximum of 199 bytes", e.Len)
}

// PayloadTooLargeError is raised when the assembled chain would exceed the
// configured WAL payload ceiling.
type PayloadTooLargeError struct {
	Len     int
	Ceiling int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("walrecord: assembled payload of %d bytes exceeds the %d byte WAL segment ceiling", e.Len, e.Ceiling)
}

// BuildStateError is raised when Start/Register/Finish are called out of
// order on a Builder.
type BuildStateError struct {
	Op string
}

func (e *BuildStateError) Error() string {
	return fmt.Sprintf("walrecord: %s called with no build in progress", e.Op)
}

// CorruptError is raised by Parse when a payload fails structural or
// checksum validation.
type CorruptError struct {
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("walrecord: corrupt prepare record: %s", e.Reason)
}
