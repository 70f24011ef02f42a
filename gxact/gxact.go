// Package gxact implements the fixed-capacity slab of global-transaction
// descriptors: the shared table every prepared transaction is parked in
// between PREPARE and its eventual COMMIT PREPARED / ROLLBACK PREPARED.
package gxact

import (
	"github.com/coralbase/twopc/wal"
)

// XID is a 32-bit transaction identifier.
type XID uint32

// InvalidXID is never assigned to a real transaction.
const InvalidXID XID = 0

// InvalidBackendID is the sentinel meaning "no backend currently owns this
// entry's payload fields".
const InvalidBackendID = -1

// GIDMaxBytes is the largest GID this table will store, matching the
// on-disk prepare-record field width minus its trailing NUL.
const GIDMaxBytes = 199

// RelFileNode identifies a relation file subject to unlink on commit/abort.
type RelFileNode struct {
	SpcOid uint32
	DBOid  uint32
	RelOid uint32
}

// DummyProc is the surrogate process-array entry that keeps a prepared
// transaction's XID visible as "still running" to every other backend.
// It is embedded in GXact in the original C source (so a pointer to one
// casts to a pointer to the other); here it is an explicit field instead,
// per the design note on replacing cyclic/self-referential descriptors.
type DummyProc struct {
	XID            XID
	DatabaseOid    uint32
	OwnerOid       uint32
	Subxacts       []XID
	DummyBackendID int
}

// GXact is one in-flight prepared transaction's descriptor.
type GXact struct {
	DummyProc DummyProc

	DummyBackendID int
	PreparedAt     int64 // unix nanos
	PrepareBeginLSN wal.LSN
	PrepareLSN      wal.LSN
	OwnerOid        uint32
	LockingBackend  int
	Valid           bool
	GID             string

	AppendOnlyIntentCount int

	CommitRels []RelFileNode
	AbortRels  []RelFileNode
}

// Ref is a stable handle to a slot in the table, used instead of a raw
// pointer so callers never observe the slab's internal reslicing.
type Ref int
