// Package procarray is the dummy process-array collaborator: it keeps a
// prepared transaction's xid visible to snapshot scans as "in progress"
// by a dummy backend slot, the way the teacher's row-lock store keeps a
// concurrent index of owned rows keyed by a stable id, built on
// puzpuzpuz/xsync.
package procarray

import (
	"github.com/coralbase/twopc/gxact"
	"github.com/puzpuzpuz/xsync/v3"
)

// Table tracks the set of dummy process entries currently installed on
// behalf of prepared transactions.
type Table struct {
	byBackend *xsync.MapOf[int, gxact.DummyProc]
	byXID     *xsync.MapOf[gxact.XID, gxact.DummyProc]
}

// NewTable returns an empty dummy process array.
func NewTable() *Table {
	return &Table{
		byBackend: xsync.NewMapOf[int, gxact.DummyProc](),
		byXID:     xsync.NewMapOf[gxact.XID, gxact.DummyProc](),
	}
}

// Add installs proc, making its xid visible to IsRunning/Snapshot.
func (t *Table) Add(proc gxact.DummyProc) {
	t.byBackend.Store(proc.DummyBackendID, proc)
	t.byXID.Store(proc.XID, proc)
}

// Remove retires proc. latestXID is the subxact cutoff the caller observed
// at removal time; the in-memory array needs only the removal itself, but
// the parameter is kept so callers don't have to special-case this
// collaborator against the original contract.
func (t *Table) Remove(proc gxact.DummyProc, latestXID gxact.XID) {
	t.byBackend.Delete(proc.DummyBackendID)
	t.byXID.Delete(proc.XID)
	_ = latestXID
}

// IsRunning reports whether xid currently has a dummy process entry.
func (t *Table) IsRunning(xid gxact.XID) bool {
	_, ok := t.byXID.Load(xid)
	return ok
}

// Snapshot copies every currently installed dummy process entry.
func (t *Table) Snapshot() []gxact.DummyProc {
	out := make([]gxact.DummyProc, 0, t.byXID.Size())
	t.byXID.Range(func(_ gxact.XID, v gxact.DummyProc) bool {
		out = append(out, v)
		return true
	})
	return out
}

var _ gxact.ProcArray = (*Table)(nil)
