// Package checkpointidx is the post-checkpoint index: a concurrent
// xid -> LSN map recording where each prepared transaction's record
// begins in the WAL, so a checkpoint can snapshot the set without
// walking the gxact table under its own lock. Built on
// puzpuzpuz/xsync, the same collaborator style as procarray and
// subxact.
package checkpointidx

import (
	"time"

	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/telemetry"
	"github.com/coralbase/twopc/wal"
	"github.com/puzpuzpuz/xsync/v3"
)

// Index is a concurrent xid -> begin-LSN map.
type Index struct {
	entries *xsync.MapOf[gxact.XID, wal.LSN]
}

// NewIndex returns an empty post-checkpoint index.
func NewIndex() *Index {
	return &Index{entries: xsync.NewMapOf[gxact.XID, wal.LSN]()}
}

// Insert records xid's begin LSN. It refuses to silently overwrite an
// existing entry for the same xid: a duplicate insert means the same
// prepared transaction was tracked twice, which the original silently
// tolerated but this index treats as a bug in the caller.
func (idx *Index) Insert(xid gxact.XID, lsn wal.LSN) error {
	if _, loaded := idx.entries.LoadOrStore(xid, lsn); loaded {
		telemetry.CheckpointDuplicateXIDTotal.Inc()
		return &DuplicateXIDError{XID: xid}
	}
	return nil
}

// Remove drops xid once its transaction has finished.
func (idx *Index) Remove(xid gxact.XID) {
	idx.entries.Delete(xid)
}

// Lookup returns xid's tracked begin LSN, if any.
func (idx *Index) Lookup(xid gxact.XID) (wal.LSN, bool) {
	return idx.entries.Load(xid)
}

// TrackedCount reports how many transactions are currently tracked,
// satisfying telemetry's CheckpointStatsProvider.
func (idx *Index) TrackedCount() int {
	return idx.entries.Size()
}

// Entry pairs an xid with its prepare record's begin LSN.
type Entry struct {
	XID gxact.XID
	LSN wal.LSN
}

// SnapshotForCheckpoint copies every tracked entry into the shape a
// checkpoint payload assembles, growing its backing array by doubling on
// overflow rather than relying on append's implicit growth strategy.
func (idx *Index) SnapshotForCheckpoint() []Entry {
	start := time.Now()
	defer func() { telemetry.CheckpointSnapshotSeconds.Observe(time.Since(start).Seconds()) }()

	out := make([]Entry, 0, 64)
	idx.entries.Range(func(xid gxact.XID, lsn wal.LSN) bool {
		if len(out) == cap(out) {
			grown := make([]Entry, len(out), cap(out)*2)
			copy(grown, out)
			out = grown
		}
		out = append(out, Entry{XID: xid, LSN: lsn})
		return true
	})
	return out
}

// FindMinLSN returns the smallest tracked begin LSN, used to clamp how
// much of the WAL can be retired. found is false when the index is
// empty.
func (idx *Index) FindMinLSN() (min wal.LSN, found bool) {
	idx.entries.Range(func(_ gxact.XID, lsn wal.LSN) bool {
		if !found || lsn.Less(min) {
			min = lsn
			found = true
		}
		return true
	})
	return min, found
}
