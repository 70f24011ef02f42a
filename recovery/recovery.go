// Package recovery is the startup driver that rewalks the post-checkpoint
// index after a crash, reads each prepare record back from the WAL, and
// resurrects the GXact table before the system opens for writes.
package recovery

import (
	"time"

	"github.com/coralbase/twopc/checkpointidx"
	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/hlc"
	"github.com/coralbase/twopc/rmgr"
	"github.com/coralbase/twopc/subxact"
	"github.com/coralbase/twopc/telemetry"
	"github.com/coralbase/twopc/wal"
	"github.com/coralbase/twopc/walrecord"
)

// ClogReader answers whether an xid is known to have committed or
// aborted already, the predicate Prescan needs to decide whether a
// recovered xid still counts as in-progress.
type ClogReader interface {
	DidCommit(xid gxact.XID) (bool, error)
	DidAbort(xid gxact.XID) (bool, error)
}

// DistribXactCracker mirrors the contract twopc.DistribXactCracker
// exposes, without importing the twopc package (recovery runs before
// twopc's Subsystem exists).
type DistribXactCracker interface {
	CrackGID(gid string) (hlc.Timestamp, string, error)
}

// PrescanResult summarizes what Prescan observed across every tracked
// prepare record.
type PrescanResult struct {
	// OldestInProgressXID is the smallest xid found that clog does not yet
	// consider resolved. Zero if none were found.
	OldestInProgressXID gxact.XID
	// NextXIDFloor is one past the highest xid or subxact id seen across
	// every record, the value a fresh transaction-id cursor must not be
	// issued below.
	NextXIDFloor gxact.XID
}

// Driver runs the two-pass recovery sequence.
type Driver struct {
	checkpoints *checkpointidx.Index
	wal         wal.Writer
	clog        ClogReader
	subxacts    *subxact.Map
	rmgr        *rmgr.Registry
}

// NewDriver returns a recovery driver over the given collaborators.
func NewDriver(checkpoints *checkpointidx.Index, w wal.Writer, c ClogReader, sx *subxact.Map, r *rmgr.Registry) *Driver {
	return &Driver{checkpoints: checkpoints, wal: w, clog: c, subxacts: sx, rmgr: r}
}

// Prescan reads every tracked prepare record once, without touching the
// GXact table, to compute the oldest still-in-progress xid and the floor
// below which no subxact id may be reissued.
func (d *Driver) Prescan() (PrescanResult, error) {
	start := time.Now()
	defer func() { telemetry.RecoveryPrescanSeconds.Observe(time.Since(start).Seconds()) }()

	var result PrescanResult

	for _, entry := range d.checkpoints.SnapshotForCheckpoint() {
		payload, err := d.wal.ReadRecord(entry.LSN)
		if err != nil {
			return result, err
		}
		parsed, err := walrecord.Parse(payload)
		if err != nil {
			return result, err
		}

		committed, err := d.clog.DidCommit(parsed.Header.XID)
		if err != nil {
			return result, err
		}
		aborted, err := d.clog.DidAbort(parsed.Header.XID)
		if err != nil {
			return result, err
		}
		if !committed && !aborted {
			if result.OldestInProgressXID == 0 || parsed.Header.XID < result.OldestInProgressXID {
				result.OldestInProgressXID = parsed.Header.XID
			}
		}

		for _, sub := range parsed.Subxacts {
			if sub+1 > result.NextXIDFloor {
				result.NextXIDFloor = sub + 1
			}
		}
		if parsed.Header.XID+1 > result.NextXIDFloor {
			result.NextXIDFloor = parsed.Header.XID + 1
		}
	}

	telemetry.RecoveryOldestInProgressXID.Set(float64(result.OldestInProgressXID))
	return result, nil
}

// Recover re-reads every tracked prepare record and resurrects a GXact
// entry for each: the subxact tree is flattened directly to the top-level
// xid (the original hierarchy is not preserved, per the design note),
// the distributed xact id is cracked out of the GID, and every
// resource-manager sub-record is replayed through its recover callback.
// PrepareBeginLSN is restored from the checkpoint-index entry that led us
// here, so a later finish_prepared can still read the record back; only
// prepare_lsn (the WAL-insert end position) is left zero, since nothing
// but the next checkpoint's re-fsync decision depends on it.
func (d *Driver) Recover(table *gxact.Table, distrib DistribXactCracker) error {
	start := time.Now()
	defer func() { telemetry.RecoverySeconds.Observe(time.Since(start).Seconds()) }()

	for _, entry := range d.checkpoints.SnapshotForCheckpoint() {
		payload, err := d.wal.ReadRecord(entry.LSN)
		if err != nil {
			telemetry.RecoveryRecordsTotal.With("error").Inc()
			return err
		}
		parsed, err := walrecord.Parse(payload)
		if err != nil {
			telemetry.RecoveryRecordsTotal.With("error").Inc()
			return err
		}

		for _, sub := range parsed.Subxacts {
			d.subxacts.SetParent(sub, parsed.Header.XID)
		}

		if distrib != nil {
			if _, _, err := distrib.CrackGID(parsed.Header.GID); err != nil {
				telemetry.RecoveryRecordsTotal.With("error").Inc()
				return err
			}
		}

		const recoveryBackend = -2 // no real backend owns a recovered reservation
		ref, err := table.Reserve(recoveryBackend, parsed.Header.XID, parsed.Header.GID, parsed.Header.PreparedAt, parsed.Header.OwnerOid, parsed.Header.DatabaseOid)
		if err != nil {
			telemetry.RecoveryRecordsTotal.With("error").Inc()
			return err
		}
		if err := table.Update(ref, func(g *gxact.GXact) {
			g.CommitRels = parsed.CommitRels
			g.AbortRels = parsed.AbortRels
			g.DummyProc.Subxacts = parsed.Subxacts
			g.PrepareBeginLSN = entry.LSN
		}); err != nil {
			telemetry.RecoveryRecordsTotal.With("error").Inc()
			return err
		}
		if err := table.MarkValid(ref); err != nil {
			telemetry.RecoveryRecordsTotal.With("error").Inc()
			return err
		}
		if err := table.ClearLockingBackend(ref); err != nil {
			telemetry.RecoveryRecordsTotal.With("error").Inc()
			return err
		}

		for _, rm := range parsed.RMRecords {
			if err := d.rmgr.Recover(rm.RMID, rm.Info, rm.Data); err != nil {
				telemetry.RecoveryRecordsTotal.With("error").Inc()
				return err
			}
		}

		telemetry.RecoveryRecordsTotal.With("recovered").Inc()
	}

	return nil
}
