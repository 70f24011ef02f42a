package twopc

import (
	"time"

	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/telemetry"
	"github.com/coralbase/twopc/walrecord"
)

// Reserve allocates a GXact entry for a new prepared transaction and
// records it as the calling backend's currently-locked entry, so the
// backend-scoped cleanup hook can find it if the backend dies before
// end_prepare completes.
func (s *Subsystem) Reserve(backend int, xid gxact.XID, gid string, preparedAt int64, ownerOid, databaseOid uint32) (gxact.Ref, error) {
	ref, err := s.table.Reserve(backend, xid, gid, preparedAt, ownerOid, databaseOid)
	if err != nil {
		return -1, err
	}
	s.setLockedRef(backend, ref)
	return ref, nil
}

// EndPrepare drives a reserved GXact through WAL insertion and into the
// valid/prepared state, in the strict order the design requires: the
// post-checkpoint index is registered before the flush, so a concurrent
// checkpoint beginning after the flush is guaranteed to see the entry;
// mark_valid (and the process-array insert it triggers) happens before
// the locking backend pointer is reassigned, so no observer ever sees
// the xid as neither running nor prepared.
func (s *Subsystem) EndPrepare(backend int, ref gxact.Ref, payload []byte, ceilingBytes int) (err error) {
	start := time.Now()
	defer func() {
		telemetry.PrepareSeconds.Observe(time.Since(start).Seconds())
		if err != nil {
			telemetry.PrepareTotal.With("error").Inc()
		} else {
			telemetry.PrepareTotal.With("ok").Inc()
		}
	}()

	if ceilingBytes > 0 && len(payload) > ceilingBytes {
		err = &ProgramLimitExceededError{Len: len(payload), Ceiling: ceilingBytes}
		return err
	}

	s.setInCommit(backend, true)
	defer s.setInCommit(backend, false)

	begin, end, err := s.wal.Insert(RMIDTransaction, InfoPrepare, payload)
	if err != nil {
		return err
	}

	entry, err := s.table.Get(ref)
	if err != nil {
		s.panic("end_prepare: locked entry vanished after WAL insert", err)
		return err
	}

	parsed, err := walrecord.Parse(payload)
	if err != nil {
		s.panic("end_prepare: prepare record failed to parse immediately after writing it", err)
		return err
	}
	for _, sub := range parsed.Subxacts {
		s.subxacts.SetParent(sub, entry.DummyProc.XID)
	}

	if err := s.checkpoints.Insert(entry.DummyProc.XID, begin); err != nil {
		s.panic("end_prepare: post-checkpoint index rejected a fresh xid", err)
		return err
	}

	if err := s.wal.Flush(end); err != nil {
		s.panic("end_prepare: WAL flush failed after index registration", err)
		return err
	}

	// Step 5, wake WAL senders: no synchronous-replication collaborator in
	// this scope.

	if s.testInjectedPanic != nil {
		s.testInjectedPanic()
	}

	if err := s.table.Update(ref, func(g *gxact.GXact) {
		g.PrepareBeginLSN = begin
		g.PrepareLSN = end
	}); err != nil {
		s.panic("end_prepare: failed to record prepare LSNs", err)
		return err
	}

	if err := s.table.MarkValid(ref); err != nil {
		s.panic("end_prepare: mark_valid failed after WAL flush", err)
		return err
	}

	// Once prepared, the entry belongs to no backend in particular: any
	// backend must be able to issue the eventual commit/rollback, not just
	// the one that prepared it. Subsystem's own lockedByBackend bookkeeping
	// still remembers the ref for this backend's Cleanup hook.
	if err := s.table.ClearLockingBackend(ref); err != nil {
		s.panic("end_prepare: failed to release locking backend after mark_valid", err)
		return err
	}

	s.setLockedRef(backend, ref)

	// Step 10, synchronous-replication wait: no such collaborator in this
	// scope.

	return nil
}
