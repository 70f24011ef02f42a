package twopc

import (
	"time"

	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/telemetry"
	"github.com/coralbase/twopc/walrecord"
)

// FinishPrepared drives a locked, valid GXact through COMMIT PREPARED or
// ROLLBACK PREPARED. Everything from entering the critical section
// (step 4) through leaving it (step 13) is a PANIC-on-failure region:
// the on-disk state may already be ahead of memory by the time any of
// those steps could fail, so an error there is routed through
// Subsystem.panic rather than returned for a caller to retry.
func (s *Subsystem) FinishPrepared(gid string, backend int, callerRole, callerDatabase uint32, superuser, coordinatorMode, isCommit, raiseIfMissing bool) (found bool, err error) {
	decision := "abort"
	if isCommit {
		decision = "commit"
	}

	start := time.Now()
	defer func() {
		telemetry.FinishSeconds.Observe(time.Since(start).Seconds())
		switch {
		case err != nil:
			telemetry.FinishTotal.With(decision, "error").Inc()
		case !found:
			telemetry.FinishTotal.With(decision, "missing").Inc()
		default:
			telemetry.FinishTotal.With(decision, "ok").Inc()
		}
	}()

	ref, err := s.table.LockForFinish(gid, backend, callerRole, callerDatabase, superuser, coordinatorMode, raiseIfMissing)
	if err != nil {
		return false, err
	}
	if ref == -1 {
		return false, nil
	}
	s.setLockedRef(backend, ref)

	entry, err := s.table.Get(ref)
	if err != nil {
		return false, err
	}

	payload, err := s.wal.ReadRecord(entry.PrepareBeginLSN)
	if err != nil {
		dcErr := &DataCorruptedError{GID: gid, Reason: err.Error()}
		s.panic("finish_prepared: failed to read prepare record from WAL", dcErr)
		return false, dcErr
	}

	parsed, err := walrecord.Parse(payload)
	if err != nil {
		dcErr := &DataCorruptedError{GID: gid, Reason: err.Error()}
		s.panic("finish_prepared: prepare record failed to parse", dcErr)
		return false, dcErr
	}
	if parsed.Header.XID != entry.DummyProc.XID {
		mismatch := &HeaderMismatchError{Expected: uint32(entry.DummyProc.XID), Got: uint32(parsed.Header.XID)}
		s.panic("finish_prepared: prepare record xid mismatch", mismatch)
		return false, mismatch
	}

	// Step 4: enter the critical section.
	s.setInCommit(backend, true)
	defer s.setInCommit(backend, false)

	now := time.Now().UnixNano()
	children := parsed.Subxacts
	rels := parsed.AbortRels
	if isCommit {
		rels = parsed.CommitRels
	}

	distribTimestamp, distribXID, err := s.distrib.CrackGID(gid)
	if err != nil {
		s.panic("finish_prepared: failed to crack distributed xact id", err)
		return false, err
	}

	var record []byte
	if isCommit {
		record = buildCommitPreparedRecord(parsed.Header.XID, distribTimestamp.WallTime, distribTimestamp.ToTxnID(), now, rels, children)
	} else {
		record = buildAbortPreparedRecord(parsed.Header.XID, now, rels, children)
	}

	info := InfoAbortPrepared
	if isCommit {
		info = InfoCommitPrepared
	}
	_, end, err := s.wal.Insert(RMIDTransaction, info, record)
	if err != nil {
		s.panic("finish_prepared: failed to insert commit/abort record", err)
		return false, err
	}
	if err := s.wal.Flush(end); err != nil {
		s.panic("finish_prepared: failed to flush commit/abort record", err)
		return false, err
	}

	// Step 6, wake WAL senders: no replication collaborator in this scope.
	if isCommit {
		if distribXID != "" {
			s.distrib.SetCommittedTree(distribXID, parsed.Header.XID, children, distribTimestamp)
		}
		if err := s.clog.CommitTree(parsed.Header.XID, children); err != nil {
			s.panic("finish_prepared: clog commit failed", err)
			return false, err
		}
	} else {
		if err := s.clog.AbortTree(parsed.Header.XID, children); err != nil {
			s.panic("finish_prepared: clog abort failed", err)
			return false, err
		}
	}

	latestXID := parsed.Header.XID
	for _, c := range children {
		if c > latestXID {
			latestXID = c
		}
	}
	s.procArray.Remove(entry.DummyProc, latestXID)

	if err := s.table.Update(ref, func(g *gxact.GXact) { g.Valid = false }); err != nil {
		s.panic("finish_prepared: failed to clear valid flag", err)
		return false, err
	}

	for _, rel := range rels {
		if err := s.storage.UnlinkAllForks(rel); err != nil {
			s.panic("finish_prepared: failed to unlink relation file", err)
			return false, err
		}
	}

	for _, rm := range parsed.RMRecords {
		var cbErr error
		if isCommit {
			cbErr = s.rmgr.PostCommit(rm.RMID, rm.Info, rm.Data)
		} else {
			cbErr = s.rmgr.PostAbort(rm.RMID, rm.Info, rm.Data)
		}
		if cbErr != nil {
			s.panic("finish_prepared: resource-manager callback failed", cbErr)
			return false, cbErr
		}
	}

	s.checkpoints.Remove(parsed.Header.XID)

	if err := s.table.ReleaseAndRecycle(ref); err != nil {
		s.panic("finish_prepared: failed to recycle entry", err)
		return false, err
	}
	s.clearLockedRef(backend)

	// Step 14, synchronous-replication wait: no such collaborator in this
	// scope.

	return true, nil
}

