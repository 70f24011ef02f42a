package twopc

import "github.com/coralbase/twopc/telemetry"

// Cleanup implements the backend-scoped shutdown/abort hook from the
// design: a backend that dies holding a locked GXact either frees the
// entry (if the reservation never reached valid=true) or simply unlocks
// it for a future retry (if it was already durably prepared).
func (s *Subsystem) Cleanup(backend int) error {
	telemetry.BackendCleanupTotal.Inc()

	ref, ok := s.LockedRef(backend)
	if !ok {
		return nil
	}

	entry, err := s.table.Get(ref)
	if err != nil {
		// Entry already gone (finished by this same backend, most likely).
		s.clearLockedRef(backend)
		return nil
	}

	if !entry.Valid {
		if err := s.table.ReleaseAndRecycle(ref); err != nil {
			return err
		}
	} else {
		if err := s.table.ClearLockingBackend(ref); err != nil {
			return err
		}
	}

	s.clearLockedRef(backend)
	return nil
}

// RegisterShutdownHook arranges for fn to run exactly once per process,
// the first time it is called — matching the design's "registered
// exactly once per process, on first use" requirement without forcing
// every caller to reason about init ordering.
func (s *Subsystem) RegisterShutdownHook(fn func()) {
	s.shutdownHookOnce.Do(fn)
}
