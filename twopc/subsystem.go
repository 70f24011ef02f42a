package twopc

import (
	"sync"

	"github.com/coralbase/twopc/checkpointidx"
	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/hlc"
	"github.com/coralbase/twopc/wal"
	"github.com/rs/zerolog/log"
)

// ClogWriter is the commit-log collaborator contract this subsystem needs.
type ClogWriter interface {
	CommitTree(xid gxact.XID, children []gxact.XID) error
	AbortTree(xid gxact.XID, children []gxact.XID) error
}

// StorageUnlinker is the storage collaborator contract this subsystem
// needs to drop commit/abort relation files.
type StorageUnlinker interface {
	UnlinkAllForks(rel gxact.RelFileNode) error
}

// SubxactMap is the subtransaction collaborator contract this subsystem
// needs to record the parent links of a prepare record's subxacts during
// end_prepare.
type SubxactMap interface {
	SetParent(subxid, parent gxact.XID)
}

// RMGRDispatcher is the resource-manager collaborator contract this
// subsystem needs for recovery replay and post-commit/post-abort cleanup.
type RMGRDispatcher interface {
	Recover(rmid uint8, info uint16, data []byte) error
	PostCommit(rmid uint8, info uint16, data []byte) error
	PostAbort(rmid uint8, info uint16, data []byte) error
}

// DistribXactCracker is the distributed-xact collaborator contract this
// subsystem needs, beyond gxact.DistribXactTracker's MarkPrepared.
type DistribXactCracker interface {
	CrackGID(gid string) (hlc.Timestamp, string, error)
	SetCommittedTree(distribXID string, xid gxact.XID, children []gxact.XID, ts hlc.Timestamp)
}

// PanicFunc terminates the process in response to an unrecoverable error
// inside a critical section. The default implementation logs at fatal
// level and exits; tests substitute a function that instead records the
// call and returns, so the PANIC-region contract can be asserted without
// actually killing the test binary.
type PanicFunc func(reason string, err error)

func defaultPanic(reason string, err error) {
	log.Fatal().Err(err).Str("reason", reason).Msg("twopc: unrecoverable error in critical section")
}

// Subsystem is the process-wide handle owning the GXact table, the
// post-checkpoint index, and every collaborator the prepare/finish state
// machine drives — the explicit container the design notes call for in
// place of scattered mutable singletons.
type Subsystem struct {
	table       *gxact.Table
	checkpoints *checkpointidx.Index
	wal         wal.Writer
	clog        ClogWriter
	storage     StorageUnlinker
	subxacts    SubxactMap
	rmgr        RMGRDispatcher
	distrib     DistribXactCracker
	procArray   gxact.ProcArray

	panic PanicFunc

	mu              sync.Mutex
	lockedByBackend map[int]gxact.Ref
	inCommit        map[int]bool

	shutdownHookOnce sync.Once

	// testInjectedPanic, when set, is invoked at the point in end_prepare
	// where the design allows an injected crash for recovery tests. Nil in
	// production.
	testInjectedPanic func()
}

// Option configures a Subsystem at construction time.
type Option func(*Subsystem)

// WithPanicFunc overrides the PANIC-region handler, primarily for tests.
func WithPanicFunc(fn PanicFunc) Option {
	return func(s *Subsystem) { s.panic = fn }
}

// WithInjectedPanic installs a hook fired at end_prepare's step 6,
// exactly where the design calls for an optional injected panic so
// crash-recovery tests can simulate a kill between WAL flush and
// mark_valid.
func WithInjectedPanic(fn func()) Option {
	return func(s *Subsystem) { s.testInjectedPanic = fn }
}

// NewSubsystem wires the GXact table and every collaborator together.
func NewSubsystem(
	table *gxact.Table,
	checkpoints *checkpointidx.Index,
	w wal.Writer,
	c ClogWriter,
	st StorageUnlinker,
	sx SubxactMap,
	r RMGRDispatcher,
	d DistribXactCracker,
	procArray gxact.ProcArray,
	opts ...Option,
) *Subsystem {
	s := &Subsystem{
		table:           table,
		checkpoints:     checkpoints,
		wal:             w,
		clog:            c,
		storage:         st,
		subxacts:        sx,
		rmgr:            r,
		distrib:         d,
		procArray:       procArray,
		panic:           defaultPanic,
		lockedByBackend: make(map[int]gxact.Ref),
		inCommit:        make(map[int]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table exposes the underlying GXact table, e.g. for adminview's
// read-only snapshot.
func (s *Subsystem) Table() *gxact.Table { return s.table }

// Checkpoints exposes the post-checkpoint index, e.g. for the
// checkpointer to call SnapshotForCheckpoint/FindMinLSN.
func (s *Subsystem) Checkpoints() *checkpointidx.Index { return s.checkpoints }

func (s *Subsystem) setInCommit(backend int, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v {
		s.inCommit[backend] = true
	} else {
		delete(s.inCommit, backend)
	}
}

// InCommit reports whether backend is currently inside end_prepare's or
// finish_prepared's critical section, the signal the checkpointer uses to
// decide whether to wait before completing.
func (s *Subsystem) InCommit(backend int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inCommit[backend]
}

func (s *Subsystem) setLockedRef(backend int, ref gxact.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockedByBackend[backend] = ref
}

func (s *Subsystem) clearLockedRef(backend int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lockedByBackend, backend)
}

// LockedRef returns the GXact the given backend currently holds locked,
// if any.
func (s *Subsystem) LockedRef(backend int) (gxact.Ref, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.lockedByBackend[backend]
	return ref, ok
}
