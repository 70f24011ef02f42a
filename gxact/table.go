package gxact

import (
	"sync"
	"time"

	"github.com/coralbase/twopc/telemetry"
)

// ProcArray is the process-array collaborator contract this table needs:
// insert/remove the dummy process that keeps a prepared xact's XID
// visible as "still running" to every other backend.
type ProcArray interface {
	Add(proc DummyProc)
	Remove(proc DummyProc, latestXID XID)
}

// DistribXactTracker is the distributed-xact collaborator contract this
// table needs when flipping an entry from reserved to prepared.
type DistribXactTracker interface {
	MarkPrepared(gid string)
}

type cachedLookup struct {
	xid XID
	proc DummyProc
	ok   bool
}

// Table is the fixed-capacity slab of GXact descriptors. A freelist and a
// dense active array partition the slab; a single RWMutex guards every
// structural change. Capacity and each slot's DummyBackendID are fixed for
// the table's lifetime, assigned at construction time.
type Table struct {
	mu sync.RWMutex

	slots     []GXact
	free      []int
	active    []int
	activePos []int // slot index -> position in active, or -1

	capacity        int
	maxRealBackends int

	procArray ProcArray
	distrib   DistribXactTracker

	lastLookup sync.Map // backend id -> cachedLookup
}

// NewTable allocates a table with room for capacity prepared transactions.
// Each slot's dummy backend id is assigned once, in
// (maxRealBackends, maxRealBackends+capacity].
func NewTable(capacity, maxRealBackends int, procArray ProcArray, distrib DistribXactTracker) *Table {
	t := &Table{
		slots:           make([]GXact, capacity),
		free:            make([]int, 0, capacity),
		active:          make([]int, 0, capacity),
		activePos:       make([]int, capacity),
		capacity:        capacity,
		maxRealBackends: maxRealBackends,
		procArray:       procArray,
		distrib:         distrib,
	}
	for i := 0; i < capacity; i++ {
		t.slots[i].DummyBackendID = maxRealBackends + i + 1
		t.slots[i].LockingBackend = InvalidBackendID
		t.activePos[i] = -1
		t.free = append(t.free, i)
	}
	return t
}

// Capacity returns the slab's fixed size.
func (t *Table) Capacity() int { return t.capacity }

// Occupied returns the number of active entries, valid or reserved.
func (t *Table) Occupied() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}

// Reserve allocates a slot for a new prepared transaction and locks it to
// the calling backend. The entry starts invalid; MarkValid flips it once
// end_prepare's WAL write has landed.
func (t *Table) Reserve(backend int, xid XID, gid string, preparedAt int64, ownerOid, databaseOid uint32) (Ref, error) {
	if t.capacity == 0 {
		telemetry.GXactReservationsTotal.With("disabled").Inc()
		return -1, &DisabledError{}
	}
	if len(gid) > GIDMaxBytes {
		telemetry.GXactReservationsTotal.With("gid_too_long").Inc()
		return -1, &GIDTooLongError{Len: len(gid)}
	}

	lockWaitStart := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	telemetry.GXactLockWaitSeconds.Observe(time.Since(lockWaitStart).Seconds())

	for _, idx := range t.active {
		if t.slots[idx].GID == gid {
			telemetry.GXactReservationsTotal.With("duplicate_gid").Inc()
			return -1, &DuplicateGIDError{GID: gid}
		}
	}

	if len(t.free) == 0 {
		telemetry.GXactReservationsTotal.With("table_full").Inc()
		return -1, &TableFullError{Capacity: t.capacity}
	}

	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	dummyBackendID := t.slots[idx].DummyBackendID
	t.slots[idx] = GXact{
		DummyBackendID: dummyBackendID,
		PreparedAt:     preparedAt,
		OwnerOid:       ownerOid,
		LockingBackend: backend,
		Valid:          false,
		GID:            gid,
		DummyProc: DummyProc{
			XID:            xid,
			DatabaseOid:    databaseOid,
			OwnerOid:       ownerOid,
			DummyBackendID: dummyBackendID,
		},
	}

	t.activePos[idx] = len(t.active)
	t.active = append(t.active, idx)

	t.invalidateLookupLocked()

	telemetry.GXactReservationsTotal.With("ok").Inc()
	return Ref(idx), nil
}

// MarkValid flips an entry to valid, transitions the distributed-xact
// state, and inserts the dummy process into the process array — all
// under the table's exclusive lock, matching the ordering requirement
// that process-array insertion happen only after valid=true is visible.
func (t *Table) MarkValid(ref Ref) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, err := t.slotLocked(ref)
	if err != nil {
		return err
	}

	slot.Valid = true
	if t.distrib != nil {
		t.distrib.MarkPrepared(slot.GID)
	}
	if t.procArray != nil {
		t.procArray.Add(slot.DummyProc)
	}

	t.invalidateLookupLocked()
	return nil
}

// LockForFinish locates a valid entry by GID and locks it to callerBackend,
// enforcing ownership, privilege and database-scoping rules.
func (t *Table) LockForFinish(
	gid string,
	callerBackend int,
	callerRole uint32,
	callerDatabase uint32,
	superuser bool,
	coordinatorMode bool,
	raiseIfMissing bool,
) (Ref, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, idx := range t.active {
		slot := &t.slots[idx]
		if !slot.Valid || slot.GID != gid {
			continue
		}
		if slot.LockingBackend != InvalidBackendID {
			return -1, &BusyError{GID: gid}
		}
		if callerRole != slot.OwnerOid && !superuser {
			return -1, &InsufficientPrivilegeError{GID: gid}
		}
		if slot.DummyProc.DatabaseOid != callerDatabase && !coordinatorMode {
			return -1, &CrossDatabaseError{GID: gid}
		}
		slot.LockingBackend = callerBackend
		return Ref(idx), nil
	}

	if raiseIfMissing {
		return -1, &NotFoundError{GID: gid}
	}
	return -1, nil
}

// Find locates an entry by GID regardless of validity, for use only by the
// backend currently inside the prepare window for that GID.
func (t *Table) Find(gid string) (Ref, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, idx := range t.active {
		if t.slots[idx].GID == gid {
			return Ref(idx), nil
		}
	}
	return -1, &NotFoundError{GID: gid}
}

// Get returns a copy of the descriptor's observable fields.
func (t *Table) Get(ref Ref) (GXact, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	slot, err := t.slotLocked(ref)
	if err != nil {
		return GXact{}, err
	}
	return *slot, nil
}

// Update mutates a descriptor's payload fields under the table's exclusive
// lock. The spec models locking_backend as a logical per-entry mutex
// layered over the table lock; serializing all payload mutation through
// the same RWMutex is a strict superset of that guarantee and keeps the
// table free of a second lock class.
func (t *Table) Update(ref Ref, fn func(*GXact)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, err := t.slotLocked(ref)
	if err != nil {
		return err
	}
	fn(slot)
	return nil
}

// ClearLockingBackend releases ownership of an entry without recycling it,
// used by backend-scoped cleanup when the entry is already valid.
func (t *Table) ClearLockingBackend(ref Ref) error {
	return t.Update(ref, func(g *GXact) { g.LockingBackend = InvalidBackendID })
}

// IncrAppendOnlyIntentCount bumps the append-only resync guard counter.
func (t *Table) IncrAppendOnlyIntentCount(ref Ref) error {
	return t.Update(ref, func(g *GXact) { g.AppendOnlyIntentCount++ })
}

// DecrAppendOnlyIntentCount releases one unit of the append-only resync
// guard counter. It never goes negative.
func (t *Table) DecrAppendOnlyIntentCount(ref Ref) error {
	return t.Update(ref, func(g *GXact) {
		if g.AppendOnlyIntentCount > 0 {
			g.AppendOnlyIntentCount--
		}
	})
}

// ReleaseAndRecycle swap-removes an entry from the active array and pushes
// its slot back onto the freelist. Callers must have already removed the
// dummy process from the process array.
func (t *Table) ReleaseAndRecycle(ref Ref) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := int(ref)
	if idx < 0 || idx >= t.capacity || t.activePos[idx] == -1 {
		return &NotFoundError{}
	}

	pos := t.activePos[idx]
	last := len(t.active) - 1
	movedIdx := t.active[last]
	t.active[pos] = movedIdx
	t.activePos[movedIdx] = pos
	t.active = t.active[:last]
	t.activePos[idx] = -1

	dummyBackendID := t.slots[idx].DummyBackendID
	t.slots[idx] = GXact{DummyBackendID: dummyBackendID, LockingBackend: InvalidBackendID}
	t.free = append(t.free, idx)

	t.invalidateLookupLocked()
	return nil
}

// SnapshotAll copies every descriptor's observable fields under a shared
// lock, for the read-only prepared-transactions view.
func (t *Table) SnapshotAll() []GXact {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]GXact, 0, len(t.active))
	for _, idx := range t.active {
		out = append(out, t.slots[idx])
	}
	return out
}

// DummyProcFor looks up the dummy process owning xid, memoizing the last
// lookup per calling backend to avoid re-scanning on repeated calls for
// the same xid (recovery and finish both do this).
func (t *Table) DummyProcFor(callerBackend int, xid XID) (DummyProc, bool) {
	if v, ok := t.lastLookup.Load(callerBackend); ok {
		if c := v.(cachedLookup); c.xid == xid {
			return c.proc, c.ok
		}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, idx := range t.active {
		if t.slots[idx].DummyProc.XID == xid {
			proc := t.slots[idx].DummyProc
			t.lastLookup.Store(callerBackend, cachedLookup{xid: xid, proc: proc, ok: true})
			return proc, true
		}
	}

	t.lastLookup.Store(callerBackend, cachedLookup{xid: xid, ok: false})
	return DummyProc{}, false
}

func (t *Table) slotLocked(ref Ref) (*GXact, error) {
	idx := int(ref)
	if idx < 0 || idx >= t.capacity || t.activePos[idx] == -1 {
		return nil, &NotFoundError{}
	}
	return &t.slots[idx], nil
}

func (t *Table) invalidateLookupLocked() {
	t.lastLookup.Range(func(k, _ any) bool {
		t.lastLookup.Delete(k)
		return true
	})
}
