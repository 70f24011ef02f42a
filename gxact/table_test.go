package gxact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingProcArray struct {
	added   []DummyProc
	removed []DummyProc
}

func (p *recordingProcArray) Add(proc DummyProc) { p.added = append(p.added, proc) }
func (p *recordingProcArray) Remove(proc DummyProc, latestXID XID) {
	p.removed = append(p.removed, proc)
}

type recordingDistrib struct {
	prepared []string
}

func (d *recordingDistrib) MarkPrepared(gid string) { d.prepared = append(d.prepared, gid) }

func newTestTable(t *testing.T, capacity int) (*Table, *recordingProcArray, *recordingDistrib) {
	t.Helper()
	pa := &recordingProcArray{}
	db := &recordingDistrib{}
	return NewTable(capacity, 100, pa, db), pa, db
}

func TestReserve_DuplicateGID(t *testing.T) {
	table, _, _ := newTestTable(t, 8)

	_, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.NoError(t, err)

	_, err = table.Reserve(2, 101, "tx-A", 2, 7, 1)
	require.Error(t, err)
	var dup *DuplicateGIDError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, 1, table.Occupied())
}

func TestReserve_Exhaustion(t *testing.T) {
	table, _, _ := newTestTable(t, 2)

	ref1, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.NoError(t, err)
	_, err = table.Reserve(2, 101, "tx-B", 1, 7, 1)
	require.NoError(t, err)

	_, err = table.Reserve(3, 102, "tx-C", 1, 7, 1)
	require.Error(t, err)
	var full *TableFullError
	require.ErrorAs(t, err, &full)

	require.NoError(t, table.ReleaseAndRecycle(ref1))

	_, err = table.Reserve(3, 102, "tx-C", 1, 7, 1)
	require.NoError(t, err)
}

func TestReserve_Disabled(t *testing.T) {
	table, _, _ := newTestTable(t, 0)
	_, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.Error(t, err)
	var disabled *DisabledError
	require.ErrorAs(t, err, &disabled)
}

func TestReserve_GIDTooLong(t *testing.T) {
	table, _, _ := newTestTable(t, 8)
	longGID := make([]byte, GIDMaxBytes+1)
	_, err := table.Reserve(1, 100, string(longGID), 1, 7, 1)
	require.Error(t, err)
	var tooLong *GIDTooLongError
	require.ErrorAs(t, err, &tooLong)
}

func TestMarkValid_InsertsDummyProcAndMarksDistrib(t *testing.T) {
	table, pa, db := newTestTable(t, 4)
	ref, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.NoError(t, err)

	require.NoError(t, table.MarkValid(ref))

	entry, err := table.Get(ref)
	require.NoError(t, err)
	require.True(t, entry.Valid)
	require.Len(t, pa.added, 1)
	require.Equal(t, XID(100), pa.added[0].XID)
	require.Equal(t, []string{"tx-A"}, db.prepared)
}

func TestLockForFinish_Busy(t *testing.T) {
	table, _, _ := newTestTable(t, 4)
	ref, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.NoError(t, err)
	require.NoError(t, table.MarkValid(ref))
	require.NoError(t, table.ClearLockingBackend(ref))

	_, err = table.LockForFinish("tx-A", 2, 7, 1, false, false, true)
	require.NoError(t, err)

	_, err = table.LockForFinish("tx-A", 3, 7, 1, false, false, true)
	require.Error(t, err)
	var busy *BusyError
	require.ErrorAs(t, err, &busy)
}

func TestLockForFinish_InsufficientPrivilege(t *testing.T) {
	table, _, _ := newTestTable(t, 4)
	ref, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.NoError(t, err)
	require.NoError(t, table.MarkValid(ref))
	require.NoError(t, table.ClearLockingBackend(ref))

	_, err = table.LockForFinish("tx-A", 2, 999, 1, false, false, true)
	require.Error(t, err)
	var priv *InsufficientPrivilegeError
	require.ErrorAs(t, err, &priv)
}

func TestLockForFinish_CrossDatabaseRequiresCoordinatorMode(t *testing.T) {
	table, _, _ := newTestTable(t, 4)
	ref, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.NoError(t, err)
	require.NoError(t, table.MarkValid(ref))
	require.NoError(t, table.ClearLockingBackend(ref))

	_, err = table.LockForFinish("tx-A", 2, 7, 2, false, false, true)
	require.Error(t, err)
	var cross *CrossDatabaseError
	require.ErrorAs(t, err, &cross)

	_, err = table.LockForFinish("tx-A", 2, 7, 2, false, true, true)
	require.NoError(t, err)
}

func TestLockForFinish_MissingWithoutRaise(t *testing.T) {
	table, _, _ := newTestTable(t, 4)
	ref, err := table.LockForFinish("missing", 1, 7, 1, false, false, false)
	require.NoError(t, err)
	require.Equal(t, Ref(-1), ref)
}

func TestReleaseAndRecycle_SwapRemove(t *testing.T) {
	table, _, _ := newTestTable(t, 4)
	refA, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.NoError(t, err)
	refB, err := table.Reserve(2, 101, "tx-B", 1, 7, 1)
	require.NoError(t, err)
	_, err = table.Reserve(3, 102, "tx-C", 1, 7, 1)
	require.NoError(t, err)

	require.NoError(t, table.ReleaseAndRecycle(refA))
	require.Equal(t, 2, table.Occupied())

	snapshot := table.SnapshotAll()
	require.Len(t, snapshot, 2)

	_, err = table.Get(refB)
	require.NoError(t, err)

	_, err = table.Get(refA)
	require.Error(t, err)
}

func TestDummyProcFor_Memoizes(t *testing.T) {
	table, _, _ := newTestTable(t, 4)
	ref, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.NoError(t, err)
	require.NoError(t, table.MarkValid(ref))

	proc, ok := table.DummyProcFor(1, 100)
	require.True(t, ok)
	require.Equal(t, XID(100), proc.XID)

	// Second call for the same xid should hit the memoized entry rather
	// than rescan; behaviourally indistinguishable but exercised here for
	// coverage of the cache path.
	proc2, ok2 := table.DummyProcFor(1, 100)
	require.True(t, ok2)
	require.Equal(t, proc, proc2)

	_, ok3 := table.DummyProcFor(1, 999)
	require.False(t, ok3)
}

func TestAppendOnlyIntentCount(t *testing.T) {
	table, _, _ := newTestTable(t, 4)
	ref, err := table.Reserve(1, 100, "tx-A", 1, 7, 1)
	require.NoError(t, err)

	require.NoError(t, table.IncrAppendOnlyIntentCount(ref))
	require.NoError(t, table.IncrAppendOnlyIntentCount(ref))
	entry, err := table.Get(ref)
	require.NoError(t, err)
	require.Equal(t, 2, entry.AppendOnlyIntentCount)

	require.NoError(t, table.DecrAppendOnlyIntentCount(ref))
	entry, err = table.Get(ref)
	require.NoError(t, err)
	require.Equal(t, 1, entry.AppendOnlyIntentCount)
}
