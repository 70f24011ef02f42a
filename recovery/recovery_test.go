package recovery

import (
	"testing"

	"github.com/coralbase/twopc/checkpointidx"
	"github.com/coralbase/twopc/clog"
	"github.com/coralbase/twopc/distribxact"
	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/hlc"
	"github.com/coralbase/twopc/procarray"
	"github.com/coralbase/twopc/rmgr"
	"github.com/coralbase/twopc/storage"
	"github.com/coralbase/twopc/subxact"
	"github.com/coralbase/twopc/twopc"
	"github.com/coralbase/twopc/wal"
	"github.com/coralbase/twopc/walrecord"
	"github.com/stretchr/testify/require"
)

func TestPrescanAndRecover(t *testing.T) {
	walLog, err := wal.Open(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = walLog.Close() })

	clogLog, err := clog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = clogLog.Close() })

	b := walrecord.NewBuilder(0)
	require.NoError(t, b.Start(500, 16384, 1, 10, "tx-recover", []gxact.XID{501, 502}, nil, nil))
	payload, err := b.Finish()
	require.NoError(t, err)

	begin, end, err := walLog.Insert(0, 0, payload)
	require.NoError(t, err)
	require.NoError(t, walLog.Flush(end))

	checkpoints := checkpointidx.NewIndex()
	require.NoError(t, checkpoints.Insert(500, begin))

	subxacts := subxact.NewMap()
	registry := rmgr.NewRegistry()
	driver := NewDriver(checkpoints, walLog, clogLog, subxacts, registry)

	prescan, err := driver.Prescan()
	require.NoError(t, err)
	require.Equal(t, gxact.XID(500), prescan.OldestInProgressXID)
	require.Equal(t, gxact.XID(503), prescan.NextXIDFloor)

	procs := procarray.NewTable()
	cracker := distribxact.NewCracker(hlc.NewClock(1))
	table := gxact.NewTable(4, 100, procs, cracker)

	require.NoError(t, driver.Recover(table, cracker))

	ref, err := table.Find("tx-recover")
	require.NoError(t, err)
	entry, err := table.Get(ref)
	require.NoError(t, err)
	require.True(t, entry.Valid)
	require.Equal(t, gxact.XID(500), entry.DummyProc.XID)

	require.Equal(t, gxact.XID(500), subxacts.TopParent(502))
}

func TestPrescan_SkipsAlreadyCommitted(t *testing.T) {
	walLog, err := wal.Open(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = walLog.Close() })

	clogLog, err := clog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = clogLog.Close() })

	b := walrecord.NewBuilder(0)
	require.NoError(t, b.Start(600, 16384, 1, 10, "tx-done", nil, nil, nil))
	payload, err := b.Finish()
	require.NoError(t, err)
	begin, end, err := walLog.Insert(0, 0, payload)
	require.NoError(t, err)
	require.NoError(t, walLog.Flush(end))

	require.NoError(t, clogLog.CommitTree(600, nil))

	checkpoints := checkpointidx.NewIndex()
	require.NoError(t, checkpoints.Insert(600, begin))

	driver := NewDriver(checkpoints, walLog, clogLog, subxact.NewMap(), rmgr.NewRegistry())
	prescan, err := driver.Prescan()
	require.NoError(t, err)
	require.Equal(t, gxact.XID(0), prescan.OldestInProgressXID)
}

// TestRecoverThenFinishPrepared covers scenario S5: a transaction prepared
// before a crash must be committable from a fresh session after restart,
// with no PANIC and no DataCorruptedError from finish_prepared's WAL read.
func TestRecoverThenFinishPrepared(t *testing.T) {
	walLog, err := wal.Open(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = walLog.Close() })

	clogLog, err := clog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = clogLog.Close() })

	unlinker, err := storage.NewUnlinker(t.TempDir())
	require.NoError(t, err)

	rel := gxact.RelFileNode{SpcOid: 1, DBOid: 2, RelOid: 3}
	f, err := unlinker.Open(rel, storage.ForkMain)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b := walrecord.NewBuilder(0)
	require.NoError(t, b.Start(700, 16384, 1, 10, "tx-B", nil, []gxact.RelFileNode{rel}, nil))
	payload, err := b.Finish()
	require.NoError(t, err)

	begin, end, err := walLog.Insert(0, 0, payload)
	require.NoError(t, err)
	require.NoError(t, walLog.Flush(end))

	checkpoints := checkpointidx.NewIndex()
	require.NoError(t, checkpoints.Insert(700, begin))

	subxacts := subxact.NewMap()
	registry := rmgr.NewRegistry()
	driver := NewDriver(checkpoints, walLog, clogLog, subxacts, registry)

	_, err = driver.Prescan()
	require.NoError(t, err)

	procs := procarray.NewTable()
	cracker := distribxact.NewCracker(hlc.NewClock(1))
	table := gxact.NewTable(4, 100, procs, cracker)

	require.NoError(t, driver.Recover(table, cracker))

	// A fresh session, exactly as if this were a new process after restart:
	// no reference to the recovery driver's Prescan/Recover state is used
	// below, only the collaborators recovery populated.
	sys := twopc.NewSubsystem(table, checkpoints, walLog, clogLog, unlinker, subxacts, registry, cracker, procs)

	found, err := sys.FinishPrepared("tx-B", 1, 10, 16384, false, false, true, true)
	require.NoError(t, err)
	require.True(t, found)

	didCommit, err := clogLog.DidCommit(700)
	require.NoError(t, err)
	require.True(t, didCommit)

	require.False(t, procs.IsRunning(700))

	_, ok := checkpoints.Lookup(700)
	require.False(t, ok)
}
