package checkpointidx

import (
	"testing"

	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/wal"
	"github.com/stretchr/testify/require"
)

func TestInsertRejectsDuplicate(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Insert(1, wal.LSN{Segment: 1, Offset: 10}))

	err := idx.Insert(1, wal.LSN{Segment: 1, Offset: 20})
	require.Error(t, err)
	var dup *DuplicateXIDError
	require.ErrorAs(t, err, &dup)

	require.Equal(t, 1, idx.TrackedCount())
}

func TestRemoveAndLookup(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Insert(1, wal.LSN{Segment: 1, Offset: 10}))

	lsn, ok := idx.Lookup(1)
	require.True(t, ok)
	require.Equal(t, uint32(10), lsn.Offset)

	idx.Remove(1)
	_, ok = idx.Lookup(1)
	require.False(t, ok)
	require.Equal(t, 0, idx.TrackedCount())
}

func TestSnapshotForCheckpointGrowsPastInitialCapacity(t *testing.T) {
	idx := NewIndex()
	for i := uint32(1); i <= 200; i++ {
		require.NoError(t, idx.Insert(gxact.XID(i), wal.LSN{Segment: 1, Offset: i}))
	}

	snap := idx.SnapshotForCheckpoint()
	require.Len(t, snap, 200)
}

func TestFindMinLSN(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Insert(1, wal.LSN{Segment: 2, Offset: 100}))
	require.NoError(t, idx.Insert(2, wal.LSN{Segment: 1, Offset: 50}))
	require.NoError(t, idx.Insert(3, wal.LSN{Segment: 1, Offset: 200}))

	min, ok := idx.FindMinLSN()
	require.True(t, ok)
	require.Equal(t, wal.LSN{Segment: 1, Offset: 50}, min)
}

func TestFindMinLSN_Empty(t *testing.T) {
	idx := NewIndex()
	_, ok := idx.FindMinLSN()
	require.False(t, ok)
}
