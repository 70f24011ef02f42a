package distribxact

import (
	"testing"

	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/hlc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCrackGID_PlainGIDIsNotDistributed(t *testing.T) {
	c := NewCracker(hlc.NewClock(1))
	ts, id, err := c.CrackGID("plain-gid-123")
	require.NoError(t, err)
	require.Empty(t, id)
	require.Zero(t, ts)
}

func TestCrackGID_Distributed(t *testing.T) {
	c := NewCracker(hlc.NewClock(1))
	u := uuid.New()
	gid := "dtx:" + u.String() + ":1700000000"

	ts, id, err := c.CrackGID(gid)
	require.NoError(t, err)
	require.Equal(t, u.String(), id)
	require.Equal(t, int64(1700000000), ts.WallTime)
}

func TestCrackGID_Malformed(t *testing.T) {
	c := NewCracker(hlc.NewClock(1))
	_, _, err := c.CrackGID("dtx:not-a-uuid:1700000000")
	require.Error(t, err)
	var malformed *MalformedGIDError
	require.ErrorAs(t, err, &malformed)
}

func TestSetAndGetCommittedTree(t *testing.T) {
	c := NewCracker(hlc.NewClock(1))
	ts := c.clock.Now()
	c.SetCommittedTree("dtx-1", 200, []gxact.XID{}, ts)

	tree, ok := c.CommittedTree("dtx-1")
	require.True(t, ok)
	require.Equal(t, uint32(200), uint32(tree.XID))
}
