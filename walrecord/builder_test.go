package walrecord

import (
	"testing"

	"github.com/coralbase/twopc/gxact"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_HeaderAndArrays(t *testing.T) {
	b := NewBuilder(0)

	subxacts := []gxact.XID{201, 202}
	commitRels := []gxact.RelFileNode{{SpcOid: 1, DBOid: 2, RelOid: 3}}
	abortRels := []gxact.RelFileNode{{SpcOid: 4, DBOid: 5, RelOid: 6}}

	require.NoError(t, b.Start(200, 16384, 1234567890, 10, "tx-B", subxacts, commitRels, abortRels))
	require.NoError(t, b.Register(1, 7, []byte("lock-state")))
	require.NoError(t, b.Register(2, 0, nil))

	payload, err := b.Finish()
	require.NoError(t, err)

	parsed, err := Parse(payload)
	require.NoError(t, err)

	require.Equal(t, gxact.XID(200), parsed.Header.XID)
	require.Equal(t, uint32(16384), parsed.Header.DatabaseOid)
	require.Equal(t, int64(1234567890), parsed.Header.PreparedAt)
	require.Equal(t, uint32(10), parsed.Header.OwnerOid)
	require.Equal(t, "tx-B", parsed.Header.GID)

	require.Equal(t, subxacts, parsed.Subxacts)
	require.Equal(t, commitRels, parsed.CommitRels)
	require.Equal(t, abortRels, parsed.AbortRels)

	require.Len(t, parsed.RMRecords, 2)
	require.Equal(t, uint8(1), parsed.RMRecords[0].RMID)
	require.Equal(t, uint16(7), parsed.RMRecords[0].Info)
	require.Equal(t, []byte("lock-state"), parsed.RMRecords[0].Data)
	require.Equal(t, uint8(2), parsed.RMRecords[1].RMID)
	require.Empty(t, parsed.RMRecords[1].Data)
}

func TestStart_GIDTooLong(t *testing.T) {
	b := NewBuilder(0)
	longGID := make([]byte, gxact.GIDMaxBytes+1)
	err := b.Start(1, 1, 1, 1, string(longGID), nil, nil, nil)
	require.Error(t, err)
	var tooLong *GIDTooLongError
	require.ErrorAs(t, err, &tooLong)
}

func TestStart_PayloadTooLarge(t *testing.T) {
	b := NewBuilder(HeaderSize) // ceiling smaller than even the bare header + CRC
	err := b.Start(1, 1, 1, 1, "tx-small", nil, nil, nil)
	require.Error(t, err)
	var tooLarge *PayloadTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestRegisterWithoutStart(t *testing.T) {
	b := NewBuilder(0)
	err := b.Register(1, 1, nil)
	require.Error(t, err)
	var state *BuildStateError
	require.ErrorAs(t, err, &state)
}

func TestFinish_ClearsStateForReuse(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.Start(1, 1, 1, 1, "tx-A", nil, nil, nil))
	_, err := b.Finish()
	require.NoError(t, err)

	_, err = b.Finish()
	require.Error(t, err)

	require.NoError(t, b.Start(2, 1, 1, 1, "tx-B", nil, nil, nil))
	payload, err := b.Finish()
	require.NoError(t, err)
	parsed, err := Parse(payload)
	require.NoError(t, err)
	require.Equal(t, gxact.XID(2), parsed.Header.XID)
}

func TestParse_RejectsBadMagic(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.Start(1, 1, 1, 1, "tx-A", nil, nil, nil))
	payload, err := b.Finish()
	require.NoError(t, err)

	payload[0] ^= 0xFF
	_, err = Parse(payload)
	require.Error(t, err)
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
}

func TestParse_RejectsBadChecksum(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.Start(1, 1, 1, 1, "tx-A", nil, nil, nil))
	payload, err := b.Finish()
	require.NoError(t, err)

	payload[len(payload)-5] ^= 0xFF
	_, err = Parse(payload)
	require.Error(t, err)
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
}
