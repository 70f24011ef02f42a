package wal

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndReadRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, 0)
	require.NoError(t, err)
	defer log.Close()

	payload := []byte("prepare-record-payload")
	begin, end, err := log.Insert(1, 42, payload)
	require.NoError(t, err)
	require.True(t, begin.Less(end))
	require.Equal(t, begin, log.LastInsertBeginLSN())

	require.NoError(t, log.Flush(end))

	got, err := log.ReadRecord(begin)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadRecord_NotFound(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, 0)
	require.NoError(t, err)
	defer log.Close()

	_, err = log.ReadRecord(LSN{Segment: 99, Offset: 6})
	require.Error(t, err)
	var notFound *ErrRecordNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestReadRecord_Corrupted(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, 0)
	require.NoError(t, err)

	begin, _, err := log.Insert(1, 1, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, log.Close())

	path := segmentPath(dir, begin.Segment)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[begin.Offset+4] ^= 0xFF // flip a byte inside the frame body
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	log2, err := Open(dir, 0)
	require.NoError(t, err)
	defer log2.Close()

	_, err = log2.ReadRecord(begin)
	require.Error(t, err)
	var corrupted *ErrRecordCorrupted
	require.ErrorAs(t, err, &corrupted)
}

func TestRotationArchivesAndCompressesSegment(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, segmentHeaderSize+frameFixedSize+8)
	require.NoError(t, err)
	defer log.Close()

	first, _, err := log.Insert(1, 1, []byte("aaaaaaaa"))
	require.NoError(t, err)

	second, _, err := log.Insert(1, 1, []byte("bbbbbbbb"))
	require.NoError(t, err)
	require.NotEqual(t, first.Segment, second.Segment)

	got, err := log.ReadRecord(first)
	require.NoError(t, err)
	require.Equal(t, []byte("aaaaaaaa"), got)
}
