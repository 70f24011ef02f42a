// Package clog is the commit-log collaborator: a durable XID status store
// answering "did this transaction commit or abort", backed by
// cockroachdb/pebble the way the teacher's meta store persists keyed
// status bytes.
package clog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/coralbase/twopc/gxact"
)

// Status is one of the four clog states from the glossary.
type Status byte

const (
	StatusInProgress   Status = 0
	StatusCommitted    Status = 1
	StatusAborted      Status = 2
	StatusSubCommitted Status = 3
)

const keyPrefix = "c/"

// Log is a pebble-backed commit log.
type Log struct {
	db *pebble.DB
}

// Open opens (or creates) a clog store rooted at dir.
func Open(dir string) (*Log, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Close releases the underlying pebble handle.
func (l *Log) Close() error { return l.db.Close() }

func key(xid gxact.XID) []byte {
	b := make([]byte, len(keyPrefix)+4)
	copy(b, keyPrefix)
	binary.BigEndian.PutUint32(b[len(keyPrefix):], uint32(xid))
	return b
}

func (l *Log) setTree(status Status, xid gxact.XID, children []gxact.XID) error {
	batch := l.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(key(xid), []byte{byte(status)}, nil); err != nil {
		return err
	}
	for _, c := range children {
		if err := batch.Set(key(c), []byte{byte(status)}, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// CommitTree marks xid and every child xid committed, in one batch.
func (l *Log) CommitTree(xid gxact.XID, children []gxact.XID) error {
	return l.setTree(StatusCommitted, xid, children)
}

// AbortTree marks xid and every child xid aborted, in one batch.
func (l *Log) AbortTree(xid gxact.XID, children []gxact.XID) error {
	return l.setTree(StatusAborted, xid, children)
}

func (l *Log) statusOf(xid gxact.XID) (Status, error) {
	v, closer, err := l.db.Get(key(xid))
	if err == pebble.ErrNotFound {
		return StatusInProgress, nil
	}
	if err != nil {
		return StatusInProgress, err
	}
	defer closer.Close()
	return Status(v[0]), nil
}

// DidCommit reports whether xid is recorded as committed.
func (l *Log) DidCommit(xid gxact.XID) (bool, error) {
	s, err := l.statusOf(xid)
	return s == StatusCommitted, err
}

// DidAbort reports whether xid is recorded as aborted.
func (l *Log) DidAbort(xid gxact.XID) (bool, error) {
	s, err := l.statusOf(xid)
	return s == StatusAborted, err
}
