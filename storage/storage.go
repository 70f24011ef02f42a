// Package storage is the file-unlink collaborator: it maps a
// gxact.RelFileNode and fork onto an on-disk path and owns the delete
// step of finish_prepared's post-commit and post-abort relation
// cleanup, in the teacher's plain os.* style (the pack carries no
// dedicated filesystem library for this concern).
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coralbase/twopc/gxact"
)

// Fork distinguishes the physical files associated with one relation.
// finish_prepared removes all four forks of every relation it drops, via
// UnlinkAllForks.
type Fork int

const (
	ForkMain Fork = iota
	ForkFSM
	ForkVM
	ForkInit
)

func (f Fork) suffix() string {
	switch f {
	case ForkFSM:
		return "fsm"
	case ForkVM:
		return "vm"
	case ForkInit:
		return "init"
	default:
		return "main"
	}
}

// Unlinker deletes relation files rooted under baseDir.
type Unlinker struct {
	baseDir string
}

// NewUnlinker returns an Unlinker rooted at baseDir, creating it if
// necessary.
func NewUnlinker(baseDir string) (*Unlinker, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &Unlinker{baseDir: baseDir}, nil
}

func (u *Unlinker) path(rel gxact.RelFileNode, fork Fork) string {
	name := fmt.Sprintf("%d_%d_%d.%s", rel.SpcOid, rel.DBOid, rel.RelOid, fork.suffix())
	return filepath.Join(u.baseDir, name)
}

// Open opens the fork's file for reading and writing, creating it if absent.
func (u *Unlinker) Open(rel gxact.RelFileNode, fork Fork) (*os.File, error) {
	return os.OpenFile(u.path(rel, fork), os.O_RDWR|os.O_CREATE, 0o644)
}

// Unlink removes the fork's file. A missing file is not an error: the
// post-commit/post-abort cleanup step must be idempotent against crash
// replay.
func (u *Unlinker) Unlink(rel gxact.RelFileNode, fork Fork) error {
	if err := os.Remove(u.path(rel, fork)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// UnlinkAllForks removes every fork of rel.
func (u *Unlinker) UnlinkAllForks(rel gxact.RelFileNode) error {
	for _, fork := range []Fork{ForkMain, ForkFSM, ForkVM, ForkInit} {
		if err := u.Unlink(rel, fork); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op: this collaborator does not cache open handles across
// calls, only per-call *os.File ownership returned to the caller.
func (u *Unlinker) Close(rel gxact.RelFileNode) error { return nil }
