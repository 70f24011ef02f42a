// Package distribxact is the coordinator-mode distributed-transaction
// collaborator: it cracks a GID that embeds a distributed transaction id
// into its timestamp/id components, and later records which local xid
// tree corresponds to which distributed commit decision. It satisfies
// gxact.DistribXactTracker and uses the same hlc.Clock id/stamps as
// the id package's generator.
package distribxact

import (
	"strconv"
	"strings"
	"sync"

	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/hlc"
	"github.com/google/uuid"
)

// gidPrefix marks a GID as carrying an embedded distributed-transaction
// component, in the form "dtx:<uuid>:<nanos>".
const gidPrefix = "dtx:"

// CommittedTree records one distributed transaction's local commit
// decision: which xid and subxact children backed it, stamped with the
// timestamp the caller passes to SetCommittedTree (finish_prepared passes
// the one CrackGID read out of the GID).
type CommittedTree struct {
	DistribXID string
	Timestamp  hlc.Timestamp
	XID        gxact.XID
	Children   []gxact.XID
}

// Cracker parses distributed-transaction ids out of GIDs and tracks
// committed trees for already-prepared coordinator-mode transactions.
type Cracker struct {
	clock *hlc.Clock

	mu        sync.Mutex
	committed map[string]CommittedTree
	prepared  map[string]struct{}
}

// NewCracker returns a distributed-transaction tracker stamped by clock.
func NewCracker(clock *hlc.Clock) *Cracker {
	return &Cracker{
		clock:     clock,
		committed: make(map[string]CommittedTree),
		prepared:  make(map[string]struct{}),
	}
}

// CrackGID parses a coordinator-mode GID's embedded distributed
// transaction id. GIDs without the "dtx:" prefix are ordinary,
// single-database prepared transactions: CrackGID returns the zero
// timestamp, an empty id, and no error for them. The timestamp returned
// is the one embedded in the GID at prepare time, not the current clock
// reading — finish_prepared and recovery both need the original moment
// the coordinator stamped the distributed decision, not wall-clock-now.
func (c *Cracker) CrackGID(gid string) (hlc.Timestamp, string, error) {
	if !strings.HasPrefix(gid, gidPrefix) {
		return hlc.Timestamp{}, "", nil
	}

	parts := strings.SplitN(gid, ":", 3)
	if len(parts) != 3 {
		return hlc.Timestamp{}, "", &MalformedGIDError{GID: gid}
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return hlc.Timestamp{}, "", &MalformedGIDError{GID: gid}
	}
	nanos, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return hlc.Timestamp{}, "", &MalformedGIDError{GID: gid}
	}

	return hlc.Timestamp{WallTime: nanos}, parts[1], nil
}

// MarkPrepared satisfies gxact.DistribXactTracker: it records gid in the
// set of GIDs the table has marked valid. Nothing in this package reads
// that set back; commit decisions are recorded by SetCommittedTree.
func (c *Cracker) MarkPrepared(gid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepared[gid] = struct{}{}
}

// SetCommittedTree records that distribXID's local xid tree committed.
func (c *Cracker) SetCommittedTree(distribXID string, xid gxact.XID, children []gxact.XID, ts hlc.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed[distribXID] = CommittedTree{
		DistribXID: distribXID,
		Timestamp:  ts,
		XID:        xid,
		Children:   children,
	}
}

// CommittedTree returns the recorded committed tree for distribXID, if
// any.
func (c *Cracker) CommittedTree(distribXID string) (CommittedTree, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.committed[distribXID]
	return t, ok
}

var _ gxact.DistribXactTracker = (*Cracker)(nil)
