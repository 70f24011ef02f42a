// Package subxact maps each subtransaction xid to its immediate parent,
// letting finish_prepared and the recovery driver flatten a
// subtransaction tree down to its top-level xid. Built on
// puzpuzpuz/xsync the same way procarray and checkpointidx are.
package subxact

import (
	"github.com/coralbase/twopc/gxact"
	"github.com/puzpuzpuz/xsync/v3"
)

// Map is a concurrent subxid -> parent xid index.
type Map struct {
	parent *xsync.MapOf[gxact.XID, gxact.XID]
}

// NewMap returns an empty parent-link map.
func NewMap() *Map {
	return &Map{parent: xsync.NewMapOf[gxact.XID, gxact.XID]()}
}

// SetParent records that subxid's parent is parent.
func (m *Map) SetParent(subxid, parent gxact.XID) {
	m.parent.Store(subxid, parent)
}

// ParentOf returns the recorded parent of subxid, if any.
func (m *Map) ParentOf(subxid gxact.XID) (gxact.XID, bool) {
	return m.parent.Load(subxid)
}

// Forget drops subxid's parent link once its tree has been finished.
func (m *Map) Forget(subxid gxact.XID) {
	m.parent.Delete(subxid)
}

// TopParent walks the parent chain from xid to the top-level xact that
// owns it, the xid a GXact is keyed by.
func (m *Map) TopParent(xid gxact.XID) gxact.XID {
	cur := xid
	for {
		p, ok := m.parent.Load(cur)
		if !ok {
			return cur
		}
		cur = p
	}
}
