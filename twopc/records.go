package twopc

import (
	"bytes"
	"encoding/binary"

	"github.com/coralbase/twopc/gxact"
)

// RMID identifies the resource manager that owns a WAL record's info code.
// The transaction manager itself is rmid 0, the same convention the
// resource-manager callback tables key their recover/post-commit/
// post-abort callbacks by.
const RMIDTransaction uint8 = 0

// Info codes for the three WAL record shapes the core emits, all under
// RMIDTransaction.
const (
	InfoPrepare        uint16 = 0
	InfoCommitPrepared uint16 = 1
	InfoAbortPrepared  uint16 = 2
)

// commitPreparedHeader is the leading fixed header of an
// XLOG_XACT_COMMIT_PREPARED record.
type commitPreparedHeader struct {
	XID              uint32
	DistribTimestamp int64
	DistribXID       uint64
	CommitTime       int64
	NRels            uint32
	NSubxacts        uint32
}

// abortPreparedHeader is the leading fixed header of an
// XLOG_XACT_ABORT_PREPARED record.
type abortPreparedHeader struct {
	XID       uint32
	AbortTime int64
	NRels     uint32
	NSubxacts uint32
}

func encodeRelFileNode(buf *bytes.Buffer, r gxact.RelFileNode) {
	binary.Write(buf, binary.LittleEndian, r.SpcOid)
	binary.Write(buf, binary.LittleEndian, r.DBOid)
	binary.Write(buf, binary.LittleEndian, r.RelOid)
}

func decodeRelFileNode(r *bytes.Reader) (gxact.RelFileNode, error) {
	var n gxact.RelFileNode
	if err := binary.Read(r, binary.LittleEndian, &n.SpcOid); err != nil {
		return n, err
	}
	if err := binary.Read(r, binary.LittleEndian, &n.DBOid); err != nil {
		return n, err
	}
	if err := binary.Read(r, binary.LittleEndian, &n.RelOid); err != nil {
		return n, err
	}
	return n, nil
}

// buildCommitPreparedRecord assembles the commit-prepared WAL payload.
func buildCommitPreparedRecord(xid gxact.XID, distribTimestamp int64, distribXID uint64, commitTime int64, rels []gxact.RelFileNode, subxacts []gxact.XID) []byte {
	buf := &bytes.Buffer{}
	hdr := commitPreparedHeader{
		XID:              uint32(xid),
		DistribTimestamp: distribTimestamp,
		DistribXID:       distribXID,
		CommitTime:       commitTime,
		NRels:            uint32(len(rels)),
		NSubxacts:        uint32(len(subxacts)),
	}
	binary.Write(buf, binary.LittleEndian, hdr)
	for _, r := range rels {
		encodeRelFileNode(buf, r)
	}
	for _, x := range subxacts {
		binary.Write(buf, binary.LittleEndian, uint32(x))
	}
	return buf.Bytes()
}

// buildAbortPreparedRecord assembles the abort-prepared WAL payload.
func buildAbortPreparedRecord(xid gxact.XID, abortTime int64, rels []gxact.RelFileNode, subxacts []gxact.XID) []byte {
	buf := &bytes.Buffer{}
	hdr := abortPreparedHeader{
		XID:       uint32(xid),
		AbortTime: abortTime,
		NRels:     uint32(len(rels)),
		NSubxacts: uint32(len(subxacts)),
	}
	binary.Write(buf, binary.LittleEndian, hdr)
	for _, r := range rels {
		encodeRelFileNode(buf, r)
	}
	for _, x := range subxacts {
		binary.Write(buf, binary.LittleEndian, uint32(x))
	}
	return buf.Bytes()
}

// ParsedCommitPrepared is a decoded commit-prepared WAL record, exported
// so tests (and, eventually, logical decoding) can verify its shape.
type ParsedCommitPrepared struct {
	XID              gxact.XID
	DistribTimestamp int64
	DistribXID       uint64
	CommitTime       int64
	Rels             []gxact.RelFileNode
	Subxacts         []gxact.XID
}

// ParseCommitPreparedRecord decodes a payload produced by
// buildCommitPreparedRecord.
func ParseCommitPreparedRecord(payload []byte) (*ParsedCommitPrepared, error) {
	r := bytes.NewReader(payload)
	var hdr commitPreparedHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	out := &ParsedCommitPrepared{
		XID:              gxact.XID(hdr.XID),
		DistribTimestamp: hdr.DistribTimestamp,
		DistribXID:       hdr.DistribXID,
		CommitTime:       hdr.CommitTime,
	}
	for i := uint32(0); i < hdr.NRels; i++ {
		rel, err := decodeRelFileNode(r)
		if err != nil {
			return nil, err
		}
		out.Rels = append(out.Rels, rel)
	}
	for i := uint32(0); i < hdr.NSubxacts; i++ {
		var x uint32
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return nil, err
		}
		out.Subxacts = append(out.Subxacts, gxact.XID(x))
	}
	return out, nil
}

// ParsedAbortPrepared is a decoded abort-prepared WAL record.
type ParsedAbortPrepared struct {
	XID       gxact.XID
	AbortTime int64
	Rels      []gxact.RelFileNode
	Subxacts  []gxact.XID
}

// ParseAbortPreparedRecord decodes a payload produced by
// buildAbortPreparedRecord.
func ParseAbortPreparedRecord(payload []byte) (*ParsedAbortPrepared, error) {
	r := bytes.NewReader(payload)
	var hdr abortPreparedHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	out := &ParsedAbortPrepared{
		XID:       gxact.XID(hdr.XID),
		AbortTime: hdr.AbortTime,
	}
	for i := uint32(0); i < hdr.NRels; i++ {
		rel, err := decodeRelFileNode(r)
		if err != nil {
			return nil, err
		}
		out.Rels = append(out.Rels, rel)
	}
	for i := uint32(0); i < hdr.NSubxacts; i++ {
		var x uint32
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return nil, err
		}
		out.Subxacts = append(out.Subxacts, gxact.XID(x))
	}
	return out, nil
}
