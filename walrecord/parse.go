package walrecord

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/coralbase/twopc/gxact"
)

// Header is the parsed fixed leading segment of a prepare record.
type Header struct {
	XID         gxact.XID
	DatabaseOid uint32
	PreparedAt  int64
	OwnerOid    uint32
	GID         string
}

// RMRecord is one parsed resource-manager sub-record.
type RMRecord struct {
	RMID uint8
	Info uint16
	Data []byte
}

// Parsed is a fully decoded prepare record, ready for replay by
// finish_prepared or the recovery driver.
type Parsed struct {
	Header     Header
	Subxacts   []gxact.XID
	CommitRels []gxact.RelFileNode
	AbortRels  []gxact.RelFileNode
	RMRecords  []RMRecord
}

// Parse validates and decodes a prepare-record payload as produced by
// Builder.Finish. Any structural or checksum failure is reported as a
// *CorruptError — the caller (finish_prepared) is expected to escalate
// that to a fatal, operator-visible condition.
func Parse(payload []byte) (*Parsed, error) {
	if len(payload) < HeaderSize+4 {
		return nil, &CorruptError{Reason: "payload shorter than the fixed header"}
	}
	if binary.LittleEndian.Uint32(payload[0:4]) != Magic {
		return nil, &CorruptError{Reason: "bad magic"}
	}

	totalLen := binary.LittleEndian.Uint32(payload[4:8])
	if int(totalLen) != len(payload) {
		return nil, &CorruptError{Reason: "total_len does not match payload length"}
	}

	body := payload[:len(payload)-4]
	wantSum := binary.LittleEndian.Uint32(payload[len(payload)-4:])
	if crc32.ChecksumIEEE(body) != wantSum {
		return nil, &CorruptError{Reason: "crc32 mismatch"}
	}

	h := Header{
		XID:         gxact.XID(binary.LittleEndian.Uint32(payload[8:12])),
		DatabaseOid: binary.LittleEndian.Uint32(payload[12:16]),
		PreparedAt:  int64(binary.LittleEndian.Uint64(payload[16:24])),
		OwnerOid:    binary.LittleEndian.Uint32(payload[24:28]),
	}
	nsubxacts := binary.LittleEndian.Uint32(payload[28:32])
	ncommit := binary.LittleEndian.Uint32(payload[32:36])
	nabort := binary.LittleEndian.Uint32(payload[36:40])

	gidBytes := payload[40 : 40+GIDFieldBytes]
	h.GID = string(gidBytes[:nulIndex(gidBytes)])

	off := HeaderSize

	subxacts := make([]gxact.XID, nsubxacts)
	for i := range subxacts {
		if off+4 > len(body) {
			return nil, &CorruptError{Reason: "truncated subxact array"}
		}
		subxacts[i] = gxact.XID(binary.LittleEndian.Uint32(payload[off : off+4]))
		off += 4
	}
	off = alignUp(off)

	commitRels := make([]gxact.RelFileNode, ncommit)
	for i := range commitRels {
		if off+12 > len(body) {
			return nil, &CorruptError{Reason: "truncated commit-rel array"}
		}
		commitRels[i] = readRelFileNode(payload[off : off+12])
		off += 12
	}
	off = alignUp(off)

	abortRels := make([]gxact.RelFileNode, nabort)
	for i := range abortRels {
		if off+12 > len(body) {
			return nil, &CorruptError{Reason: "truncated abort-rel array"}
		}
		abortRels[i] = readRelFileNode(payload[off : off+12])
		off += 12
	}
	off = alignUp(off)

	var rmRecords []RMRecord
	for {
		if off+7 > len(body) {
			return nil, &CorruptError{Reason: "truncated resource-manager sub-record stream"}
		}

		length := binary.LittleEndian.Uint32(payload[off : off+4])
		rmid := payload[off+4]
		info := binary.LittleEndian.Uint16(payload[off+5 : off+7])
		off += 7

		if rmid == EndRmid {
			break
		}

		if off+int(length) > len(body) {
			return nil, &CorruptError{Reason: "truncated resource-manager sub-record payload"}
		}

		data := make([]byte, length)
		copy(data, payload[off:off+int(length)])
		off += int(length)
		off = alignUp(off)

		rmRecords = append(rmRecords, RMRecord{RMID: rmid, Info: info, Data: data})
	}

	return &Parsed{
		Header:     h,
		Subxacts:   subxacts,
		CommitRels: commitRels,
		AbortRels:  abortRels,
		RMRecords:  rmRecords,
	}, nil
}

func readRelFileNode(b []byte) gxact.RelFileNode {
	return gxact.RelFileNode{
		SpcOid: binary.LittleEndian.Uint32(b[0:4]),
		DBOid:  binary.LittleEndian.Uint32(b[4:8]),
		RelOid: binary.LittleEndian.Uint32(b[8:12]),
	}
}

func alignUp(off int) int {
	if rem := off % Alignment; rem != 0 {
		return off + (Alignment - rem)
	}
	return off
}

func nulIndex(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}
