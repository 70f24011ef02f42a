// Package walrecord assembles and parses the prepare-record binary
// payload: a fixed header, the subxact and rel-file arrays, a stream of
// resource-manager sub-records terminated by an end sentinel, and a
// trailing CRC32 — laid out the way the teacher's intent log frames its
// own records (magic + length-prefixed, checksummed body), generalized
// to the multi-segment shape the prepare record needs.
package walrecord

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/coralbase/twopc/gxact"
)

// Magic identifies a prepare-record payload.
const Magic uint32 = 0x57F94531

// GIDFieldBytes is the fixed, NUL-padded width of the gid field.
const GIDFieldBytes = 200

// EndRmid marks the end-of-sub-records sentinel.
const EndRmid uint8 = 0xFF

// Alignment is the byte boundary every segment is padded to.
const Alignment = 8

// HeaderSize is the fixed size of the leading header segment:
// magic(4) + total_len(4) + xid(4) + database_oid(4) + prepared_at(8) +
// owner_oid(4) + nsubxacts(4) + ncommit_rels(4) + nabort_rels(4) + gid(200).
const HeaderSize = 4 + 4 + 4 + 4 + 8 + 4 + 4 + 4 + 4 + GIDFieldBytes

// Builder is a process-local, single-use assembler for one prepare
// record. Start begins a build, Register appends resource-manager
// sub-records, and Finish seals the chain. A Builder must not be reused
// after Finish without calling Start again.
type Builder struct {
	buf      []byte
	started  bool
	finished bool
	ceiling  int
}

// NewBuilder returns an assembler that rejects payloads over ceilingBytes.
// A ceiling of 0 disables the check.
func NewBuilder(ceilingBytes int) *Builder {
	return &Builder{ceiling: ceilingBytes}
}

// Start writes the header and the subxact/commit-rel/abort-rel arrays,
// pulled from the caller's already-gathered collaborator data (the
// committed-children list and the pending-delete rel lists).
func (b *Builder) Start(
	xid gxact.XID,
	databaseOid uint32,
	preparedAt int64,
	ownerOid uint32,
	gid string,
	subxacts []gxact.XID,
	commitRels []gxact.RelFileNode,
	abortRels []gxact.RelFileNode,
) error {
	if len(gid) > gxact.GIDMaxBytes {
		return &GIDTooLongError{Len: len(gid)}
	}

	b.buf = make([]byte, HeaderSize, HeaderSize+64)
	b.started = true
	b.finished = false

	binary.LittleEndian.PutUint32(b.buf[0:4], Magic)
	// total_len is patched in Finish, once the chain is complete.
	binary.LittleEndian.PutUint32(b.buf[8:12], uint32(xid))
	binary.LittleEndian.PutUint32(b.buf[12:16], databaseOid)
	binary.LittleEndian.PutUint64(b.buf[16:24], uint64(preparedAt))
	binary.LittleEndian.PutUint32(b.buf[24:28], ownerOid)
	binary.LittleEndian.PutUint32(b.buf[28:32], uint32(len(subxacts)))
	binary.LittleEndian.PutUint32(b.buf[32:36], uint32(len(commitRels)))
	binary.LittleEndian.PutUint32(b.buf[36:40], uint32(len(abortRels)))
	copy(b.buf[40:40+GIDFieldBytes], gid)

	for _, x := range subxacts {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(x))
		b.buf = append(b.buf, tmp[:]...)
	}
	b.padToAlignment()

	for _, r := range commitRels {
		b.appendRelFileNode(r)
	}
	b.padToAlignment()

	for _, r := range abortRels {
		b.appendRelFileNode(r)
	}
	b.padToAlignment()

	if err := b.checkCeiling(); err != nil {
		b.reset()
		return err
	}

	return nil
}

// Register appends one resource-manager sub-record. A zero-length data
// slice is permitted; the end sentinel itself is appended by Finish, not
// by callers.
func (b *Builder) Register(rmid uint8, info uint16, data []byte) error {
	if !b.started || b.finished {
		return &BuildStateError{Op: "Register"}
	}

	var hdr [7]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(data)))
	hdr[4] = rmid
	binary.LittleEndian.PutUint16(hdr[5:7], info)

	b.buf = append(b.buf, hdr[:]...)
	b.buf = append(b.buf, data...)
	b.padToAlignment()

	if err := b.checkCeiling(); err != nil {
		b.reset()
		return err
	}
	return nil
}

// Finish appends the end sentinel, patches total_len, appends the
// trailing CRC32, and returns the completed chain. The builder is left
// unusable until Start is called again.
func (b *Builder) Finish() ([]byte, error) {
	if !b.started || b.finished {
		return nil, &BuildStateError{Op: "Finish"}
	}

	var end [7]byte
	end[4] = EndRmid
	b.buf = append(b.buf, end[:]...)
	b.padToAlignment()

	totalLen := len(b.buf) + 4 // + trailing CRC32
	if b.ceiling > 0 && totalLen > b.ceiling {
		b.reset()
		return nil, &PayloadTooLargeError{Len: totalLen, Ceiling: b.ceiling}
	}

	binary.LittleEndian.PutUint32(b.buf[4:8], uint32(totalLen))

	sum := crc32.ChecksumIEEE(b.buf)
	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], sum)
	b.buf = append(b.buf, crc[:]...)

	out := b.buf
	b.finished = true
	b.buf = nil
	return out, nil
}

func (b *Builder) appendRelFileNode(r gxact.RelFileNode) {
	var tmp [12]byte
	binary.LittleEndian.PutUint32(tmp[0:4], r.SpcOid)
	binary.LittleEndian.PutUint32(tmp[4:8], r.DBOid)
	binary.LittleEndian.PutUint32(tmp[8:12], r.RelOid)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Builder) padToAlignment() {
	if rem := len(b.buf) % Alignment; rem != 0 {
		b.buf = append(b.buf, make([]byte, Alignment-rem)...)
	}
}

func (b *Builder) checkCeiling() error {
	if b.ceiling > 0 && len(b.buf)+4 > b.ceiling {
		return &PayloadTooLargeError{Len: len(b.buf) + 4, Ceiling: b.ceiling}
	}
	return nil
}

func (b *Builder) reset() {
	b.buf = nil
	b.started = false
	b.finished = false
}
