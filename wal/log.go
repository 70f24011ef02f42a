package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	segmentMagic      uint32 = 0x57414C30 // "WAL0"
	segmentVersion    uint16 = 1
	segmentHeaderSize        = 6
	frameFixedSize           = 4 + 1 + 2 + 4 // len + rmid + info + crc32
)

var _ Writer = (*Log)(nil)

// Log is a segmented, file-backed WAL. The active segment is a plain file;
// once it grows past the configured ceiling it is rotated out and
// compressed with zstd, following the teacher's general posture of using
// klauspost/compress for at-rest compression of cold data.
type Log struct {
	mu sync.Mutex

	dir     string
	ceiling int64

	activeID   uint32
	activeFile *os.File
	offset     uint32

	lastBegin LSN

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func segmentPath(dir string, id uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%08x.wal", id))
}

func archivePath(dir string, id uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%08x.wal.zst", id))
}

// Open opens (or creates) a WAL directory, resuming at the most recent
// active segment if one exists.
func Open(dir string, ceilingBytes int) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("wal: init compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("wal: init decompressor: %w", err)
	}

	l := &Log{dir: dir, ceiling: int64(ceilingBytes), encoder: enc, decoder: dec}

	latest, found, err := latestActiveSegment(dir)
	if err != nil {
		return nil, err
	}
	if found {
		if err := l.resumeSegment(latest); err != nil {
			return nil, err
		}
	} else if err := l.createSegment(0); err != nil {
		return nil, err
	}

	return l, nil
}

func latestActiveSegment(dir string) (uint32, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, false, fmt.Errorf("wal: list dir: %w", err)
	}

	var ids []uint32
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".wal") || strings.HasSuffix(name, ".wal.zst") {
			continue
		}
		var id uint32
		if _, err := fmt.Sscanf(name, "%08x.wal", &id); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[len(ids)-1], true, nil
}

func (l *Log) createSegment(id uint32) error {
	f, err := os.OpenFile(segmentPath(l.dir, id), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("wal: create segment %d: %w", id, err)
	}

	hdr := make([]byte, segmentHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], segmentMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], segmentVersion)
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return fmt.Errorf("wal: write segment header: %w", err)
	}

	l.activeFile = f
	l.activeID = id
	l.offset = segmentHeaderSize
	return nil
}

func (l *Log) resumeSegment(id uint32) error {
	f, err := os.OpenFile(segmentPath(l.dir, id), os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open segment %d: %w", id, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("wal: stat segment %d: %w", id, err)
	}

	l.activeFile = f
	l.activeID = id
	l.offset = uint32(info.Size())
	return nil
}

// Insert appends a framed, CRC32-checked record to the active segment,
// rotating the segment first if it would grow past the configured
// ceiling.
func (l *Log) Insert(rmid uint8, info uint16, chain []byte) (begin, end LSN, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ceiling > 0 && int64(l.offset)+int64(frameFixedSize)+int64(len(chain)) > l.ceiling {
		if err := l.rotateLocked(); err != nil {
			return LSN{}, LSN{}, err
		}
	}

	begin = LSN{Segment: l.activeID, Offset: l.offset}

	frame := make([]byte, frameFixedSize+len(chain))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(3+len(chain)))
	frame[4] = rmid
	binary.LittleEndian.PutUint16(frame[5:7], info)
	copy(frame[7:7+len(chain)], chain)

	sum := crc32.ChecksumIEEE(frame[4 : 7+len(chain)])
	binary.LittleEndian.PutUint32(frame[7+len(chain):], sum)

	if _, err := l.activeFile.WriteAt(frame, int64(l.offset)); err != nil {
		return LSN{}, LSN{}, fmt.Errorf("wal: write record: %w", err)
	}

	l.offset += uint32(len(frame))
	end = LSN{Segment: l.activeID, Offset: l.offset}
	l.lastBegin = begin

	return begin, end, nil
}

// Flush fsyncs the active segment. Archived segments are already durable
// by construction, so flushing an LSN in a prior segment is a no-op.
func (l *Log) Flush(lsn LSN) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lsn.Segment != l.activeID {
		return nil
	}
	return l.activeFile.Sync()
}

// ReadRecord reads the record beginning at lsn, decompressing an archived
// segment first if necessary.
func (l *Log) ReadRecord(lsn LSN) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.readSegmentBytes(lsn.Segment)
	if err != nil {
		return nil, err
	}

	if int(lsn.Offset)+4 > len(raw) {
		return nil, &ErrRecordNotFound{At: lsn}
	}

	lenField := binary.LittleEndian.Uint32(raw[lsn.Offset : lsn.Offset+4])
	bodyStart := int(lsn.Offset) + 4
	bodyEnd := bodyStart + int(lenField)
	if lenField < 3 || bodyEnd+4 > len(raw) {
		return nil, &ErrRecordCorrupted{At: lsn}
	}

	body := raw[bodyStart:bodyEnd]
	wantSum := binary.LittleEndian.Uint32(raw[bodyEnd : bodyEnd+4])
	if crc32.ChecksumIEEE(body) != wantSum {
		return nil, &ErrRecordCorrupted{At: lsn}
	}

	payload := make([]byte, len(body)-3)
	copy(payload, body[3:])
	return payload, nil
}

// LastInsertBeginLSN reports the begin LSN of the most recent Insert.
func (l *Log) LastInsertBeginLSN() LSN {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastBegin
}

// Close fsyncs and closes the active segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.decoder
	if err := l.activeFile.Sync(); err != nil {
		l.activeFile.Close()
		return err
	}
	return l.activeFile.Close()
}

func (l *Log) readSegmentBytes(id uint32) ([]byte, error) {
	if raw, err := os.ReadFile(segmentPath(l.dir, id)); err == nil {
		return raw, nil
	}

	compressed, err := os.ReadFile(archivePath(l.dir, id))
	if err != nil {
		return nil, &ErrRecordNotFound{At: LSN{Segment: id}}
	}
	return l.decoder.DecodeAll(compressed, nil)
}

func (l *Log) rotateLocked() error {
	oldPath := segmentPath(l.dir, l.activeID)
	oldID := l.activeID

	if err := l.activeFile.Sync(); err != nil {
		return fmt.Errorf("wal: sync segment %d before rotation: %w", oldID, err)
	}
	if err := l.activeFile.Close(); err != nil {
		return fmt.Errorf("wal: close segment %d: %w", oldID, err)
	}

	raw, err := os.ReadFile(oldPath)
	if err != nil {
		return fmt.Errorf("wal: reread segment %d for archival: %w", oldID, err)
	}

	compressed := l.encoder.EncodeAll(raw, nil)
	if err := os.WriteFile(archivePath(l.dir, oldID), compressed, 0o644); err != nil {
		return fmt.Errorf("wal: archive segment %d: %w", oldID, err)
	}
	if err := os.Remove(oldPath); err != nil {
		return fmt.Errorf("wal: remove rotated segment %d: %w", oldID, err)
	}

	return l.createSegment(oldID + 1)
}
