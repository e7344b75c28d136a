package stats

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Versioned binary encoding of a Snapshot. The layout is explicit and
// field by field so the on-disk format stays stable across versions:
//
//	magic uint32 | version uint32
//	observed int64 | skipped int64 | maxNodeId int64
//	labelCounts:   uint32 n, then n * (id int64, count int64)
//	relTypeCounts: uint32 n, then n * (id int64, count int64)
//	degrees:       uint32 n, then n * (label int64, relType int64,
//	               direction int32, count uint64, mean float64, m2 float64)
//
// All values little-endian; floats stored as IEEE-754 bits so the
// round-trip is exact.
const (
	snapshotMagic   uint32 = 0x54415453
	snapshotVersion uint32 = 1
)

var (
	ErrBadMagic      = errors.New("snapshot blob has wrong magic")
	ErrBadVersion    = errors.New("snapshot blob has unrecognized version")
	ErrTruncatedBlob = errors.New("snapshot blob is truncated")
	ErrTrailingBytes = errors.New("snapshot blob has trailing bytes")
)

type encodeBuffer struct {
	buf []byte
}

func (e *encodeBuffer) putUint32(v uint32) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	e.buf = append(e.buf, scratch[:]...)
}

func (e *encodeBuffer) putUint64(v uint64) {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], v)
	e.buf = append(e.buf, scratch[:]...)
}

func (e *encodeBuffer) putInt64(v int64) {
	e.putUint64(uint64(v))
}

func (e *encodeBuffer) putFloat64(v float64) {
	e.putUint64(math.Float64bits(v))
}

type decodeBuffer struct {
	buf    []byte
	offset int
}

func (d *decodeBuffer) uint32() (uint32, error) {
	if d.offset+4 > len(d.buf) {
		return 0, ErrTruncatedBlob
	}
	v := binary.LittleEndian.Uint32(d.buf[d.offset:])
	d.offset += 4
	return v, nil
}

func (d *decodeBuffer) uint64() (uint64, error) {
	if d.offset+8 > len(d.buf) {
		return 0, ErrTruncatedBlob
	}
	v := binary.LittleEndian.Uint64(d.buf[d.offset:])
	d.offset += 8
	return v, nil
}

func (d *decodeBuffer) int64() (int64, error) {
	v, err := d.uint64()
	return int64(v), err
}

func (d *decodeBuffer) float64() (float64, error) {
	v, err := d.uint64()
	return math.Float64frombits(v), err
}

// SnapshotToBytes serializes the full raw state of the snapshot.
func SnapshotToBytes(snapshot *Snapshot) []byte {
	e := &encodeBuffer{}
	e.putUint32(snapshotMagic)
	e.putUint32(snapshotVersion)

	e.putInt64(snapshot.observed.Load())
	e.putInt64(snapshot.skipped.Load())
	e.putInt64(snapshot.maxNodeId.Load())

	e.putUint32(uint32(len(snapshot.labelCounts)))
	for id, count := range snapshot.labelCounts {
		e.putInt64(id)
		e.putInt64(count)
	}

	e.putUint32(uint32(len(snapshot.relTypeCounts)))
	for id, count := range snapshot.relTypeCounts {
		e.putInt64(id)
		e.putInt64(count)
	}

	e.putUint32(uint32(len(snapshot.degrees)))
	for key, accumulator := range snapshot.degrees {
		count, mean, m2 := accumulator.State()
		e.putInt64(key.Label)
		e.putInt64(key.RelType)
		e.putUint32(uint32(key.Direction))
		e.putUint64(count)
		e.putFloat64(mean)
		e.putFloat64(m2)
	}

	return e.buf
}

// BytesToSnapshot decodes a serialized snapshot. Any malformed input is
// reported as an error; the caller decides whether to start fresh.
func BytesToSnapshot(buf []byte) (*Snapshot, error) {
	d := &decodeBuffer{buf: buf}

	magic, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if magic != snapshotMagic {
		return nil, ErrBadMagic
	}
	version, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if version != snapshotVersion {
		return nil, ErrBadVersion
	}

	snapshot := NewSnapshot()

	observed, err := d.int64()
	if err != nil {
		return nil, err
	}
	skipped, err := d.int64()
	if err != nil {
		return nil, err
	}
	maxNodeId, err := d.int64()
	if err != nil {
		return nil, err
	}
	snapshot.observed.Store(observed)
	snapshot.skipped.Store(skipped)
	snapshot.maxNodeId.Store(maxNodeId)

	numLabels, err := d.uint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numLabels; i++ {
		id, err := d.int64()
		if err != nil {
			return nil, err
		}
		count, err := d.int64()
		if err != nil {
			return nil, err
		}
		snapshot.labelCounts[id] = count
	}

	numRelTypes, err := d.uint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numRelTypes; i++ {
		id, err := d.int64()
		if err != nil {
			return nil, err
		}
		count, err := d.int64()
		if err != nil {
			return nil, err
		}
		snapshot.relTypeCounts[id] = count
	}

	numDegrees, err := d.uint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numDegrees; i++ {
		label, err := d.int64()
		if err != nil {
			return nil, err
		}
		relType, err := d.int64()
		if err != nil {
			return nil, err
		}
		direction, err := d.uint32()
		if err != nil {
			return nil, err
		}
		count, err := d.uint64()
		if err != nil {
			return nil, err
		}
		mean, err := d.float64()
		if err != nil {
			return nil, err
		}
		m2, err := d.float64()
		if err != nil {
			return nil, err
		}
		key := DegreeKey{
			Label:     label,
			RelType:   relType,
			Direction: Direction(direction),
		}
		snapshot.degrees[key] = RestoreWelford(count, mean, m2)
	}

	if d.offset != len(buf) {
		return nil, ErrTrailingBytes
	}

	snapshot.Recompute()
	return snapshot, nil
}
