package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/golang/snappy"
)

const (
	stepMagic    uint32 = 0x434c434b // "CLCK"
	codecVersion byte   = 1
	frameHeader         = 4 + 1 + 4 + 4
)

// EncodeStep serialises a step.
// Format: [Magic:4][Version:1][DataLen:4][Checksum:4][Data:N], where Data is
// the snappy-compressed payload and Checksum covers Data.
// Payload: [Index:8][Time:8][DeltaTime:8][Surface:4][Points:4], then per point
// [Entries:4] followed by [DOF:4][Value:8] per entry. Big endian.
func EncodeStep(s *Step) ([]byte, error) {
	var payload bytes.Buffer
	w := func(v any) {
		// bytes.Buffer writes do not fail.
		_ = binary.Write(&payload, binary.BigEndian, v)
	}
	w(int64(s.Index))
	w(math.Float64bits(s.Time))
	w(math.Float64bits(s.DeltaTime))
	w(int32(s.Surface))
	w(uint32(len(s.Points)))
	for xi, entries := range s.Points {
		w(uint32(len(entries)))
		for _, e := range entries {
			if e.DOF < 0 || uint64(e.DOF) > math.MaxUint32 {
				return nil, fmt.Errorf("point %d: invalid dof %d", xi, e.DOF)
			}
			w(uint32(e.DOF))
			w(math.Float64bits(e.Value))
		}
	}

	data := snappy.Encode(nil, payload.Bytes())
	out := make([]byte, frameHeader, frameHeader+len(data))
	binary.BigEndian.PutUint32(out[0:4], stepMagic)
	out[4] = codecVersion
	binary.BigEndian.PutUint32(out[5:9], uint32(len(data)))
	binary.BigEndian.PutUint32(out[9:13], crc32.ChecksumIEEE(data))
	return append(out, data...), nil
}

// DecodeStep parses what EncodeStep wrote.
func DecodeStep(buf []byte) (*Step, error) {
	if len(buf) < frameHeader {
		return nil, fmt.Errorf("%w: short frame of %d bytes", ErrCorrupt, len(buf))
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != stepMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	if v := buf[4]; v != codecVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	n := binary.BigEndian.Uint32(buf[5:9])
	data := buf[frameHeader:]
	if uint64(len(data)) != uint64(n) {
		return nil, fmt.Errorf("%w: data length %d, header says %d", ErrCorrupt, len(data), n)
	}
	if crc32.ChecksumIEEE(data) != binary.BigEndian.Uint32(buf[9:13]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	payload, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	r := bytes.NewReader(payload)
	var (
		index         int64
		tbits, dtbits uint64
		surface       int32
		points        uint32
	)
	for _, v := range []any{&index, &tbits, &dtbits, &surface, &points} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
		}
	}
	// Every point needs at least its entry count.
	if uint64(points)*4 > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d points in %d bytes", ErrCorrupt, points, r.Len())
	}

	s := &Step{
		Index:     int(index),
		Time:      math.Float64frombits(tbits),
		DeltaTime: math.Float64frombits(dtbits),
		Surface:   int(surface),
		Points:    make([][]Entry, points),
	}
	for xi := range s.Points {
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return nil, fmt.Errorf("%w: point %d: %v", ErrCorrupt, xi, err)
		}
		if uint64(count)*12 > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: point %d: %d entries in %d bytes", ErrCorrupt, xi, count, r.Len())
		}
		if count == 0 {
			continue
		}
		entries := make([]Entry, count)
		for k := range entries {
			var dof uint32
			var vbits uint64
			if err := binary.Read(r, binary.BigEndian, &dof); err != nil {
				return nil, fmt.Errorf("%w: point %d: %v", ErrCorrupt, xi, err)
			}
			if err := binary.Read(r, binary.BigEndian, &vbits); err != nil {
				return nil, fmt.Errorf("%w: point %d: %v", ErrCorrupt, xi, err)
			}
			entries[k] = Entry{DOF: int(dof), Value: math.Float64frombits(vbits)}
		}
		s.Points[xi] = entries
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}
	return s, nil
}
