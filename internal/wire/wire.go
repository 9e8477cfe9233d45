// Package wire implements the packed on-wire record layout used by the
// Snapshot API's Pack operation: a fixed 16-byte header followed by one
// packed record per point, all little-endian. The layout is fixed for a
// given build; it is not negotiated at runtime. The transport package's
// observation datagrams use their own codec, which shares this point
// layout but not this package's code.
//
// Each point's 56-byte fixed-field record (six f64 fields, one associated
// byte, seven padding bytes) is immediately followed by its own 8-byte
// i64 millisecond timestamp, for a total per-point stride of PointSize
// (64) bytes. The timestamp is thus inlined in every point record, which
// keeps each point self-contained on the wire rather than splitting
// timestamps into a trailing block.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/seawatch/trackhub/internal/trackpool"
	"github.com/seawatch/trackhub/internal/trackstore"
)

const (
	// HeaderSize is the byte length of the packed TrackHeader.
	HeaderSize = 16
	// fixedFieldsSize is the byte length of a point's six f64 fields plus
	// the associated byte and its padding, per the wire header's
	// 56-byte point record declaration.
	fixedFieldsSize = 56
	// PointSize is the total per-point stride on the wire: the 56-byte
	// fixed-field record plus its trailing 8-byte i64 timestamp.
	PointSize = fixedFieldsSize + 8
)

// Pack serializes header followed by points into buf, which must be at
// least HeaderSize + len(points)*PointSize bytes. It returns the number
// of bytes written, or an error if buf is too small.
func Pack(buf []byte, header trackstore.HeaderView, points []trackstore.Point) (int, error) {
	need := HeaderSize + len(points)*PointSize
	if len(buf) < need {
		return 0, fmt.Errorf("wire: buffer too small: have %d bytes, need %d", len(buf), need)
	}

	binary.LittleEndian.PutUint32(buf[0:], header.ID)
	binary.LittleEndian.PutUint32(buf[4:], header.ExtrapolationCount)
	binary.LittleEndian.PutUint32(buf[8:], header.PointCount)
	binary.LittleEndian.PutUint32(buf[12:], uint32(int32(header.State)))

	for i, p := range points {
		off := HeaderSize + i*PointSize
		putFloat64(buf[off:], p.Longitude)
		putFloat64(buf[off+8:], p.Latitude)
		putFloat64(buf[off+16:], p.SOG)
		putFloat64(buf[off+24:], p.COG)
		putFloat64(buf[off+32:], p.Angle)
		putFloat64(buf[off+40:], p.Distance)
		if p.Associated {
			buf[off+48] = 1
		} else {
			buf[off+48] = 0
		}
		for pad := off + 49; pad < off+fixedFieldsSize; pad++ {
			buf[pad] = 0
		}
		putInt64(buf[off+fixedFieldsSize:], p.Timestamp)
	}
	return need, nil
}

// PackedSize returns the number of bytes Pack would write for n points.
func PackedSize(n int) int {
	return HeaderSize + n*PointSize
}

// Decoded holds the result of Unpack: a header and its points, mirroring
// trackstore's view types so a caller can reconstruct a Snapshot-shaped
// value from a byte buffer, e.g. after receiving one over Transport.
type Decoded struct {
	Header trackstore.HeaderView
	Points []trackstore.Point
}

// Unpack parses a buffer produced by Pack. It returns an error if buf is
// shorter than its own declared point_count would require.
func Unpack(buf []byte) (Decoded, error) {
	if len(buf) < HeaderSize {
		return Decoded{}, fmt.Errorf("wire: buffer too small for header: have %d bytes, need %d", len(buf), HeaderSize)
	}

	header := trackstore.HeaderView{
		ID:                 binary.LittleEndian.Uint32(buf[0:]),
		ExtrapolationCount: binary.LittleEndian.Uint32(buf[4:]),
		PointCount:         binary.LittleEndian.Uint32(buf[8:]),
		State:              trackpool.State(int32(binary.LittleEndian.Uint32(buf[12:]))),
	}

	need := HeaderSize + int(header.PointCount)*PointSize
	if len(buf) < need {
		return Decoded{}, fmt.Errorf("wire: buffer too small for %d points: have %d bytes, need %d", header.PointCount, len(buf), need)
	}

	points := make([]trackstore.Point, header.PointCount)
	for i := range points {
		off := HeaderSize + i*PointSize
		points[i] = trackstore.Point{
			Longitude:  getFloat64(buf[off:]),
			Latitude:   getFloat64(buf[off+8:]),
			SOG:        getFloat64(buf[off+16:]),
			COG:        getFloat64(buf[off+24:]),
			Angle:      getFloat64(buf[off+32:]),
			Distance:   getFloat64(buf[off+40:]),
			Associated: buf[off+48] != 0,
			Timestamp:  getInt64(buf[off+fixedFieldsSize:]),
		}
	}
	return Decoded{Header: header, Points: points}, nil
}

func putFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func getFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func putInt64(b []byte, v int64) {
	binary.LittleEndian.PutUint64(b, uint64(v))
}

func getInt64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}
