// Package transport listens for raw per-observation UDP datagrams from the
// radar/AIS feed and turns each one into an AddPoints command for the
// service facade.
package transport

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/seawatch/trackhub/internal/command"
	"github.com/seawatch/trackhub/internal/trackstore"
)

// fixedFieldsSize mirrors wire.go's point layout: 6 float64 fields, one
// associated byte, and 7 padding bytes.
const fixedFieldsSize = 56

// ObservationSize is the fixed datagram size this listener accepts: a
// 4-byte track hint followed by one wire-style point record (56 fixed
// bytes + an 8-byte trailing timestamp).
const ObservationSize = 4 + fixedFieldsSize + 8

// ErrShortDatagram is returned when a received datagram is smaller than
// ObservationSize.
var ErrShortDatagram = fmt.Errorf("transport: datagram shorter than %d bytes", ObservationSize)

// DecodeObservation parses one HeaderHint+Point observation out of a raw
// UDP payload.
func DecodeObservation(packet []byte) (command.AddPointUpdate, error) {
	if len(packet) < ObservationSize {
		return command.AddPointUpdate{}, ErrShortDatagram
	}
	hint := binary.LittleEndian.Uint32(packet[0:4])
	body := packet[4:ObservationSize]

	p := trackstore.Point{
		Longitude:  getFloat64(body[0:8]),
		Latitude:   getFloat64(body[8:16]),
		SOG:        getFloat64(body[16:24]),
		COG:        getFloat64(body[24:32]),
		Angle:      getFloat64(body[32:40]),
		Distance:   getFloat64(body[40:48]),
		Associated: body[48] != 0,
		Timestamp:  getInt64(body[fixedFieldsSize : fixedFieldsSize+8]),
	}
	return command.AddPointUpdate{HeaderHint: hint, Point: p}, nil
}

// EncodeObservation is the inverse of DecodeObservation, used by tests to
// synthesize datagrams.
func EncodeObservation(u command.AddPointUpdate) []byte {
	buf := make([]byte, ObservationSize)
	binary.LittleEndian.PutUint32(buf[0:4], u.HeaderHint)
	body := buf[4:ObservationSize]

	putFloat64(body[0:8], u.Point.Longitude)
	putFloat64(body[8:16], u.Point.Latitude)
	putFloat64(body[16:24], u.Point.SOG)
	putFloat64(body[24:32], u.Point.COG)
	putFloat64(body[32:40], u.Point.Angle)
	putFloat64(body[40:48], u.Point.Distance)
	if u.Point.Associated {
		body[48] = 1
	}
	putInt64(body[fixedFieldsSize:fixedFieldsSize+8], u.Point.Timestamp)
	return buf
}

func putFloat64(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }
func getFloat64(b []byte) float64    { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
func putInt64(b []byte, v int64)     { binary.LittleEndian.PutUint64(b, uint64(v)) }
func getInt64(b []byte) int64        { return int64(binary.LittleEndian.Uint64(b)) }
