// Package visualizer streams live track state to connected operator
// consoles over gRPC. It implements dispatcher.Visualizer: the dispatcher
// calls it inline after every priority sweep and for every DrawPoints
// command, so its methods must never block for long.
//
// There is no protoc-generated stub in this tree: the service descriptor
// below is constructed by hand and frames are encoded with a small
// gob-backed grpc codec, registered under the content-subtype "gob".
// Clients dial with grpc.CallContentSubtype("gob").
package visualizer

import "github.com/seawatch/trackhub/internal/trackstore"

// FrameKind tags which payload a Frame carries.
type FrameKind int32

const (
	FrameDraw     FrameKind = 0
	FrameSnapshot FrameKind = 1
	FrameCleared  FrameKind = 2
)

// Frame is the wire-level unit pushed to every connected client.
type Frame struct {
	Kind           FrameKind
	SequenceNumber uint64
	TimestampNanos int64

	// Populated when Kind == FrameDraw.
	Draw []PointView

	// Populated when Kind == FrameSnapshot.
	Tracks []TrackView
}

// PointView mirrors trackstore.Point for wire transport, decoupled from
// the store's internal type so the codec never needs to import it beyond
// this conversion boundary.
type PointView struct {
	Longitude  float64
	Latitude   float64
	SOG        float64
	COG        float64
	Angle      float64
	Distance   float64
	Associated bool
	Timestamp  int64
}

func newPointView(p trackstore.Point) PointView {
	return PointView{
		Longitude:  p.Longitude,
		Latitude:   p.Latitude,
		SOG:        p.SOG,
		COG:        p.COG,
		Angle:      p.Angle,
		Distance:   p.Distance,
		Associated: p.Associated,
		Timestamp:  p.Timestamp,
	}
}

func newPointViews(points []trackstore.Point) []PointView {
	out := make([]PointView, len(points))
	for i, p := range points {
		out[i] = newPointView(p)
	}
	return out
}

// TrackView mirrors one live track's header and window for wire transport.
type TrackView struct {
	ID                 uint32
	ExtrapolationCount uint32
	PointCount         uint32
	State              int32
	Window             []PointView
}

// StreamRequest is the request message clients send to open a feed.
type StreamRequest struct {
	// IncludeDraw selects whether raw DrawPoints frames are forwarded, in
	// addition to periodic track snapshots.
	IncludeDraw bool
}
