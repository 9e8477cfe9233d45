// Package trackstore implements the track registry's lifecycle and policy
// rules on top of a trackpool.Pool: creating, pushing points into,
// terminating, merging, and clearing radar/AIS tracks.
//
// Every mutation still happens on the Dispatcher's single worker, but the
// Snapshot API (ActiveIDs, Header, Window) is also polled directly from
// HTTP request goroutines via httpapi.Server. Store therefore holds a
// RWMutex guarding every entry point: writers take the write lock for the
// duration of one operation, readers take the read lock, and no caller
// ever reaches the underlying trackpool.Pool without holding one or the
// other. The pool itself stays unsynchronized, matching its own
// single-writer contract — Store is what turns that into a safe
// multi-reader surface.
package trackstore

import (
	"math"
	"sync"

	"github.com/seawatch/trackhub/internal/trackpool"
)

// Point is one radar/AIS observation of a target.
type Point struct {
	Longitude  float64
	Latitude   float64
	SOG        float64 // speed over ground, m/s
	COG        float64 // course over ground, degrees, 0 <= COG < 360
	Angle      float64 // radar angle, degrees
	Distance   float64 // radar distance, km
	Associated bool
	Timestamp  int64 // milliseconds since Unix epoch
}

// Valid reports whether p's numeric fields are finite and its course is
// normalized, per the store's InvalidArgument contract.
func (p Point) Valid() bool {
	if !isFinite(p.Longitude) || !isFinite(p.Latitude) || !isFinite(p.SOG) ||
		!isFinite(p.COG) || !isFinite(p.Angle) || !isFinite(p.Distance) {
		return false
	}
	return p.COG >= 0 && p.COG < 360
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// PushResult reports the outcome of PushPoint.
type PushResult int

const (
	Ok PushResult = iota
	UnknownTrack
	Terminated
)

func (r PushResult) String() string {
	switch r {
	case Ok:
		return "Ok"
	case UnknownTrack:
		return "UnknownTrack"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// HeaderView is a read-only copy of a track's header, safe to retain after
// the call that produced it returns.
type HeaderView struct {
	ID                 uint32
	ExtrapolationCount uint32
	PointCount         uint32
	State              trackpool.State
}

// TerminationEvent carries the final state of a track at the moment it was
// released, for consumers that need to observe the terminating point
// before the store reclaims its storage.
type TerminationEvent struct {
	ID     uint32
	Header HeaderView
	Window []Point
}

// DefaultMaxExtrapolation is the reference policy value: a track tolerates
// three consecutive non-associated pushes before it is terminated.
const DefaultMaxExtrapolation = 3

// Store holds the pool and policy constants that govern track lifecycle.
type Store struct {
	mu               sync.RWMutex
	pool             *trackpool.Pool[Point]
	maxExtrapolation uint32
}

// New constructs a Store with n track slots, each holding up to k points,
// tolerating maxExtrapolation consecutive non-associated pushes per track
// and terminating it on the next one. maxExtrapolation must be >= 1;
// values < 1 fall back to
// DefaultMaxExtrapolation.
func New(n, k int, maxExtrapolation int) *Store {
	if maxExtrapolation < 1 {
		maxExtrapolation = DefaultMaxExtrapolation
	}
	return &Store{
		pool:             trackpool.New[Point](n, k),
		maxExtrapolation: uint32(maxExtrapolation),
	}
}

// MaxExtrapolation returns the configured policy constant.
func (s *Store) MaxExtrapolation() uint32 {
	return s.maxExtrapolation
}

// CreateTrack allocates one track and returns its id, or 0 if the pool is
// saturated.
func (s *Store) CreateTrack() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Allocate()
}

// SeedTrack allocates one track and pushes the four seed points in order.
// If any push terminates the track, the whole attempt is rolled back: the
// track is released and 0 is returned. On success it returns the new id.
func (s *Store) SeedTrack(seed [4]Point) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.pool.Allocate()
	if id == 0 {
		return 0
	}
	for _, p := range seed {
		if result, _ := s.pushPointLocked(id, p); result != Ok {
			// pushPointLocked already released the track on Terminated; for
			// any other non-Ok outcome (which cannot happen for a
			// just-allocated id) release defensively so no slot leaks.
			s.pool.Release(id)
			return 0
		}
	}
	return id
}

// PushPoint appends p to id's window and updates its header per the
// extrapolation policy. It returns UnknownTrack if id is not live. If the
// push causes termination, the track is released after the point is
// appended, and Terminated is returned along with a TerminationEvent
// capturing the header and window exactly as they stood at the moment of
// release, since a later lookup of id will find nothing.
func (s *Store) PushPoint(id uint32, p Point) (PushResult, TerminationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushPointLocked(id, p)
}

// pushPointLocked is PushPoint's body, callable by other write methods
// (SeedTrack) that already hold mu.
func (s *Store) pushPointLocked(id uint32, p Point) (PushResult, TerminationEvent) {
	idx, ok := s.pool.Lookup(id)
	if !ok {
		return UnknownTrack, TerminationEvent{}
	}
	slot := s.pool.Slot(idx)
	slot.Window.Push(p)

	if p.Associated {
		if slot.Header.ExtrapolationCount > 0 {
			slot.Header.ExtrapolationCount--
		}
		slot.Header.State = trackpool.StateNormal
	} else if slot.Header.ExtrapolationCount < s.maxExtrapolation {
		slot.Header.ExtrapolationCount++
		slot.Header.State = trackpool.StateExtrapolating
	} else {
		slot.Header.State = trackpool.StateTerminated
	}
	slot.Header.PointCount = uint32(slot.Window.Size())

	if slot.Header.State == trackpool.StateTerminated {
		event := TerminationEvent{
			ID: id,
			Header: HeaderView{
				ID:                 slot.Header.ID,
				ExtrapolationCount: slot.Header.ExtrapolationCount,
				PointCount:         slot.Header.PointCount,
				State:              slot.Header.State,
			},
			Window: slot.Window.Snapshot(),
		}
		s.pool.Release(id)
		return Terminated, event
	}
	return Ok, TerminationEvent{}
}

// Merge fuses target into source's slot: it overwrites source's most
// recent MaxExtrapolation() points with target's most recent
// MaxExtrapolation() points (aligned newest-to-newest), then releases
// target. Source's id survives and absorbs target's identity; this is the
// normative reading of an ambiguous merge direction in the original
// design notes — source keeps its id but its tail is brought current with
// target's, so the merged track continues from where target left off.
// Returns false if either id is unknown, the ids are equal, or either
// track holds fewer than MaxExtrapolation() points.
func (s *Store) Merge(sourceID, targetID uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sourceID == targetID {
		return false
	}
	sourceIdx, ok := s.pool.Lookup(sourceID)
	if !ok {
		return false
	}
	targetIdx, ok := s.pool.Lookup(targetID)
	if !ok {
		return false
	}

	sourceSlot := s.pool.Slot(sourceIdx)
	targetSlot := s.pool.Slot(targetIdx)
	n := int(s.maxExtrapolation)
	if sourceSlot.Window.Size() < n || targetSlot.Window.Size() < n {
		return false
	}

	// Align newest-to-newest: the i-th-from-newest point of source is
	// overwritten with the i-th-from-newest point of target.
	for i := 0; i < n; i++ {
		tgtPoint, _ := targetSlot.Window.Get(targetSlot.Window.Size() - 1 - i)
		sourceSlot.Window.Set(sourceSlot.Window.Size()-1-i, tgtPoint)
	}

	s.pool.Release(targetID)
	return true
}

// ClearAll releases every track and resets id issuance.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.ClearAll()
}

// ActiveIDs returns a snapshot of every currently live track id. Safe to
// call concurrently with writers; it takes the read lock like Header and
// Window so an HTTP request goroutine never observes a torn read while
// the Dispatcher is mid-mutation.
func (s *Store) ActiveIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool.ActiveIDs()
}

// Header returns a read-only view of id's header, or ok=false if id is
// not live.
func (s *Store) Header(id uint32) (view HeaderView, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.pool.Lookup(id)
	if !ok {
		return HeaderView{}, false
	}
	h := s.pool.Slot(idx).Header
	return HeaderView{
		ID:                 h.ID,
		ExtrapolationCount: h.ExtrapolationCount,
		PointCount:         h.PointCount,
		State:              h.State,
	}, true
}

// Window returns a freshly allocated copy of id's points, oldest first,
// or ok=false if id is not live.
func (s *Store) Window(id uint32) (points []Point, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.pool.Lookup(id)
	if !ok {
		return nil, false
	}
	return s.pool.Slot(idx).Window.Snapshot(), true
}

