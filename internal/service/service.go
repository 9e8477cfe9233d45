// Package service implements the thin, thread-safe Service Facade that
// producers (the pipeline, the operator, and the test harness) call. It
// validates arguments, copies caller data into owned command records, and
// enqueues them — all the blocking/backpressure behavior belongs to the
// command queue, not to this package.
package service

import (
	"fmt"

	"github.com/seawatch/trackhub/internal/command"
	"github.com/seawatch/trackhub/internal/trackstore"
)

// ErrInvalidArgument is returned when caller-supplied data fails
// validation before it is ever enqueued.
var ErrInvalidArgument = fmt.Errorf("service: invalid argument")

// Service is safe for concurrent use by any number of producer
// goroutines; all synchronization lives in the underlying command.Queue.
type Service struct {
	queue *command.Queue
}

// New constructs a Service over queue.
func New(queue *command.Queue) *Service {
	return &Service{queue: queue}
}

// DrawPoints forwards a bulk point list to the Visualizer via the
// dispatcher, without touching the store.
func (s *Service) DrawPoints(points []trackstore.Point) error {
	if err := validatePoints(points); err != nil {
		return err
	}
	return s.queue.EnqueueDrawPoints(points)
}

// Merge requests that source absorb target.
func (s *Service) Merge(sourceID, targetID uint32) error {
	if sourceID == targetID {
		return fmt.Errorf("%w: merge source and target ids are equal (%d)", ErrInvalidArgument, sourceID)
	}
	return s.queue.EnqueueMerge(sourceID, targetID)
}

// CreateTracks requests one new track per four-point seed group.
func (s *Service) CreateTracks(seeds [][4]trackstore.Point) error {
	for i, seed := range seeds {
		if err := validatePoints(seed[:]); err != nil {
			return fmt.Errorf("seed group %d: %w", i, err)
		}
	}
	return s.queue.EnqueueCreateTracks(seeds)
}

// AddPoints requests a batch of per-track point pushes. HeaderHint values
// are ids previously observed via the Snapshot API; an id that has since
// gone stale (merged away or terminated) is not an error here — the
// dispatcher resolves that as a non-fatal UnknownTrack warning.
func (s *Service) AddPoints(updates []command.AddPointUpdate) error {
	for i, u := range updates {
		if !u.Point.Valid() {
			return fmt.Errorf("update %d: %w: point has non-finite field or unnormalized course", i, ErrInvalidArgument)
		}
	}
	return s.queue.EnqueueAddPoints(updates)
}

// ClearAll requests that every track be released and id issuance reset.
func (s *Service) ClearAll() error {
	return s.queue.EnqueueClearAll()
}

func validatePoints(points []trackstore.Point) error {
	for i, p := range points {
		if !p.Valid() {
			return fmt.Errorf("point %d: %w: non-finite field or unnormalized course", i, ErrInvalidArgument)
		}
	}
	return nil
}
