// Package command implements the bounded multi-producer single-consumer
// queue of tagged command records that separates producers (the service
// facade) from the single dispatcher worker that drains them.
//
// Each command kind gets its own buffered channel so that FIFO ordering
// within a kind is simply Go's channel ordering; drain_by_kind is a
// non-blocking receive loop over one channel. Payloads are copied into
// owned structs at Enqueue time, never pointers into caller storage.
package command

import (
	"errors"
	"fmt"

	"github.com/seawatch/trackhub/internal/trackstore"
)

// Kind identifies a command variant, in dispatcher priority order
// (DrawPoints highest, ClearAll lowest).
type Kind int

const (
	KindDrawPoints Kind = iota
	KindMerge
	KindCreateTracks
	KindAddPoints
	KindClearAll
)

func (k Kind) String() string {
	switch k {
	case KindDrawPoints:
		return "DrawPoints"
	case KindMerge:
		return "Merge"
	case KindCreateTracks:
		return "CreateTracks"
	case KindAddPoints:
		return "AddPoints"
	case KindClearAll:
		return "ClearAll"
	default:
		return "Unknown"
	}
}

// Priority is the dispatcher's fixed priority sweep order, highest first.
var Priority = [...]Kind{KindDrawPoints, KindMerge, KindCreateTracks, KindAddPoints, KindClearAll}

// DrawPoints forwards a bulk point list to the Visualizer collaborator
// without mutating the store.
type DrawPoints struct {
	Points []trackstore.Point
}

// Merge requests that source absorb target (see trackstore.Store.Merge).
type Merge struct {
	SourceID uint32
	TargetID uint32
}

// CreateTracks requests one new track per four-point seed group.
type CreateTracks struct {
	Seeds [][4]trackstore.Point
}

// AddPointUpdate is one (previously observed live id, point) pair.
type AddPointUpdate struct {
	HeaderHint uint32
	Point      trackstore.Point
}

// AddPoints requests a batch of per-track point pushes.
type AddPoints struct {
	Updates []AddPointUpdate
}

// ClearAll requests that every track be released and id issuance reset.
type ClearAll struct{}

// ErrQueueFull is returned by Enqueue calls that reject rather than block
// when their kind's queue is saturated (the operator-command policy).
var ErrQueueFull = errors.New("command: queue full")

// ErrShutdownInProgress is returned by any Enqueue call made after Stop.
var ErrShutdownInProgress = errors.New("command: shutdown in progress")

// Queue is the bounded per-kind command queue. Zero value is not usable;
// construct with New.
type Queue struct {
	draw   chan DrawPoints
	merge  chan Merge
	create chan CreateTracks
	add    chan AddPoints
	clear  chan ClearAll

	notify chan struct{} // buffered cap 1, signals "something may be ready"
	stop   chan struct{}
}

// Capacities configures each kind's channel capacity.
type Capacities struct {
	DrawPoints   int
	Merge        int
	CreateTracks int
	AddPoints    int
	ClearAll     int
}

// New constructs a Queue with the given per-kind capacities. A capacity
// <= 0 is clamped to 1.
func New(cap Capacities) *Queue {
	clamp := func(n int) int {
		if n <= 0 {
			return 1
		}
		return n
	}
	return &Queue{
		draw:   make(chan DrawPoints, clamp(cap.DrawPoints)),
		merge:  make(chan Merge, clamp(cap.Merge)),
		create: make(chan CreateTracks, clamp(cap.CreateTracks)),
		add:    make(chan AddPoints, clamp(cap.AddPoints)),
		clear:  make(chan ClearAll, clamp(cap.ClearAll)),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// wake signals the dispatcher that a command may be ready, without
// blocking if a wake is already pending.
func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Notify returns the channel the dispatcher selects on to wait for new
// commands, bounded by its own idle-wait timeout.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Stopped reports whether Stop has been called.
func (q *Queue) Stopped() bool {
	select {
	case <-q.stop:
		return true
	default:
		return false
	}
}

// Stop marks the queue closed to new producers. Enqueue calls made after
// Stop return ErrShutdownInProgress. Already-queued commands remain
// drainable so the dispatcher can finish its best-effort grace period.
func (q *Queue) Stop() {
	select {
	case <-q.stop:
		// already stopped
	default:
		close(q.stop)
	}
}

// EnqueueDrawPoints copies points into an owned command record and
// enqueues it, rejecting with ErrQueueFull if the draw queue is at
// capacity (operator/visual-feedback commands use reject-on-full
// backpressure).
func (q *Queue) EnqueueDrawPoints(points []trackstore.Point) error {
	if q.Stopped() {
		return ErrShutdownInProgress
	}
	owned := append([]trackstore.Point(nil), points...)
	select {
	case q.draw <- DrawPoints{Points: owned}:
		q.wake()
		return nil
	default:
		return fmt.Errorf("%w: kind=%s", ErrQueueFull, KindDrawPoints)
	}
}

// EnqueueMerge enqueues a merge request, rejecting with ErrQueueFull if
// the merge queue is at capacity.
func (q *Queue) EnqueueMerge(sourceID, targetID uint32) error {
	if q.Stopped() {
		return ErrShutdownInProgress
	}
	select {
	case q.merge <- Merge{SourceID: sourceID, TargetID: targetID}:
		q.wake()
		return nil
	default:
		return fmt.Errorf("%w: kind=%s", ErrQueueFull, KindMerge)
	}
}

// EnqueueCreateTracks copies seeds into an owned command record and
// enqueues it, rejecting with ErrQueueFull if the create queue is at
// capacity.
func (q *Queue) EnqueueCreateTracks(seeds [][4]trackstore.Point) error {
	if q.Stopped() {
		return ErrShutdownInProgress
	}
	owned := append([][4]trackstore.Point(nil), seeds...)
	select {
	case q.create <- CreateTracks{Seeds: owned}:
		q.wake()
		return nil
	default:
		return fmt.Errorf("%w: kind=%s", ErrQueueFull, KindCreateTracks)
	}
}

// EnqueueAddPoints copies updates into an owned command record and
// enqueues it, blocking until space is available (the pipeline's
// high-volume AddPoints stream uses block-on-full backpressure rather
// than dropping observations). Returns ErrShutdownInProgress if Stop is
// called while blocked.
func (q *Queue) EnqueueAddPoints(updates []AddPointUpdate) error {
	if q.Stopped() {
		return ErrShutdownInProgress
	}
	owned := append([]AddPointUpdate(nil), updates...)
	select {
	case q.add <- AddPoints{Updates: owned}:
		q.wake()
		return nil
	case <-q.stop:
		return ErrShutdownInProgress
	}
}

// EnqueueClearAll enqueues a clear request, rejecting with ErrQueueFull
// if the clear queue is at capacity.
func (q *Queue) EnqueueClearAll() error {
	if q.Stopped() {
		return ErrShutdownInProgress
	}
	select {
	case q.clear <- ClearAll{}:
		q.wake()
		return nil
	default:
		return fmt.Errorf("%w: kind=%s", ErrQueueFull, KindClearAll)
	}
}

// DrainDrawPoints removes and returns every currently enqueued DrawPoints
// command, preserving enqueue order. Dispatcher-only.
func (q *Queue) DrainDrawPoints() []DrawPoints {
	var out []DrawPoints
	for {
		select {
		case cmd := <-q.draw:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

// DrainMerge removes and returns every currently enqueued Merge command,
// preserving enqueue order. Dispatcher-only.
func (q *Queue) DrainMerge() []Merge {
	var out []Merge
	for {
		select {
		case cmd := <-q.merge:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

// DrainCreateTracks removes and returns every currently enqueued
// CreateTracks command, preserving enqueue order. Dispatcher-only.
func (q *Queue) DrainCreateTracks() []CreateTracks {
	var out []CreateTracks
	for {
		select {
		case cmd := <-q.create:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

// DrainAddPoints removes and returns every currently enqueued AddPoints
// command, preserving enqueue order. Dispatcher-only.
func (q *Queue) DrainAddPoints() []AddPoints {
	var out []AddPoints
	for {
		select {
		case cmd := <-q.add:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

// DrainClearAll removes and returns every currently enqueued ClearAll
// command, preserving enqueue order. Dispatcher-only.
func (q *Queue) DrainClearAll() []ClearAll {
	var out []ClearAll
	for {
		select {
		case cmd := <-q.clear:
			out = append(out, cmd)
		default:
			return out
		}
	}
}
