// Package dispatcher implements the single worker that drains the command
// queue in strict priority order and drives every TrackStore mutation.
// Producers never touch the store directly; they only ever reach it
// through commands this worker processes.
package dispatcher

import (
	"context"
	"time"

	"github.com/seawatch/trackhub/internal/command"
	"github.com/seawatch/trackhub/internal/telemetry"
	"github.com/seawatch/trackhub/internal/trackstore"
)

// SnapshotReader is the read-only surface of trackstore.Store that
// collaborators are allowed to see. Decoupling it as an interface, rather
// than handing out *trackstore.Store directly, keeps the Visualizer from
// ever gaining a path to a mutating method.
type SnapshotReader interface {
	ActiveIDs() []uint32
	Header(id uint32) (trackstore.HeaderView, bool)
	Window(id uint32) ([]trackstore.Point, bool)
}

// Visualizer is the collaborator hook invoked after each priority sweep
// and for DrawPoints commands. Implementations must not block for long;
// the dispatcher calls them inline on its own loop.
type Visualizer interface {
	DrawPoints(points []trackstore.Point)
	DrawTracks(reader SnapshotReader)
	Clear()
}

// EventSink receives the warning and lifecycle notifications the
// dispatcher emits when a command can't take effect, or when a track
// terminates or the store is cleared.
type EventSink interface {
	Warnf(format string, args ...interface{})
	TrackTerminated(event trackstore.TerminationEvent)
	Cleared()
}

// nopVisualizer and nopEventSink let Dispatcher run with either
// collaborator unconfigured, matching the spec's "(if configured)" hook.
type nopVisualizer struct{}

func (nopVisualizer) DrawPoints([]trackstore.Point) {}
func (nopVisualizer) DrawTracks(SnapshotReader)     {}
func (nopVisualizer) Clear()                        {}

type nopEventSink struct{}

func (nopEventSink) Warnf(string, ...interface{})                {}
func (nopEventSink) TrackTerminated(trackstore.TerminationEvent) {}
func (nopEventSink) Cleared()                                    {}

// Config bounds the dispatcher's idle-wait and shutdown behavior.
type Config struct {
	// IdleWait bounds how long the worker waits for a wake signal after a
	// sweep that processed nothing, so periodic visualizer refreshes
	// still occur. Reference value: 10ms.
	IdleWait time.Duration
	// ShutdownGrace bounds how long Run keeps draining pending commands
	// best-effort after ctx is done. Reference value: 2s.
	ShutdownGrace time.Duration
}

// DefaultConfig mirrors the reference values from the design notes.
func DefaultConfig() Config {
	return Config{IdleWait: 10 * time.Millisecond, ShutdownGrace: 2 * time.Second}
}

// Dispatcher is the single worker driving TrackStore from the command
// queue. It is not safe to call Run from more than one goroutine.
type Dispatcher struct {
	store      *trackstore.Store
	queue      *command.Queue
	visualizer Visualizer
	events     EventSink
	cfg        Config
}

// Option configures optional collaborators on a Dispatcher.
type Option func(*Dispatcher)

// WithVisualizer registers the Visualizer collaborator hook.
func WithVisualizer(v Visualizer) Option {
	return func(d *Dispatcher) { d.visualizer = v }
}

// WithEventSink registers the EventSink collaborator hook.
func WithEventSink(e EventSink) Option {
	return func(d *Dispatcher) { d.events = e }
}

// New constructs a Dispatcher over store and queue. Unconfigured
// collaborators default to no-ops.
func New(store *trackstore.Store, queue *command.Queue, cfg Config, opts ...Option) *Dispatcher {
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = DefaultConfig().IdleWait
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultConfig().ShutdownGrace
	}
	d := &Dispatcher{
		store:      store,
		queue:      queue,
		visualizer: nopVisualizer{},
		events:     nopEventSink{},
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the priority-sweep loop until ctx is done, then drains
// remaining commands best-effort within the configured shutdown grace
// period before returning.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			d.shutdown()
			return
		}

		processed := d.sweepOnce()
		d.visualizer.DrawTracks(d.store)

		if processed > 0 {
			continue
		}

		select {
		case <-d.queue.Notify():
		case <-time.After(d.cfg.IdleWait):
		case <-ctx.Done():
			d.shutdown()
			return
		}
	}
}

// shutdown stops new enqueues and drains whatever remains in the queue,
// best-effort, within ShutdownGrace.
func (d *Dispatcher) shutdown() {
	d.queue.Stop()
	deadline := time.Now().Add(d.cfg.ShutdownGrace)
	for time.Now().Before(deadline) {
		if d.sweepOnce() == 0 {
			return
		}
	}
	telemetry.Logf("dispatcher: shutdown grace period elapsed with commands still pending")
}

// sweepOnce drains and processes every command kind once, in priority
// order, and returns the total number of commands processed.
func (d *Dispatcher) sweepOnce() int {
	n := 0
	n += d.processDrawPoints()
	n += d.processMerge()
	n += d.processCreateTracks()
	n += d.processAddPoints()
	n += d.processClearAll()
	return n
}

func (d *Dispatcher) processDrawPoints() int {
	cmds := d.queue.DrainDrawPoints()
	for _, c := range cmds {
		d.visualizer.DrawPoints(c.Points)
	}
	return len(cmds)
}

func (d *Dispatcher) processMerge() int {
	cmds := d.queue.DrainMerge()
	for _, c := range cmds {
		if !d.store.Merge(c.SourceID, c.TargetID) {
			d.events.Warnf("merge(%d, %d) failed: unknown id, self-merge, or insufficient history", c.SourceID, c.TargetID)
		}
	}
	return len(cmds)
}

func (d *Dispatcher) processCreateTracks() int {
	cmds := d.queue.DrainCreateTracks()
	total := 0
	for _, c := range cmds {
		for _, seed := range c.Seeds {
			if id := d.store.SeedTrack(seed); id == 0 {
				d.events.Warnf("seed_track failed: pool full or seed rolled back")
			}
			total++
		}
	}
	return total
}

func (d *Dispatcher) processAddPoints() int {
	cmds := d.queue.DrainAddPoints()
	total := 0
	for _, c := range cmds {
		for _, u := range c.Updates {
			result, event := d.store.PushPoint(u.HeaderHint, u.Point)
			switch result {
			case trackstore.UnknownTrack:
				d.events.Warnf("push_point(%d) failed: unknown track", u.HeaderHint)
			case trackstore.Terminated:
				d.events.TrackTerminated(event)
			}
			total++
		}
	}
	return total
}

func (d *Dispatcher) processClearAll() int {
	cmds := d.queue.DrainClearAll()
	for range cmds {
		d.store.ClearAll()
		d.events.Cleared()
	}
	return len(cmds)
}
