package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/seawatch/trackhub/internal/command"
	"github.com/seawatch/trackhub/internal/trackstore"
)

type recordingVisualizer struct {
	mu         sync.Mutex
	drawPoints int
	drawTracks int
}

func (r *recordingVisualizer) DrawPoints([]trackstore.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drawPoints++
}

func (r *recordingVisualizer) DrawTracks(SnapshotReader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drawTracks++
}

func (r *recordingVisualizer) Clear() {}

type recordingEvents struct {
	mu          sync.Mutex
	warnings    []string
	terminated  []trackstore.TerminationEvent
	clearedHits int
}

func (r *recordingEvents) Warnf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, format)
}

func (r *recordingEvents) TrackTerminated(event trackstore.TerminationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated = append(r.terminated, event)
}

func (r *recordingEvents) Cleared() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearedHits++
}

func assocPoint(ts int64) trackstore.Point {
	return trackstore.Point{Longitude: 1, Latitude: 1, Associated: true, Timestamp: ts}
}

func testConfig() Config {
	return Config{IdleWait: 2 * time.Millisecond, ShutdownGrace: 200 * time.Millisecond}
}

// orderRecorder implements both Visualizer and EventSink so a single
// sweep's per-kind handler calls can be observed in one ordered list.
// Each command below is deliberately made to fail (unknown id, saturated
// pool) so every kind's handler is forced to call back into this
// recorder, regardless of whether the store mutation itself would have
// succeeded.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRecorder) record(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, kind)
}

func (r *orderRecorder) DrawPoints([]trackstore.Point) { r.record("DrawPoints") }
func (r *orderRecorder) DrawTracks(SnapshotReader)     {}
func (r *orderRecorder) Clear()                        {}

func (r *orderRecorder) Warnf(format string, args ...interface{}) {
	switch {
	case len(format) >= 5 && format[:5] == "merge":
		r.record("Merge")
	case len(format) >= 10 && format[:10] == "seed_track":
		r.record("CreateTracks")
	case len(format) >= 10 && format[:10] == "push_point":
		r.record("AddPoints")
	}
}
func (r *orderRecorder) TrackTerminated(trackstore.TerminationEvent) {}
func (r *orderRecorder) Cleared()                                    {}

// TestScenarioPriorityOrdering encodes scenario 4: a single sweep
// processes DrawPoints, then Merge, then CreateTracks, then AddPoints,
// then ClearAll, regardless of enqueue order.
func TestScenarioPriorityOrdering(t *testing.T) {
	t.Parallel()

	store := trackstore.New(1, 8, 3) // capacity 1, already full below, so CreateTracks fails
	store.CreateTrack()

	rec := &orderRecorder{}
	q := command.New(command.Capacities{DrawPoints: 4, Merge: 4, CreateTracks: 4, AddPoints: 4, ClearAll: 4})

	// Enqueue in the scenario's stated order: AddPoints, CreateTracks, Merge, DrawPoints.
	seed := [4]trackstore.Point{assocPoint(1), assocPoint(2), assocPoint(3), assocPoint(4)}
	if err := q.EnqueueAddPoints([]command.AddPointUpdate{{HeaderHint: 999, Point: assocPoint(99)}}); err != nil {
		t.Fatalf("EnqueueAddPoints: %v", err)
	}
	if err := q.EnqueueCreateTracks([][4]trackstore.Point{seed}); err != nil {
		t.Fatalf("EnqueueCreateTracks: %v", err)
	}
	if err := q.EnqueueMerge(1, 999); err != nil {
		t.Fatalf("EnqueueMerge: %v", err)
	}
	if err := q.EnqueueDrawPoints([]trackstore.Point{assocPoint(1)}); err != nil {
		t.Fatalf("EnqueueDrawPoints: %v", err)
	}

	d := New(store, q, testConfig(), WithVisualizer(rec), WithEventSink(rec))
	if n := d.sweepOnce(); n == 0 {
		t.Fatal("sweepOnce() processed nothing")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{"DrawPoints", "Merge", "CreateTracks", "AddPoints"}
	if len(rec.order) != len(want) {
		t.Fatalf("handler call order = %v, want %v", rec.order, want)
	}
	for i, k := range want {
		if rec.order[i] != k {
			t.Errorf("order[%d] = %s, want %s", i, rec.order[i], k)
		}
	}
}

func TestMergeFailureEmitsWarning(t *testing.T) {
	t.Parallel()

	store := trackstore.New(2, 8, 3)
	id := store.CreateTrack()
	q := command.New(command.Capacities{Merge: 2})
	events := &recordingEvents{}
	d := New(store, q, testConfig(), WithEventSink(events))

	if err := q.EnqueueMerge(id, 999); err != nil {
		t.Fatalf("EnqueueMerge: %v", err)
	}
	d.sweepOnce()

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.warnings) != 1 {
		t.Errorf("len(warnings) = %d, want 1", len(events.warnings))
	}
}

func TestAddPointsUnknownTrackEmitsWarning(t *testing.T) {
	t.Parallel()

	store := trackstore.New(2, 8, 3)
	q := command.New(command.Capacities{AddPoints: 2})
	events := &recordingEvents{}
	d := New(store, q, testConfig(), WithEventSink(events))

	if err := q.EnqueueAddPoints([]command.AddPointUpdate{{HeaderHint: 999, Point: assocPoint(1)}}); err != nil {
		t.Fatalf("EnqueueAddPoints: %v", err)
	}
	d.sweepOnce()

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.warnings) != 1 {
		t.Errorf("len(warnings) = %d, want 1", len(events.warnings))
	}
}

func TestAddPointsTerminationEmitsEventWithWindow(t *testing.T) {
	t.Parallel()

	store := trackstore.New(1, 10, 1) // maxExtrapolation=1: the second consecutive non-associated push terminates
	id := store.CreateTrack()
	q := command.New(command.Capacities{AddPoints: 2})
	events := &recordingEvents{}
	d := New(store, q, testConfig(), WithEventSink(events))

	first := trackstore.Point{Timestamp: 41}
	nonAssoc := trackstore.Point{Timestamp: 42}
	if err := q.EnqueueAddPoints([]command.AddPointUpdate{{HeaderHint: id, Point: first}, {HeaderHint: id, Point: nonAssoc}}); err != nil {
		t.Fatalf("EnqueueAddPoints: %v", err)
	}
	d.sweepOnce()

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.terminated) != 1 {
		t.Fatalf("len(terminated) = %d, want 1", len(events.terminated))
	}
	ev := events.terminated[0]
	if ev.ID != id {
		t.Errorf("TerminationEvent.ID = %d, want %d", ev.ID, id)
	}
	if len(ev.Window) == 0 || ev.Window[len(ev.Window)-1].Timestamp != 42 {
		t.Errorf("TerminationEvent.Window missing the terminating point: %v", ev.Window)
	}
	if _, ok := store.Header(id); ok {
		t.Error("track should be released after termination")
	}
}

func TestClearAllEmitsCleared(t *testing.T) {
	t.Parallel()

	store := trackstore.New(2, 8, 3)
	store.CreateTrack()
	q := command.New(command.Capacities{ClearAll: 2})
	events := &recordingEvents{}
	d := New(store, q, testConfig(), WithEventSink(events))

	if err := q.EnqueueClearAll(); err != nil {
		t.Fatalf("EnqueueClearAll: %v", err)
	}
	d.sweepOnce()

	events.mu.Lock()
	defer events.mu.Unlock()
	if events.clearedHits != 1 {
		t.Errorf("clearedHits = %d, want 1", events.clearedHits)
	}
	if len(store.ActiveIDs()) != 0 {
		t.Error("store should be empty after ClearAll")
	}
}

func TestRunDrainsAndInvokesVisualizerPerSweep(t *testing.T) {
	t.Parallel()

	store := trackstore.New(2, 8, 3)
	q := command.New(command.Capacities{DrawPoints: 4})
	vis := &recordingVisualizer{}
	d := New(store, q, testConfig(), WithVisualizer(vis))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	if err := q.EnqueueDrawPoints([]trackstore.Point{assocPoint(1)}); err != nil {
		t.Fatalf("EnqueueDrawPoints: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		vis.mu.Lock()
		got := vis.drawPoints
		vis.mu.Unlock()
		if got >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Run() never invoked DrawPoints")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after ctx cancellation")
	}
}

func TestRunStopsAcceptingEnqueuesAfterShutdown(t *testing.T) {
	t.Parallel()

	store := trackstore.New(2, 8, 3)
	q := command.New(command.Capacities{ClearAll: 4})
	d := New(store, q, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after ctx cancellation")
	}

	if err := q.EnqueueClearAll(); err == nil {
		t.Error("EnqueueClearAll() after shutdown should fail")
	}
}
