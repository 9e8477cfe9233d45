package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/seawatch/trackhub/internal/command"
	"github.com/seawatch/trackhub/internal/trackstore"
)

func sampleUpdate() command.AddPointUpdate {
	return command.AddPointUpdate{
		HeaderHint: 42,
		Point: trackstore.Point{
			Longitude: 1.5, Latitude: -2.5, SOG: 3, COG: 90, Angle: 10, Distance: 500,
			Associated: true, Timestamp: 1700000000000,
		},
	}
}

func TestEncodeDecodeObservationRoundTrip(t *testing.T) {
	t.Parallel()

	want := sampleUpdate()
	packet := EncodeObservation(want)
	if len(packet) != ObservationSize {
		t.Fatalf("len(packet) = %d, want %d", len(packet), ObservationSize)
	}

	got, err := DecodeObservation(packet)
	if err != nil {
		t.Fatalf("DecodeObservation() = %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestDecodeObservationRejectsShortDatagram(t *testing.T) {
	t.Parallel()

	_, err := DecodeObservation(make([]byte, ObservationSize-1))
	if err != ErrShortDatagram {
		t.Errorf("DecodeObservation() = %v, want ErrShortDatagram", err)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	updates []command.AddPointUpdate
	reject  bool
}

func (r *recordingSink) AddPoints(updates []command.AddPointUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return errRejected
	}
	r.updates = append(r.updates, updates...)
	return nil
}

var errRejected = &rejectError{}

type rejectError struct{}

func (*rejectError) Error() string { return "rejected" }

func TestListenerEndToEndOverRealSocket(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	l := NewListener(Config{ListenAddr: "127.0.0.1:0", ReadTimeout: 10 * time.Millisecond}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		if err := l.Start(ctx); err != nil && err != context.Canceled {
			t.Error(err)
		}
		close(done)
	}()
	<-started

	var boundAddr *net.UDPAddr
	deadline := time.Now().Add(time.Second)
	for l.conn == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if l.conn != nil {
		boundAddr = l.conn.LocalAddr().(*net.UDPAddr)
	}
	if boundAddr == nil {
		t.Fatal("listener never bound a socket")
	}

	sender, err := net.DialUDP("udp", nil, boundAddr)
	if err != nil {
		t.Fatalf("DialUDP() = %v", err)
	}
	defer sender.Close()

	want := sampleUpdate()
	if _, err := sender.Write(EncodeObservation(want)); err != nil {
		t.Fatalf("Write() = %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.updates)
		sink.mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("listener never forwarded the observation to the sink")
		}
		time.Sleep(time.Millisecond)
	}

	sink.mu.Lock()
	got := sink.updates[0]
	sink.mu.Unlock()
	if got != want {
		t.Errorf("forwarded update = %+v, want %+v", got, want)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestHandlePacketCountsDecodeErrors(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	l := NewListener(Config{}, sink)
	l.handlePacket([]byte{1, 2, 3})

	packets, decodeErrors, _ := l.stats.Snapshot()
	if packets != 1 || decodeErrors != 1 {
		t.Errorf("Snapshot() = packets=%d decodeErrors=%d, want 1,1", packets, decodeErrors)
	}
}

func TestHandlePacketForwardsToSink(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	l := NewListener(Config{}, sink)
	want := sampleUpdate()
	l.handlePacket(EncodeObservation(want))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.updates) != 1 || sink.updates[0] != want {
		t.Errorf("sink.updates = %v, want [%v]", sink.updates, want)
	}
}

func TestHandlePacketCountsDroppedOnSinkRejection(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{reject: true}
	l := NewListener(Config{}, sink)
	l.handlePacket(EncodeObservation(sampleUpdate()))

	_, _, dropped := l.stats.Snapshot()
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}
