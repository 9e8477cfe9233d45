package visualizer

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/seawatch/trackhub/internal/dispatcher"
	"github.com/seawatch/trackhub/internal/telemetry"
	"github.com/seawatch/trackhub/internal/trackstore"
)

// Config holds configuration for the visualizer gRPC server.
type Config struct {
	// ListenAddr is the address to listen on, e.g. ":7701".
	ListenAddr string
	// ClientBufferSize bounds how many frames a slow client may lag by
	// before frames are dropped for that client specifically.
	ClientBufferSize int
	// StatsInterval bounds how often periodic throughput stats are logged.
	StatsInterval time.Duration
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":7701",
		ClientBufferSize: 16,
		StatsInterval:    5 * time.Second,
	}
}

// Publisher implements dispatcher.Visualizer by broadcasting Frames to
// every gRPC client currently streaming from it.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	frameChan chan Frame
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64
	lastStatsTime time.Time
	lastFrameSeq  uint64
	statsMu       sync.Mutex

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id      string
	req     StreamRequest
	frameCh chan Frame
	doneCh  chan struct{}
}

// PublisherStats reports current publisher throughput.
type PublisherStats struct {
	FrameCount  uint64
	ClientCount int32
	Dropped     uint64
	Running     bool
}

var _ dispatcher.Visualizer = (*Publisher)(nil)

// NewPublisher constructs a Publisher that is not yet listening.
func NewPublisher(cfg Config) *Publisher {
	if cfg.ClientBufferSize <= 0 {
		cfg.ClientBufferSize = DefaultConfig().ClientBufferSize
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultConfig().StatsInterval
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan Frame, 128),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start binds the listener and begins serving StreamFrames.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("visualizer: publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("visualizer: listen: %w", err)
	}
	p.listener = lis
	p.server = grpc.NewServer()
	p.server.RegisterService(&serviceDesc, p)

	p.running.Store(true)

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		telemetry.Logf("visualizer: listening on %s", p.config.ListenAddr)
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			telemetry.Logf("visualizer: serve error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server and any in-flight streams.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)
	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}
	p.wg.Wait()
}

// DrawPoints implements dispatcher.Visualizer. It publishes a raw draw
// frame without touching the store.
func (p *Publisher) DrawPoints(points []trackstore.Point) {
	p.publish(Frame{
		Kind: FrameDraw,
		Draw: newPointViews(points),
	})
}

// DrawTracks implements dispatcher.Visualizer. It publishes a full
// snapshot of every live track, read through the decoupled reader
// interface so it can never mutate the store.
func (p *Publisher) DrawTracks(reader dispatcher.SnapshotReader) {
	ids := reader.ActiveIDs()
	tracks := make([]TrackView, 0, len(ids))
	for _, id := range ids {
		header, ok := reader.Header(id)
		if !ok {
			continue
		}
		window, _ := reader.Window(id)
		tracks = append(tracks, TrackView{
			ID:                 header.ID,
			ExtrapolationCount: header.ExtrapolationCount,
			PointCount:         header.PointCount,
			State:              int32(header.State),
			Window:             newPointViews(window),
		})
	}
	p.publish(Frame{Kind: FrameSnapshot, Tracks: tracks})
}

// Clear implements dispatcher.Visualizer. It tells clients to drop any
// cached track state, mirroring a trackstore.Store.ClearAll.
func (p *Publisher) Clear() {
	p.publish(Frame{Kind: FrameCleared})
}

func (p *Publisher) publish(frame Frame) {
	if !p.running.Load() {
		return
	}
	seq := p.frameCount.Add(1)
	frame.SequenceNumber = seq
	frame.TimestampNanos = time.Now().UnixNano()

	select {
	case p.frameChan <- frame:
		p.logPeriodicStats(seq)
	default:
		dropped := p.droppedFrames.Add(1)
		telemetry.Logf("visualizer: dropped frame %d (total dropped %d), broadcast channel full", seq, dropped)
	}
}

func (p *Publisher) logPeriodicStats(seq uint64) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	now := time.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime = now
		p.lastFrameSeq = seq
		return
	}
	elapsed := now.Sub(p.lastStatsTime)
	if elapsed < p.config.StatsInterval {
		return
	}
	framesInInterval := seq - p.lastFrameSeq
	fps := float64(framesInInterval) / elapsed.Seconds()
	telemetry.Logf("visualizer: fps=%.1f frames=%d dropped=%d clients=%d",
		fps, framesInInterval, p.droppedFrames.Load(), p.clientCount.Load())
	p.lastStatsTime = now
	p.lastFrameSeq = seq
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				if frame.Kind == FrameDraw && !c.req.IncludeDraw {
					continue
				}
				select {
				case c.frameCh <- frame:
				default:
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient(req StreamRequest) *clientStream {
	c := &clientStream{
		id:      uuid.NewString(),
		req:     req,
		frameCh: make(chan Frame, p.config.ClientBufferSize),
		doneCh:  make(chan struct{}),
	}
	p.clientsMu.Lock()
	p.clients[c.id] = c
	p.clientsMu.Unlock()
	p.clientCount.Add(1)
	telemetry.Logf("visualizer: client connected: %s (total %d)", c.id, p.clientCount.Load())
	return c
}

func (p *Publisher) removeClient(c *clientStream) {
	p.clientsMu.Lock()
	if _, ok := p.clients[c.id]; ok {
		delete(p.clients, c.id)
		p.clientsMu.Unlock()
		close(c.doneCh)
		p.clientCount.Add(-1)
		telemetry.Logf("visualizer: client disconnected: %s (remaining %d)", c.id, p.clientCount.Load())
		return
	}
	p.clientsMu.Unlock()
}

// Stats returns a snapshot of current publisher throughput.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:  p.frameCount.Load(),
		ClientCount: p.clientCount.Load(),
		Dropped:     p.droppedFrames.Load(),
		Running:     p.running.Load(),
	}
}

// serviceDesc is the hand-authored equivalent of a protoc-gen-go-grpc
// ServiceDesc: one server-streaming method, StreamFrames.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "trackhub.visualizer.v1.TrackFeed",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamFrames",
			Handler:       streamFramesHandler,
			ServerStreams: true,
		},
	},
}

func streamFramesHandler(srv interface{}, stream grpc.ServerStream) error {
	p := srv.(*Publisher)

	var req StreamRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}

	c := p.addClient(req)
	defer p.removeClient(c)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case frame := <-c.frameCh:
			if err := stream.SendMsg(&frame); err != nil {
				return err
			}
		}
	}
}
