package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/seawatch/trackhub/internal/command"
	"github.com/seawatch/trackhub/internal/telemetry"
)

// Sink is the narrow surface the listener needs from the service facade.
type Sink interface {
	AddPoints(updates []command.AddPointUpdate) error
}

// Config configures a Listener.
type Config struct {
	// ListenAddr is the UDP address to bind, e.g. ":7702".
	ListenAddr string
	// RcvBufBytes sets the socket receive buffer size.
	RcvBufBytes int
	// LogInterval bounds how often Stats are logged.
	LogInterval time.Duration
	// ReadTimeout bounds how long a single ReadFromUDP call blocks before
	// rechecking context cancellation.
	ReadTimeout time.Duration
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:  ":7702",
		RcvBufBytes: 1 << 16,
		LogInterval: time.Minute,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Stats tracks listener throughput, safe for concurrent use.
type Stats struct {
	packets      atomic.Uint64
	decodeErrors atomic.Uint64
	dropped      atomic.Uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() (packets, decodeErrors, dropped uint64) {
	return s.packets.Load(), s.decodeErrors.Load(), s.dropped.Load()
}

// StatsSnapshot is a point-in-time, copyable view of Listener throughput,
// suitable for handing to a reporting layer that must not hold a pointer
// into the live atomic counters.
type StatsSnapshot struct {
	Packets      uint64 `json:"packets"`
	DecodeErrors uint64 `json:"decode_errors"`
	Dropped      uint64 `json:"dropped"`
}

// Listener receives per-observation UDP datagrams and forwards each one to
// a Sink as an AddPoints command.
type Listener struct {
	cfg   Config
	sink  Sink
	conn  *net.UDPConn
	stats Stats
}

// NewListener constructs a Listener over sink. Zero-value Config fields
// fall back to DefaultConfig.
func NewListener(cfg Config, sink Sink) *Listener {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.RcvBufBytes <= 0 {
		cfg.RcvBufBytes = def.RcvBufBytes
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = def.LogInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	return &Listener{cfg: cfg, sink: sink}
}

// Start binds the UDP socket and processes datagrams until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("transport: resolve udp address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen udp: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if err := conn.SetReadBuffer(l.cfg.RcvBufBytes); err != nil {
		telemetry.Logf("transport: failed to set read buffer to %d bytes: %v", l.cfg.RcvBufBytes, err)
	}
	telemetry.Logf("transport: listening on %s", l.cfg.ListenAddr)

	go l.logStatsLoop(ctx)

	buffer := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				telemetry.Logf("transport: read error: %v", err)
				continue
			}
			l.handlePacket(buffer[:n])
		}
	}
}

func (l *Listener) handlePacket(packet []byte) {
	l.stats.packets.Add(1)

	update, err := DecodeObservation(packet)
	if err != nil {
		l.stats.decodeErrors.Add(1)
		telemetry.Logf("transport: decode error: %v", err)
		return
	}
	if err := l.sink.AddPoints([]command.AddPointUpdate{update}); err != nil {
		l.stats.dropped.Add(1)
		telemetry.Logf("transport: AddPoints rejected observation for hint %d: %v", update.HeaderHint, err)
	}
}

func (l *Listener) logStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			packets, decodeErrors, dropped := l.stats.Snapshot()
			telemetry.Logf("transport: stats packets=%d decode_errors=%d dropped=%d", packets, decodeErrors, dropped)
		}
	}
}

// Stats returns a snapshot of the listener's throughput counters.
func (l *Listener) Stats() StatsSnapshot {
	packets, decodeErrors, dropped := l.stats.Snapshot()
	return StatsSnapshot{Packets: packets, DecodeErrors: decodeErrors, Dropped: dropped}
}

// Close releases the underlying socket, if bound.
func (l *Listener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
