// Command trackd runs the track registry: the dispatcher worker, the
// visualizer frame feed, the UDP observation listener (or, in -demo mode,
// a synthetic traffic generator), and the operator HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/seawatch/trackhub/internal/command"
	"github.com/seawatch/trackhub/internal/config"
	"github.com/seawatch/trackhub/internal/dispatcher"
	"github.com/seawatch/trackhub/internal/harness"
	"github.com/seawatch/trackhub/internal/httpapi"
	"github.com/seawatch/trackhub/internal/service"
	"github.com/seawatch/trackhub/internal/telemetry"
	"github.com/seawatch/trackhub/internal/trackstore"
	"github.com/seawatch/trackhub/internal/transport"
	"github.com/seawatch/trackhub/internal/visualizer"
)

var (
	configPath = flag.String("config", "", "path to a JSON config file (defaults built in if unset)")
	demoMode   = flag.Bool("demo", false, "generate synthetic traffic instead of listening for real UDP observations")
	demoSeed   = flag.Int64("demo-seed", 1, "RNG seed for -demo synthetic traffic")
)

// telemetryEvents adapts dispatcher.EventSink onto the package logger, the
// only collaborator wiring this binary needs for warnings and lifecycle
// notifications.
type telemetryEvents struct{}

func (telemetryEvents) Warnf(format string, args ...interface{}) {
	telemetry.Logf(format, args...)
}

func (telemetryEvents) TrackTerminated(event trackstore.TerminationEvent) {
	telemetry.Logf("track %d terminated after %d points", event.ID, event.Header.PointCount)
}

func (telemetryEvents) Cleared() {
	telemetry.Logf("store cleared")
}

func main() {
	flag.Parse()

	cfg := config.MustDefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	store := trackstore.New(cfg.GetPoolCapacity(), cfg.GetPointsPerTrack(), cfg.GetMaxExtrapolation())
	queue := command.New(command.Capacities{
		DrawPoints:   cfg.GetDrawQueueCapacity(),
		Merge:        cfg.GetMergeQueueCapacity(),
		CreateTracks: cfg.GetCreateQueueCapacity(),
		AddPoints:    cfg.GetAddQueueCapacity(),
		ClearAll:     cfg.GetClearQueueCapacity(),
	})

	publisher := visualizer.NewPublisher(visualizer.Config{ListenAddr: cfg.GetVisualizerListenAddr()})
	if err := publisher.Start(); err != nil {
		log.Fatalf("failed to start visualizer feed: %v", err)
	}
	defer publisher.Stop()

	disp := dispatcher.New(store, queue, dispatcher.Config{
		IdleWait:      time.Duration(cfg.GetDispatcherIdleWaitMillis()) * time.Millisecond,
		ShutdownGrace: time.Duration(cfg.GetShutdownGraceSeconds()) * time.Second,
	}, dispatcher.WithVisualizer(publisher), dispatcher.WithEventSink(telemetryEvents{}))

	svc := service.New(queue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		disp.Run(ctx)
		log.Print("dispatcher routine terminated")
	}()

	var listener *transport.Listener
	if *demoMode {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runDemoTraffic(ctx, svc, *demoSeed)
			log.Print("demo traffic routine terminated")
		}()
	} else {
		listener = transport.NewListener(transport.Config{ListenAddr: cfg.GetTransportListenAddr()}, svc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("transport listener stopped: %v", err)
			}
			log.Print("transport routine terminated")
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		stats := map[string]func() any{
			"visualizer": func() any { return publisher.Stats() },
		}
		if listener != nil {
			stats["transport"] = func() any { return listener.Stats() }
		}

		mux := httpapi.NewServer(svc, store, stats).ServeMux()
		server := &http.Server{
			Addr:    cfg.GetHTTPListenAddr(),
			Handler: httpapi.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start HTTP server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Print("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Print("HTTP server routine terminated")
	}()

	wg.Wait()
	if listener != nil {
		listener.Close()
	}
	log.Print("graceful shutdown complete")
}

// runDemoTraffic drives the service facade with synthetic tracks and
// observations so the feed and HTTP API have something to show without a
// real UDP source. It seeds a handful of tracks up front, then loops
// pushing points and occasionally merging two tracks until ctx is done.
func runDemoTraffic(ctx context.Context, svc *service.Service, seed int64) {
	gen := harness.New(harness.DefaultConfig(), seed)

	seeds := make([][4]trackstore.Point, 0, 8)
	for i := 0; i < 8; i++ {
		seeds = append(seeds, gen.NextSeed(time.Now()))
	}
	if err := svc.CreateTracks(seeds); err != nil {
		telemetry.Logf("demo: CreateTracks failed: %v", err)
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			// Track ids are issued sequentially starting at 1; this demo
			// doesn't read them back from the store, it just hints at the
			// range it seeded and lets stale hints fall through as
			// harmless UnknownTrack warnings once tracks terminate.
			update := gen.NextUpdate(uint32(tick%8)+1, time.Now())
			if err := svc.AddPoints([]command.AddPointUpdate{update}); err != nil {
				telemetry.Logf("demo: AddPoints failed: %v", err)
			}
			if tick%50 == 0 {
				if source, target, ok := gen.PickMergePair([]uint32{1, 2, 3, 4, 5, 6, 7, 8}); ok {
					if err := svc.Merge(source, target); err != nil {
						telemetry.Logf("demo: Merge(%d, %d) failed: %v", source, target, err)
					}
				}
			}
		}
	}
}
