// Package harness generates synthetic observations for tests and local
// demos. Each Generator owns its own math/rand source rather than sharing
// the global one, so concurrent producers (one per goroutine) never
// contend on a shared lock the way the global rand functions would.
package harness

import (
	"math"
	"math/rand"
	"time"

	"github.com/seawatch/trackhub/internal/command"
	"github.com/seawatch/trackhub/internal/trackstore"
)

// Config bounds the synthetic tracks a Generator produces.
type Config struct {
	// AreaRadiusMetres bounds how far from the origin generated positions
	// may fall.
	AreaRadiusMetres float64
	// SpeedMPS is the constant speed assigned to every generated track.
	SpeedMPS float64
	// ExtrapolationRate is the probability in [0,1] that a generated point
	// is unassociated, exercising the extrapolation/termination path.
	ExtrapolationRate float64
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{AreaRadiusMetres: 50_000, SpeedMPS: 12, ExtrapolationRate: 0.05}
}

// Generator produces synthetic track seeds, point observations, and merge
// pairs for tests, fuzzing, and demo traffic.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// New constructs a Generator seeded from seed. Two Generators constructed
// with the same seed produce identical sequences, which test callers rely
// on for reproducibility.
func New(cfg Config, seed int64) *Generator {
	if cfg.AreaRadiusMetres <= 0 {
		cfg.AreaRadiusMetres = DefaultConfig().AreaRadiusMetres
	}
	if cfg.SpeedMPS <= 0 {
		cfg.SpeedMPS = DefaultConfig().SpeedMPS
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// NextPoint returns one synthetic observation timestamped at now, at a
// random position and heading, with Associated drawn according to
// ExtrapolationRate.
func (g *Generator) NextPoint(now time.Time) trackstore.Point {
	angle := g.rng.Float64() * 2 * math.Pi
	radius := g.rng.Float64() * g.cfg.AreaRadiusMetres
	cog := g.rng.Float64() * 360

	return trackstore.Point{
		Longitude:  radius * math.Cos(angle) / 111_320, // crude metres-to-degrees
		Latitude:   radius * math.Sin(angle) / 110_540,
		SOG:        g.cfg.SpeedMPS,
		COG:        cog,
		Angle:      angle * 180 / math.Pi,
		Distance:   radius / 1000, // Point.Distance is in km
		Associated: g.rng.Float64() >= g.cfg.ExtrapolationRate,
		Timestamp:  now.UnixMilli(),
	}
}

// NextSeed returns four chronologically ordered synthetic points suitable
// for service.Service.CreateTracks.
func (g *Generator) NextSeed(now time.Time) [4]trackstore.Point {
	var seed [4]trackstore.Point
	for i := range seed {
		seed[i] = g.NextPoint(now.Add(time.Duration(i) * time.Second))
	}
	return seed
}

// NextUpdate returns an AddPointUpdate hinting at trackID.
func (g *Generator) NextUpdate(trackID uint32, now time.Time) command.AddPointUpdate {
	return command.AddPointUpdate{HeaderHint: trackID, Point: g.NextPoint(now)}
}

// PickMergePair chooses two distinct ids from ids at random, for exercising
// Service.Merge against a live track set. It returns ok=false if fewer
// than two ids are available.
func (g *Generator) PickMergePair(ids []uint32) (source, target uint32, ok bool) {
	if len(ids) < 2 {
		return 0, 0, false
	}
	i := g.rng.Intn(len(ids))
	j := g.rng.Intn(len(ids))
	for j == i {
		j = g.rng.Intn(len(ids))
	}
	return ids[i], ids[j], true
}
