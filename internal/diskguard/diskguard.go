// Package diskguard pauses the digit stream while free space on the output
// volume is below a threshold.
package diskguard

import (
	"fmt"
	"log/slog"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v3/disk"
)

// UsageFunc reports free bytes on the filesystem holding path.
type UsageFunc func(path string) (free uint64, err error)

// Guard implements stream.Backpressure.
type Guard struct {
	path    string
	minFree uint64
	usage   UsageFunc
	logger  *slog.Logger
	lastErr string
}

// Option configures a Guard.
type Option func(*Guard)

// WithUsageFunc replaces the gopsutil lookup.
func WithUsageFunc(f UsageFunc) Option {
	return func(g *Guard) { g.usage = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// New watches the volume holding path. A zero minFree disables the guard.
func New(path string, minFree uint64, opts ...Option) *Guard {
	g := &Guard{
		path:    path,
		minFree: minFree,
		usage:   Free,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "diskguard")
	return g
}

// Free returns the free bytes on the filesystem holding path.
func Free(path string) (uint64, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}
	return u.Free, nil
}

// Threshold returns the configured minimum free bytes.
func (g *Guard) Threshold() uint64 { return g.minFree }

// ShouldPause reports true while free space is below the threshold. A failed
// lookup counts as no free space.
func (g *Guard) ShouldPause() (bool, string) {
	if g.minFree == 0 {
		return false, ""
	}

	free, err := g.usage(g.path)
	if err != nil {
		if msg := err.Error(); msg != g.lastErr {
			g.logger.Warn("disk usage lookup failed", "error", err)
			g.lastErr = msg
		}
		free = 0
	} else {
		g.lastErr = ""
	}

	if free < g.minFree {
		return true, fmt.Sprintf("Free space %s < %s", units.BytesSize(float64(free)), units.BytesSize(float64(g.minFree)))
	}
	return false, ""
}
