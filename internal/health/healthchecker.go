// Package health aggregates per-dependency probes (local store, KV backends)
// into a single service health flag.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Checker is implemented by component-level checkers.
type Checker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// Monitor aggregates component checkers into a single service health flag.
type Monitor struct {
	healthy atomic.Int32
	deps    []Checker
	log     zerolog.Logger
}

func NewMonitor(log zerolog.Logger, deps ...Checker) *Monitor {
	m := &Monitor{deps: deps, log: log}
	m.healthy.Store(0)
	return m
}

// IsHealthy returns cached service health.
func (m *Monitor) IsHealthy() bool { return m.healthy.Load() == 1 }

// Start periodically evaluates dependency health and updates the service
// flag. Blocks until ctx is done.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		all := true
		for _, c := range m.deps {
			if !c.IsHealthy() {
				all = false
			}
		}
		if all {
			m.healthy.Store(1)
		} else {
			m.healthy.Store(0)
		}
		cur := m.healthy.Load()
		if cur != prev {
			if cur == 1 {
				m.log.Info().Msg("service health: UP")
			} else {
				m.log.Error().Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
