package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Pinger is implemented by components that expose a liveness probe.
// HealthPing must return nil when the component is healthy.
type Pinger interface {
	HealthPing(ctx context.Context) error
}

// pingTimeout bounds a single probe so one stuck dependency cannot stall
// the whole evaluation loop.
const pingTimeout = 5 * time.Second

// PingChecker adapts a named Pinger into a Checker by probing it on an
// interval and caching the result.
type PingChecker struct {
	name    string
	target  Pinger
	healthy atomic.Int32
	log     zerolog.Logger
}

func NewPingChecker(name string, target Pinger, log zerolog.Logger) *PingChecker {
	return &PingChecker{name: name, target: target, log: log}
}

func (p *PingChecker) Name() string { return p.name }

func (p *PingChecker) IsHealthy() bool { return p.healthy.Load() == 1 }

func (p *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	probe := func() {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := p.target.HealthPing(pctx); err != nil {
			if p.healthy.Swap(0) == 1 {
				p.log.Warn().Err(err).Str("dependency", p.name).Msg("health probe failed")
			}
			return
		}
		p.healthy.Store(1)
	}

	probe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}
