package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeChecker struct {
	name    string
	healthy atomic.Int32
}

func (f *fakeChecker) Name() string                               { return f.name }
func (f *fakeChecker) IsHealthy() bool                            { return f.healthy.Load() == 1 }
func (f *fakeChecker) Start(ctx context.Context, _ time.Duration) { /* no-op */ }

func TestMonitorTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zerolog.Nop()

	store := &fakeChecker{name: "store"}
	redis := &fakeChecker{name: "redis"}
	store.healthy.Store(1)
	redis.healthy.Store(1)

	m := NewMonitor(logger, store, redis)
	go m.Start(ctx, 10*time.Millisecond)

	waitTrue(t, func() bool { return m.IsHealthy() })

	// One backend down takes the service down.
	redis.healthy.Store(0)
	waitTrue(t, func() bool { return !m.IsHealthy() })

	redis.healthy.Store(1)
	waitTrue(t, func() bool { return m.IsHealthy() })
}

type fakePinger struct {
	fail atomic.Bool
}

func (f *fakePinger) HealthPing(context.Context) error {
	if f.fail.Load() {
		return errors.New("down")
	}
	return nil
}

func TestPingCheckerProbes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &fakePinger{}
	pc := NewPingChecker("kv", target, zerolog.Nop())
	go pc.Start(ctx, 10*time.Millisecond)

	waitTrue(t, func() bool { return pc.IsHealthy() })

	target.fail.Store(true)
	waitTrue(t, func() bool { return !pc.IsHealthy() })

	target.fail.Store(false)
	waitTrue(t, func() bool { return pc.IsHealthy() })
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}
