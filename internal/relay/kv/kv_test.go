package kv

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTTL(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, ShareKey("a"), "v1", 5*time.Minute))

	v, ok, err := m.Get(ctx, ShareKey("a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	now = now.Add(5*time.Minute + time.Second)
	_, ok, err = m.Get(ctx, ShareKey("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := m.Exists(ctx, ShareKey("a"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryTTLRefreshOnSet(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v1", time.Hour))
	now = now.Add(50 * time.Minute)
	require.NoError(t, m.Set(ctx, "k", "v2", time.Hour))
	now = now.Add(50 * time.Minute)

	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "the second set reset the clock")
	assert.Equal(t, "v2", v)
}

// failing is a Store whose every call errors, for federation fan-out tests.
type failing struct{}

func (failing) Name() string                                     { return "failing" }
func (failing) Get(context.Context, string) (string, bool, error) { return "", false, errors.New("down") }
func (failing) Set(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}
func (failing) Del(context.Context, string) error            { return errors.New("down") }
func (failing) Exists(context.Context, string) (bool, error) { return false, errors.New("down") }

func TestFederationRoutingIsDeterministic(t *testing.T) {
	a, b, c := NewMemory(), NewMemory(), NewMemory()
	f := NewFederation(zerolog.Nop(), a, b, c)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		key := ShareKey(fmt.Sprintf("bill-%d", i))
		want := f.route(key)
		for j := 0; j < 3; j++ {
			require.NoError(t, f.Set(ctx, key, "v", time.Hour))
			assert.Equal(t, want, f.route(key), "route must be stable across calls")
		}
		// The value must be present on exactly the routed backend.
		stores := []*Memory{a, b, c}
		for idx, s := range stores {
			_, ok, err := s.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, idx == want, ok)
		}
	}
}

func TestFederationGetIgnoresFailedBackends(t *testing.T) {
	healthy := NewMemory()
	f := NewFederation(zerolog.Nop(), failing{}, healthy)
	ctx := context.Background()

	require.NoError(t, healthy.Set(ctx, "k", "v", time.Hour))

	v, ok, err := f.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	exists, err := f.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFederationDelBroadcasts(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	f := NewFederation(zerolog.Nop(), a, b)
	ctx := context.Background()

	// Plant the key on both backends directly; the writer doesn't know
	// which one a federated Set would have picked.
	require.NoError(t, a.Set(ctx, "k", "v", time.Hour))
	require.NoError(t, b.Set(ctx, "k", "v", time.Hour))

	require.NoError(t, f.Del(ctx, "k"))
	for _, s := range []*Memory{a, b} {
		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestFederationZeroBackendsIsNoOp(t *testing.T) {
	f := NewFederation(zerolog.Nop())
	ctx := context.Background()

	v, ok, err := f.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)

	require.NoError(t, f.Set(ctx, "k", "v", time.Hour))
	require.NoError(t, f.Del(ctx, "k"))

	exists, err := f.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}
