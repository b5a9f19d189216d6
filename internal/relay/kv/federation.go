package kv

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"
)

// Federation composes independent backing stores for redundancy across
// hosting providers. Reads fan out to every backend and the first present
// value wins; writes route deterministically to one backend by key hash, so
// repeated writes of a key land on the same backend while load spreads
// across the fleet; deletes broadcast because the writer does not track
// which backend holds a key.
//
// With zero backends every operation is a safe no-op reporting absence:
// callers only ever see "no remote data available".
type Federation struct {
	backends []Store
	log      zerolog.Logger
}

func NewFederation(log zerolog.Logger, backends ...Store) *Federation {
	return &Federation{backends: backends, log: log}
}

func (f *Federation) Name() string { return "federation" }

// Backends returns the configured backing stores (health checks).
func (f *Federation) Backends() []Store { return f.backends }

type lookup struct {
	value string
	found bool
	err   error
}

// Get queries all backends concurrently and returns the first value found.
// Backend errors are logged and ignored; only "nobody has it" is absent.
func (f *Federation) Get(ctx context.Context, key string) (string, bool, error) {
	if len(f.backends) == 0 {
		return "", false, nil
	}
	results := make(chan lookup, len(f.backends))
	for _, b := range f.backends {
		go func(b Store) {
			v, ok, err := b.Get(ctx, key)
			if err != nil {
				f.log.Warn().Err(err).Str("backend", b.Name()).Msg("federation get failed")
			}
			results <- lookup{value: v, found: ok && err == nil, err: err}
		}(b)
	}
	for range f.backends {
		if r := <-results; r.found {
			return r.value, true, nil
		}
	}
	return "", false, nil
}

// Set routes to exactly one backend chosen by a stable hash of the key.
func (f *Federation) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if len(f.backends) == 0 {
		return nil
	}
	return f.backends[f.route(key)].Set(ctx, key, value, ttl)
}

// Del broadcasts to every backend; a miss on a backend that never held the
// key is harmless.
func (f *Federation) Del(ctx context.Context, key string) error {
	var firstErr error
	for _, b := range f.backends {
		if err := b.Del(ctx, key); err != nil {
			f.log.Warn().Err(err).Str("backend", b.Name()).Msg("federation del failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Exists fans out like Get.
func (f *Federation) Exists(ctx context.Context, key string) (bool, error) {
	if len(f.backends) == 0 {
		return false, nil
	}
	results := make(chan lookup, len(f.backends))
	for _, b := range f.backends {
		go func(b Store) {
			ok, err := b.Exists(ctx, key)
			if err != nil {
				f.log.Warn().Err(err).Str("backend", b.Name()).Msg("federation exists failed")
			}
			results <- lookup{found: ok && err == nil, err: err}
		}(b)
	}
	for range f.backends {
		if r := <-results; r.found {
			return true, nil
		}
	}
	return false, nil
}

// route maps a key to a backend index with FNV-1a, stable for a given key
// and backend count.
func (f *Federation) route(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(f.backends)))
}
