// Package kv is the relay's ephemeral key-value abstraction: opaque string
// values under namespaced keys, each with a TTL. The relay only ever sees
// encrypted payloads, so backends need no knowledge of the data.
package kv

import (
	"context"
	"time"
)

// Store is one backing key-value store.
type Store interface {
	// Get returns the value and whether the key exists (expired keys count
	// as absent).
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Name identifies the backend in logs and health reports.
	Name() string
}

// Retention windows for the relay record classes.
const (
	// ShareTTL: share records live 30 days from creation or last update;
	// every push resets the clock.
	ShareTTL = 30 * 24 * time.Hour
	// SyncCodeTTL: handshake codes are short-lived and single-use.
	SyncCodeTTL = 5 * time.Minute
	// OneTimeKeyTTL: one-time key records are read-once within a day.
	OneTimeKeyTTL = 24 * time.Hour
)

// Key namespaces.
func ShareKey(shareID string) string { return "share:" + shareID }
func SyncKey(code string) string     { return "sync:" + code }
func OneTimeKey(keyID string) string { return "onetimekey:" + keyID }
