package kv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres backs the relay KV with a single table. Expiry is lazy: reads
// treat stale rows as absent and delete them in passing.
type Postgres struct {
	db   *sql.DB
	name string
}

// NewPostgres opens the DSN with the pgx stdlib driver and ensures the
// relay_kv table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS relay_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at TIMESTAMPTZ
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure relay_kv table: %w", err)
	}
	return &Postgres{db: db, name: "postgres"}, nil
}

func (p *Postgres) Name() string { return p.name }

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt *time.Time
	err := p.db.QueryRowContext(ctx, `SELECT value, expires_at FROM relay_kv WHERE key = $1`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if expiresAt != nil && !time.Now().Before(*expiresAt) {
		_, _ = p.db.ExecContext(ctx, `DELETE FROM relay_kv WHERE key = $1`, key)
		return "", false, nil
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO relay_kv (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt)
	return err
}

func (p *Postgres) Del(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM relay_kv WHERE key = $1`, key)
	return err
}

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *Postgres) HealthPing(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error { return p.db.Close() }
