package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// A migration is a named, idempotent schema step. Apply must check its own
// "already migrated" marker (or the shape of the data) before mutating, so
// re-running a step after a partial upgrade is safe. The new schema version
// and the step marker are committed in the same transaction as the changes.
type migration struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create-record-tables",
		Apply: func(ctx context.Context, tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS records (
					collection TEXT NOT NULL,
					key        TEXT NOT NULL,
					value      BLOB NOT NULL,
					PRIMARY KEY (collection, key)
				);`,
				`CREATE INDEX IF NOT EXISTS records_collection_idx ON records(collection);`,
			}
			for _, s := range stmts {
				if _, err := tx.ExecContext(ctx, s); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		Version: 2,
		Name:    "imported-bill-paid-items",
		// Older imported bills predate the per-item paid overlay; give them
		// an empty map so the UI can toggle items without nil checks.
		Apply: rewriteRecords(colImportedBills, func(rec map[string]json.RawMessage) (bool, error) {
			var local map[string]json.RawMessage
			if raw, ok := rec["localStatus"]; ok {
				if err := json.Unmarshal(raw, &local); err != nil {
					return false, err
				}
			}
			if local == nil {
				local = map[string]json.RawMessage{}
			}
			if _, ok := local["paidItems"]; ok {
				return false, nil // already migrated
			}
			local["paidItems"] = json.RawMessage(`{}`)
			raw, err := json.Marshal(local)
			if err != nil {
				return false, err
			}
			rec["localStatus"] = raw
			return true, nil
		}),
	},
	{
		Version: 3,
		Name:    "share-status-default",
		// Bills shared before share liveness tracking existed get an
		// explicit "live" status.
		Apply: rewriteRecords(colBills, func(rec map[string]json.RawMessage) (bool, error) {
			raw, ok := rec["shareInfo"]
			if !ok || string(raw) == "null" {
				return false, nil
			}
			var info map[string]json.RawMessage
			if err := json.Unmarshal(raw, &info); err != nil {
				return false, err
			}
			if _, ok := info["shareStatus"]; ok {
				return false, nil // already migrated
			}
			info["shareStatus"] = json.RawMessage(`"live"`)
			out, err := json.Marshal(info)
			if err != nil {
				return false, err
			}
			rec["shareInfo"] = out
			return true, nil
		}),
	},
	{
		Version: 4,
		Name:    "group-popularity-counter",
		Apply: rewriteRecords(colGroups, func(rec map[string]json.RawMessage) (bool, error) {
			if _, ok := rec["popularity"]; ok {
				return false, nil
			}
			rec["popularity"] = json.RawMessage(`0`)
			return true, nil
		}),
	},
}

// rewriteRecords builds an Apply func that rewrites every record of one
// collection through fn. fn returns false when the record is already in the
// target shape, which keeps the step idempotent.
func rewriteRecords(collection string, fn func(rec map[string]json.RawMessage) (bool, error)) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT key, value FROM records WHERE collection = ?`, collection)
		if err != nil {
			return err
		}
		type pending struct {
			key   string
			value []byte
		}
		var updates []pending
		for rows.Next() {
			var key string
			var value []byte
			if err := rows.Scan(&key, &value); err != nil {
				rows.Close()
				return err
			}
			var rec map[string]json.RawMessage
			if err := json.Unmarshal(value, &rec); err != nil {
				rows.Close()
				return fmt.Errorf("%s/%s: %w", collection, key, err)
			}
			changed, err := fn(rec)
			if err != nil {
				rows.Close()
				return fmt.Errorf("%s/%s: %w", collection, key, err)
			}
			if !changed {
				continue
			}
			out, err := json.Marshal(rec)
			if err != nil {
				rows.Close()
				return err
			}
			updates = append(updates, pending{key: key, value: out})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, u := range updates {
			if _, err := tx.ExecContext(ctx, `UPDATE records SET value = ? WHERE collection = ? AND key = ?`, u.value, collection, u.key); err != nil {
				return err
			}
		}
		return nil
	}
}

// migrate applies every migration newer than the stored schema version, in
// order, each inside its own transaction together with the version bump and
// a per-step marker. Safe to run on every open.
func migrate(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (k TEXT PRIMARY KEY, v TEXT NOT NULL)`); err != nil {
		return mapLocked(err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return mapLocked(err)
		}
		done, err := stepDone(ctx, tx, m.Name)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if !done {
			if err := m.Apply(ctx, tx); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, mapLocked(err))
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (k, v) VALUES (?, '1')`, markerKey(m.Name)); err != nil {
				_ = tx.Rollback()
				return mapLocked(err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (k, v) VALUES ('schema_version', ?)`, strconv.Itoa(m.Version)); err != nil {
			_ = tx.Rollback()
			return mapLocked(err)
		}
		if err := tx.Commit(); err != nil {
			return mapLocked(err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Bool("skipped", done).Msg("migration applied")
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = 'schema_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

func stepDone(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var v string
	err := tx.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = ?`, markerKey(name)).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func markerKey(name string) string { return "migrated:" + name }
