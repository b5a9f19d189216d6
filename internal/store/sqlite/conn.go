package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
)

// open opens (or creates) the SQLite database at path with WAL journaling.
// A short busy timeout keeps a lock held by a sibling instance from hanging
// the open; the caller sees model.ErrOpenBlocked instead.
func open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, mapLocked(err)
	}
	return db, nil
}

// mapLocked converts driver lock/busy errors into the recoverable
// ErrOpenBlocked sentinel.
func mapLocked(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%w: %v", model.ErrOpenBlocked, err)
	}
	return err
}

// Destroy deletes the database files for a hard reset. It first probes for a
// live writer so a blocked delete is reported distinctly from delete
// failure.
func Destroy(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := open(path)
	if err != nil {
		return err
	}
	// An immediate transaction needs the write lock; failure means another
	// instance still has the store open. Pin one connection so BEGIN and
	// COMMIT run on the same underlying handle.
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return mapLocked(err)
	}
	if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err == nil {
		_, err = conn.ExecContext(ctx, "COMMIT")
	}
	_ = conn.Close()
	_ = db.Close()
	if err != nil {
		return mapLocked(err)
	}

	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path+suffix, err)
		}
	}
	return nil
}
