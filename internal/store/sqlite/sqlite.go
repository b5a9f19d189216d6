// Package sqlite provides the SQLite-backed implementation of store.Store.
// Entities are persisted as JSON values in a generic records table, one row
// per (collection, key), with a meta table carrying the schema version and
// migration markers.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/centerionware/smartbillsplitter-sub001/internal/merge"
	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/sealed"
	"github.com/centerionware/smartbillsplitter-sub001/internal/store"
)

// Collection names. These are the persisted layout; renaming one is a
// migration.
const (
	colBills          = "bills"
	colImportedBills  = "imported_bills"
	colRecurringBills = "recurring_bills"
	colGroups         = "groups"
	colCategories     = "categories"
	colSettings       = "settings"
	colTheme          = "theme"
	colSubscription   = "subscription"
	colBillKeys       = "bill_keys"
	colCommKey        = "comm_key"
)

// singletonKey is the reserved key for single-record collections.
const singletonKey = "singleton"

var _ store.Store = (*Store)(nil)

// Store implements store.Store on SQLite.
type Store struct {
	db     *sql.DB
	log    zerolog.Logger
	now    func() time.Time
	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithNow overrides the clock (subscription expiry checks in tests).
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for migrations and background cleanup.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New opens (or creates) the store at path and runs pending migrations.
// A lock held by a sibling instance surfaces as model.ErrOpenBlocked so the
// caller can broadcast a close request instead of crashing.
func New(path string, opts ...Option) (*Store, error) {
	s := &Store{
		log: zerolog.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(context.Background(), db, s.log); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.db = db
	return s, nil
}

// Close releases the connection. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) HealthPing(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

func (s *Store) guard() error {
	if s.closed.Load() {
		return model.ErrStoreClosed
	}
	return nil
}

// --- generic record helpers ---

func listAs[T any](ctx context.Context, s *Store, collection string) ([]T, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT value FROM records WHERE collection = ? ORDER BY key`, collection)
	if err != nil {
		return nil, mapLocked(err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func getAs[T any](ctx context.Context, s *Store, collection, key string) (*T, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE collection = ? AND key = ?`, collection, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, mapLocked(err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", collection, err)
	}
	return &v, nil
}

func putAs[T any](ctx context.Context, s *Store, collection, key string, v T) error {
	if err := s.guard(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO records (collection, key, value) VALUES (?, ?, ?)`, collection, key, raw)
	return mapLocked(err)
}

// putManyAs writes all items in one transaction; either all land or none.
func putManyAs[T any](ctx context.Context, s *Store, collection string, items []T, key func(T) string) error {
	if err := s.guard(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapLocked(err)
	}
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO records (collection, key, value) VALUES (?, ?, ?)`, collection, key(item), raw); err != nil {
			_ = tx.Rollback()
			return mapLocked(err)
		}
	}
	return tx.Commit()
}

func (s *Store) deleteRecord(ctx context.Context, collection, key string) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND key = ?`, collection, key)
	return mapLocked(err)
}

// --- collections ---

func (s *Store) Bills() store.Bills                   { return bills{s} }
func (s *Store) ImportedBills() store.ImportedBills   { return importedBills{s} }
func (s *Store) RecurringBills() store.RecurringBills { return recurringBills{s} }
func (s *Store) Groups() store.Groups                 { return groups{s} }
func (s *Store) Categories() store.Categories         { return categories{s} }
func (s *Store) Settings() store.Settings             { return settings{s} }
func (s *Store) Themes() store.Themes                 { return themes{s} }
func (s *Store) Subscriptions() store.Subscriptions   { return subscriptions{s} }
func (s *Store) Keys() store.Keys                     { return keys{s} }

type bills struct{ s *Store }

func (c bills) List(ctx context.Context) ([]model.Bill, error) {
	return listAs[model.Bill](ctx, c.s, colBills)
}
func (c bills) Get(ctx context.Context, id string) (*model.Bill, error) {
	return getAs[model.Bill](ctx, c.s, colBills, id)
}
func (c bills) Put(ctx context.Context, b model.Bill) error {
	return putAs(ctx, c.s, colBills, b.ID, b)
}
func (c bills) PutMany(ctx context.Context, bs []model.Bill) error {
	return putManyAs(ctx, c.s, colBills, bs, func(b model.Bill) string { return b.ID })
}
func (c bills) Delete(ctx context.Context, id string) error {
	return c.s.deleteRecord(ctx, colBills, id)
}

type importedBills struct{ s *Store }

func (c importedBills) List(ctx context.Context) ([]model.ImportedBill, error) {
	return listAs[model.ImportedBill](ctx, c.s, colImportedBills)
}
func (c importedBills) Get(ctx context.Context, id string) (*model.ImportedBill, error) {
	return getAs[model.ImportedBill](ctx, c.s, colImportedBills, id)
}
func (c importedBills) Put(ctx context.Context, b model.ImportedBill) error {
	return putAs(ctx, c.s, colImportedBills, b.ID, b)
}
func (c importedBills) PutMany(ctx context.Context, bs []model.ImportedBill) error {
	return putManyAs(ctx, c.s, colImportedBills, bs, func(b model.ImportedBill) string { return b.ID })
}
func (c importedBills) Delete(ctx context.Context, id string) error {
	return c.s.deleteRecord(ctx, colImportedBills, id)
}

type recurringBills struct{ s *Store }

func (c recurringBills) List(ctx context.Context) ([]model.RecurringBill, error) {
	return listAs[model.RecurringBill](ctx, c.s, colRecurringBills)
}
func (c recurringBills) Get(ctx context.Context, id string) (*model.RecurringBill, error) {
	return getAs[model.RecurringBill](ctx, c.s, colRecurringBills, id)
}
func (c recurringBills) Put(ctx context.Context, b model.RecurringBill) error {
	return putAs(ctx, c.s, colRecurringBills, b.ID, b)
}
func (c recurringBills) Delete(ctx context.Context, id string) error {
	return c.s.deleteRecord(ctx, colRecurringBills, id)
}

type groups struct{ s *Store }

func (c groups) List(ctx context.Context) ([]model.Group, error) {
	return listAs[model.Group](ctx, c.s, colGroups)
}
func (c groups) Get(ctx context.Context, id string) (*model.Group, error) {
	return getAs[model.Group](ctx, c.s, colGroups, id)
}
func (c groups) Put(ctx context.Context, g model.Group) error {
	return putAs(ctx, c.s, colGroups, g.ID, g)
}
func (c groups) Delete(ctx context.Context, id string) error {
	return c.s.deleteRecord(ctx, colGroups, id)
}

type categories struct{ s *Store }

func (c categories) List(ctx context.Context) ([]model.Category, error) {
	return listAs[model.Category](ctx, c.s, colCategories)
}
func (c categories) Put(ctx context.Context, cat model.Category) error {
	return putAs(ctx, c.s, colCategories, cat.ID, cat)
}
func (c categories) PutMany(ctx context.Context, cs []model.Category) error {
	return putManyAs(ctx, c.s, colCategories, cs, func(cat model.Category) string { return cat.ID })
}
func (c categories) Delete(ctx context.Context, id string) error {
	return c.s.deleteRecord(ctx, colCategories, id)
}

type settings struct{ s *Store }

func (c settings) Get(ctx context.Context) (*model.Settings, error) {
	return getAs[model.Settings](ctx, c.s, colSettings, singletonKey)
}
func (c settings) Put(ctx context.Context, v model.Settings) error {
	return putAs(ctx, c.s, colSettings, singletonKey, v)
}

type themes struct{ s *Store }

func (c themes) Get(ctx context.Context) (model.Theme, error) {
	t, err := getAs[model.Theme](ctx, c.s, colTheme, singletonKey)
	if err == model.ErrNotFound {
		return model.ThemeSystem, nil
	}
	if err != nil {
		return "", err
	}
	return *t, nil
}
func (c themes) Put(ctx context.Context, t model.Theme) error {
	return putAs(ctx, c.s, colTheme, singletonKey, t)
}

type subscriptions struct{ s *Store }

// Get recomputes validity on every read and deletes expired records, so a
// lapsed subscription disappears the first time anything looks at it.
func (c subscriptions) Get(ctx context.Context) (*model.Subscription, error) {
	sub, err := getAs[model.Subscription](ctx, c.s, colSubscription, singletonKey)
	if err != nil {
		return nil, err
	}
	if !sub.ValidAt(c.s.now()) {
		c.s.log.Info().Str("provider", sub.Provider).Time("expired", sub.ExpiresAt()).Msg("subscription expired, removing")
		if err := c.s.deleteRecord(ctx, colSubscription, singletonKey); err != nil {
			return nil, err
		}
		return nil, model.ErrNotFound
	}
	return sub, nil
}
func (c subscriptions) Put(ctx context.Context, v model.Subscription) error {
	return putAs(ctx, c.s, colSubscription, singletonKey, v)
}
func (c subscriptions) Delete(ctx context.Context) error {
	return c.s.deleteRecord(ctx, colSubscription, singletonKey)
}

type keys struct{ s *Store }

func (c keys) BillKey(ctx context.Context, billID string) (*model.KeyPair, error) {
	return getAs[model.KeyPair](ctx, c.s, colBillKeys, billID)
}
func (c keys) PutBillKey(ctx context.Context, billID string, kp model.KeyPair) error {
	return putAs(ctx, c.s, colBillKeys, billID, kp)
}
func (c keys) DeleteBillKey(ctx context.Context, billID string) error {
	return c.s.deleteRecord(ctx, colBillKeys, billID)
}
func (c keys) BillKeys(ctx context.Context) (map[string]model.KeyPair, error) {
	if err := c.s.guard(); err != nil {
		return nil, err
	}
	rows, err := c.s.db.QueryContext(ctx, `SELECT key, value FROM records WHERE collection = ?`, colBillKeys)
	if err != nil {
		return nil, mapLocked(err)
	}
	defer rows.Close()
	out := map[string]model.KeyPair{}
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var kp model.KeyPair
		if err := json.Unmarshal(raw, &kp); err != nil {
			return nil, err
		}
		out[key] = kp
	}
	return out, rows.Err()
}

func (c keys) EnsureCommKeyPair(ctx context.Context) (model.KeyPair, error) {
	kp, err := getAs[model.KeyPair](ctx, c.s, colCommKey, singletonKey)
	if err == nil {
		return *kp, nil
	}
	if err != model.ErrNotFound {
		return model.KeyPair{}, err
	}
	fresh, err := sealed.GenerateSigningKeyPair()
	if err != nil {
		return model.KeyPair{}, err
	}
	if err := putAs(ctx, c.s, colCommKey, singletonKey, fresh); err != nil {
		return model.KeyPair{}, err
	}
	return fresh, nil
}

// --- snapshot export/import ---

// ExportAll snapshots every collection into one object.
func (s *Store) ExportAll(ctx context.Context) (*model.Snapshot, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	snap := &model.Snapshot{}
	var err error
	if snap.Bills, err = s.Bills().List(ctx); err != nil {
		return nil, err
	}
	if snap.ImportedBills, err = s.ImportedBills().List(ctx); err != nil {
		return nil, err
	}
	if snap.RecurringBills, err = s.RecurringBills().List(ctx); err != nil {
		return nil, err
	}
	if snap.Groups, err = s.Groups().List(ctx); err != nil {
		return nil, err
	}
	if snap.Categories, err = s.Categories().List(ctx); err != nil {
		return nil, err
	}
	if st, err := s.Settings().Get(ctx); err == nil {
		snap.Settings = st
	} else if err != model.ErrNotFound {
		return nil, err
	}
	theme, err := s.Themes().Get(ctx)
	if err != nil {
		return nil, err
	}
	snap.Theme = &theme
	if sub, err := s.Subscriptions().Get(ctx); err == nil {
		snap.Subscription = sub
	} else if err != model.ErrNotFound {
		return nil, err
	}
	if snap.BillKeys, err = s.Keys().BillKeys(ctx); err != nil {
		return nil, err
	}
	if kp, err := getAs[model.KeyPair](ctx, s, colCommKey, singletonKey); err == nil {
		snap.CommKeyPair = kp
	} else if err != model.ErrNotFound {
		return nil, err
	}
	return snap, nil
}

// ImportAll clears every collection and repopulates only the collections
// present in the snapshot, in one all-or-nothing transaction.
func (s *Store) ImportAll(ctx context.Context, snap *model.Snapshot) error {
	if err := s.guard(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapLocked(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return mapLocked(err)
	}

	put := func(collection, key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO records (collection, key, value) VALUES (?, ?, ?)`, collection, key, raw)
		return err
	}

	for _, b := range snap.Bills {
		if err := put(colBills, b.ID, b); err != nil {
			return err
		}
	}
	for _, b := range snap.ImportedBills {
		if err := put(colImportedBills, b.ID, b); err != nil {
			return err
		}
	}
	for _, b := range snap.RecurringBills {
		if err := put(colRecurringBills, b.ID, b); err != nil {
			return err
		}
	}
	for _, g := range snap.Groups {
		if err := put(colGroups, g.ID, g); err != nil {
			return err
		}
	}
	for _, c := range snap.Categories {
		if err := put(colCategories, c.ID, c); err != nil {
			return err
		}
	}
	if snap.Settings != nil {
		if err := put(colSettings, singletonKey, snap.Settings); err != nil {
			return err
		}
	}
	if snap.Theme != nil {
		if err := put(colTheme, singletonKey, snap.Theme); err != nil {
			return err
		}
	}
	if snap.Subscription != nil {
		if err := put(colSubscription, singletonKey, snap.Subscription); err != nil {
			return err
		}
	}
	for billID, kp := range snap.BillKeys {
		if err := put(colBillKeys, billID, kp); err != nil {
			return err
		}
	}
	if snap.CommKeyPair != nil {
		if err := put(colCommKey, singletonKey, snap.CommKeyPair); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MergeAll reconciles the snapshot's list collections with the local data
// using last-write-wins. Unlike ImportAll nothing is cleared: local records
// absent from the snapshot survive, and a losing incoming record leaves the
// local copy untouched. All writes land in one transaction.
func (s *Store) MergeAll(ctx context.Context, snap *model.Snapshot) (merge.Counts, error) {
	var total merge.Counts
	if err := s.guard(); err != nil {
		return total, err
	}

	localBills, err := s.Bills().List(ctx)
	if err != nil {
		return total, err
	}
	mergedBills, c := merge.Bills(localBills, snap.Bills)
	total.Add(c)

	localImported, err := s.ImportedBills().List(ctx)
	if err != nil {
		return total, err
	}
	mergedImported, c := merge.ImportedBills(localImported, snap.ImportedBills)
	total.Add(c)

	localRecurring, err := s.RecurringBills().List(ctx)
	if err != nil {
		return total, err
	}
	mergedRecurring, c := merge.RecurringBills(localRecurring, snap.RecurringBills)
	total.Add(c)

	localGroups, err := s.Groups().List(ctx)
	if err != nil {
		return total, err
	}
	mergedGroups, c := merge.Groups(localGroups, snap.Groups)
	total.Add(c)

	localCategories, err := s.Categories().List(ctx)
	if err != nil {
		return total, err
	}
	mergedCategories, c := merge.Categories(localCategories, snap.Categories)
	total.Add(c)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return total, mapLocked(err)
	}
	defer func() { _ = tx.Rollback() }()

	put := func(collection, key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO records (collection, key, value) VALUES (?, ?, ?)`, collection, key, raw)
		return mapLocked(err)
	}

	for _, b := range mergedBills {
		if err := put(colBills, b.ID, b); err != nil {
			return total, err
		}
	}
	for _, b := range mergedImported {
		if err := put(colImportedBills, b.ID, b); err != nil {
			return total, err
		}
	}
	for _, b := range mergedRecurring {
		if err := put(colRecurringBills, b.ID, b); err != nil {
			return total, err
		}
	}
	for _, g := range mergedGroups {
		if err := put(colGroups, g.ID, g); err != nil {
			return total, err
		}
	}
	for _, cat := range mergedCategories {
		if err := put(colCategories, cat.ID, cat); err != nil {
			return total, err
		}
	}
	return total, tx.Commit()
}
