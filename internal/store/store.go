// Package store defines the persistence contract for all local collections:
// bills, imported bills, recurring templates, groups, categories, the
// singleton settings/theme/subscription records, and key material.
// Implementations live under internal/store/<driver>/ (currently sqlite).
package store

import (
	"context"

	"github.com/centerionware/smartbillsplitter-sub001/internal/merge"
	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
)

// Store exposes per-collection accessors plus whole-dataset export/import.
// Every operation runs in its own implicit transaction; PutMany and
// ImportAll are single all-or-nothing transactions.
type Store interface {
	Bills() Bills
	ImportedBills() ImportedBills
	RecurringBills() RecurringBills
	Groups() Groups
	Categories() Categories
	Settings() Settings
	Themes() Themes
	Subscriptions() Subscriptions
	Keys() Keys

	// ExportAll snapshots every collection into a single object.
	ExportAll(ctx context.Context) (*model.Snapshot, error)
	// ImportAll clears every collection and repopulates only the collections
	// present in the snapshot, atomically.
	ImportAll(ctx context.Context, snap *model.Snapshot) error
	// MergeAll folds the snapshot's list collections into the local data with
	// last-write-wins. Nothing is cleared; singleton records and key material
	// are left untouched.
	MergeAll(ctx context.Context, snap *model.Snapshot) (merge.Counts, error)

	HealthPing(ctx context.Context) error
	// Close releases the connection. Later operations fail with
	// model.ErrStoreClosed instead of hanging.
	Close() error
}

type Bills interface {
	List(ctx context.Context) ([]model.Bill, error)
	Get(ctx context.Context, id string) (*model.Bill, error)
	Put(ctx context.Context, b model.Bill) error
	PutMany(ctx context.Context, bs []model.Bill) error
	Delete(ctx context.Context, id string) error
}

type ImportedBills interface {
	List(ctx context.Context) ([]model.ImportedBill, error)
	Get(ctx context.Context, id string) (*model.ImportedBill, error)
	Put(ctx context.Context, b model.ImportedBill) error
	PutMany(ctx context.Context, bs []model.ImportedBill) error
	Delete(ctx context.Context, id string) error
}

type RecurringBills interface {
	List(ctx context.Context) ([]model.RecurringBill, error)
	Get(ctx context.Context, id string) (*model.RecurringBill, error)
	Put(ctx context.Context, b model.RecurringBill) error
	Delete(ctx context.Context, id string) error
}

type Groups interface {
	List(ctx context.Context) ([]model.Group, error)
	Get(ctx context.Context, id string) (*model.Group, error)
	Put(ctx context.Context, g model.Group) error
	Delete(ctx context.Context, id string) error
}

type Categories interface {
	List(ctx context.Context) ([]model.Category, error)
	Put(ctx context.Context, c model.Category) error
	PutMany(ctx context.Context, cs []model.Category) error
	Delete(ctx context.Context, id string) error
}

// Settings is a singleton collection: one reserved key, no list.
type Settings interface {
	Get(ctx context.Context) (*model.Settings, error)
	Put(ctx context.Context, s model.Settings) error
}

type Themes interface {
	// Get returns ThemeSystem when nothing has been stored yet.
	Get(ctx context.Context) (model.Theme, error)
	Put(ctx context.Context, t model.Theme) error
}

// Subscriptions derives validity on every read: an expired record is
// deleted during Get and reported as absent.
type Subscriptions interface {
	Get(ctx context.Context) (*model.Subscription, error)
	Put(ctx context.Context, s model.Subscription) error
	Delete(ctx context.Context) error
}

// Keys stores the per-bill signing key pairs and the device communication
// pair. Private keys never leave this collection except via ExportAll.
type Keys interface {
	BillKey(ctx context.Context, billID string) (*model.KeyPair, error)
	PutBillKey(ctx context.Context, billID string, kp model.KeyPair) error
	DeleteBillKey(ctx context.Context, billID string) error
	BillKeys(ctx context.Context) (map[string]model.KeyPair, error)

	// EnsureCommKeyPair returns the device communication pair, generating
	// and persisting one on first use.
	EnsureCommKeyPair(ctx context.Context) (model.KeyPair, error)
}
