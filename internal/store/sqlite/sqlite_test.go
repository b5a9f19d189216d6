package sqlite

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centerionware/smartbillsplitter-sub001/internal/broadcast"
	"github.com/centerionware/smartbillsplitter-sub001/internal/merge"
	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/sealed"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "bills.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBillCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := model.Bill{
		ID: "b1", Description: "groceries", TotalAmount: 55.20, Date: "2025-06-01",
		Status:        model.BillActive,
		Participants:  []model.Participant{{ID: "p1", Name: "Ana", AmountOwed: 27.60}},
		LastUpdatedAt: 1000,
	}
	require.NoError(t, s.Bills().Put(ctx, b))

	got, err := s.Bills().Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, b, *got)

	b.Status = model.BillArchived
	require.NoError(t, s.Bills().Put(ctx, b))
	got, err = s.Bills().Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BillArchived, got.Status)

	lst, err := s.Bills().List(ctx)
	require.NoError(t, err)
	assert.Len(t, lst, 1)

	require.NoError(t, s.Bills().Delete(ctx, "b1"))
	_, err = s.Bills().Get(ctx, "b1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPutManyWritesAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bs := []model.Bill{
		{ID: "a", Status: model.BillActive, LastUpdatedAt: 1},
		{ID: "b", Status: model.BillActive, LastUpdatedAt: 2},
		{ID: "c", Status: model.BillActive, LastUpdatedAt: 3},
	}
	require.NoError(t, s.Bills().PutMany(ctx, bs))

	lst, err := s.Bills().List(ctx)
	require.NoError(t, err)
	assert.Len(t, lst, 3)
}

func TestThemeDefaultsToSystem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	theme, err := s.Themes().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeSystem, theme)

	require.NoError(t, s.Themes().Put(ctx, model.ThemeDark))
	theme, err = s.Themes().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeDark, theme)
}

func TestSubscriptionExpiresOnRead(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithNow(func() time.Time { return now }))
	ctx := context.Background()

	sub := model.Subscription{
		Provider: "stripe", CustomerID: "c1", SubscriptionID: "s1",
		StartDate: now.Add(-10 * 24 * time.Hour), Duration: model.DurationMonthly,
	}
	require.NoError(t, s.Subscriptions().Put(ctx, sub))

	got, err := s.Subscriptions().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SubscriptionID)

	// Jump past the grace window: the read deletes the record.
	now = now.Add(40 * 24 * time.Hour)
	_, err = s.Subscriptions().Get(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Gone for good, even if the clock goes backwards.
	now = now.Add(-40 * 24 * time.Hour)
	_, err = s.Subscriptions().Get(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestKeysRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kp := model.KeyPair{PublicKey: "pub", PrivateKey: "priv"}
	require.NoError(t, s.Keys().PutBillKey(ctx, "b1", kp))

	got, err := s.Keys().BillKey(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, kp, *got)

	all, err := s.Keys().BillKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]model.KeyPair{"b1": kp}, all)

	comm1, err := s.Keys().EnsureCommKeyPair(ctx)
	require.NoError(t, err)
	comm2, err := s.Keys().EnsureCommKeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, comm1, comm2, "comm key pair must be a stable singleton")
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Bills().Put(ctx, model.Bill{ID: "b1", Status: model.BillActive, LastUpdatedAt: 5}))
	require.NoError(t, s.Groups().Put(ctx, model.Group{ID: "g1", Name: "flat", LastUpdatedAt: 5}))
	require.NoError(t, s.Settings().Put(ctx, model.Settings{MyDisplayName: "Ana", LastUpdatedAt: 5}))

	snap, err := s.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Bills, 1)
	require.NotNil(t, snap.Settings)

	// Import into a fresh store that has unrelated data; the import clears it.
	dst := newTestStore(t)
	require.NoError(t, dst.Bills().Put(ctx, model.Bill{ID: "stale", LastUpdatedAt: 1}))
	require.NoError(t, dst.ImportAll(ctx, snap))

	lst, err := dst.Bills().List(ctx)
	require.NoError(t, err)
	require.Len(t, lst, 1)
	assert.Equal(t, "b1", lst[0].ID)

	st, err := dst.Settings().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana", st.MyDisplayName)
}

func TestClosedStoreFailsFast(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is safe")

	ctx := context.Background()
	_, err := s.Bills().List(ctx)
	assert.ErrorIs(t, err, model.ErrStoreClosed)
	assert.ErrorIs(t, s.Bills().Put(ctx, model.Bill{ID: "x"}), model.ErrStoreClosed)
	assert.ErrorIs(t, s.HealthPing(ctx), model.ErrStoreClosed)
}

// holdWriteLock takes the database write lock on a dedicated connection and
// returns an idempotent release func.
func holdWriteLock(t *testing.T, s *Store) func() {
	t.Helper()
	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		_ = conn.Close()
	}
	t.Cleanup(release)
	return release
}

// forcePendingMigration rewinds the schema version so the next open has a
// write to perform.
func forcePendingMigration(t *testing.T, s *Store) {
	t.Helper()
	last := migrations[len(migrations)-1]
	_, err := s.db.Exec(`UPDATE meta SET v = ? WHERE k = 'schema_version'`, strconv.Itoa(last.Version-1))
	require.NoError(t, err)
	_, err = s.db.Exec(`DELETE FROM meta WHERE k = ?`, markerKey(last.Name))
	require.NoError(t, err)
}

func TestOpenBlockedBySiblingWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bills.db")
	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()

	forcePendingMigration(t, s)
	release := holdWriteLock(t, s)

	_, err = New(path)
	assert.ErrorIs(t, err, model.ErrOpenBlocked)

	release()
	s2, err := New(path)
	require.NoError(t, err)
	_ = s2.Close()
}

func TestBlockedOpenRequestsClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bills.db")
	holder, err := New(path)
	require.NoError(t, err)
	forcePendingMigration(t, holder)
	release := holdWriteLock(t, holder)

	broker := broadcast.NewBroker(zerolog.Nop())
	kp, err := sealed.GenerateSigningKeyPair()
	require.NoError(t, err)
	holderConn, err := broker.Connect("holder", kp)
	require.NoError(t, err)
	defer holderConn.Close()

	var closeRequests int
	holderConn.SetHandler(func(e broadcast.Event) {
		if e == broadcast.EventCloseRequested {
			closeRequests++
			release()
			_ = holder.Close()
		}
	})

	_, err = New(path)
	require.ErrorIs(t, err, model.ErrOpenBlocked)

	// The blocked instance asks siblings to let go, then retries.
	require.NoError(t, broadcast.RequestClose(broker))
	assert.Equal(t, 1, closeRequests)

	s, err := New(path)
	require.NoError(t, err)
	_ = s.Close()
}

func TestMergeAllFoldsSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Bills().Put(ctx, model.Bill{ID: "b1", Status: model.BillArchived, TotalAmount: 10, LastUpdatedAt: 10}))
	require.NoError(t, s.Bills().Put(ctx, model.Bill{ID: "b3", Status: model.BillActive, TotalAmount: 30, LastUpdatedAt: 30}))
	require.NoError(t, s.Groups().Put(ctx, model.Group{ID: "g-local", Name: "flat", LastUpdatedAt: 5}))

	snap := &model.Snapshot{
		Bills: []model.Bill{
			{ID: "b1", Status: model.BillActive, TotalAmount: 12, LastUpdatedAt: 20}, // newer, adopted
			{ID: "b2", Status: model.BillActive, TotalAmount: 20, LastUpdatedAt: 15}, // unknown, added
			{ID: "b3", Status: model.BillActive, TotalAmount: 99, LastUpdatedAt: 5},  // stale, skipped
		},
	}
	counts, err := s.MergeAll(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, merge.Counts{Added: 1, Updated: 1, Skipped: 1}, counts)

	b1, err := s.Bills().Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 12.0, b1.TotalAmount)
	assert.Equal(t, model.BillArchived, b1.Status, "archive state is a local decision")

	b3, err := s.Bills().Get(ctx, "b3")
	require.NoError(t, err)
	assert.Equal(t, 30.0, b3.TotalAmount)

	// Unlike ImportAll, collections missing from the snapshot survive.
	groups, err := s.Groups().List(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestDestroyRemovesDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bills.db")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Bills().Put(context.Background(), model.Bill{ID: "b1"}))
	require.NoError(t, s.Close())

	require.NoError(t, Destroy(path))

	// A fresh open starts empty.
	s2, err := New(path)
	require.NoError(t, err)
	defer s2.Close()
	lst, err := s2.Bills().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lst)
}

func TestDestroyBlockedByLiveWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bills.db")
	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()

	release := holdWriteLock(t, s)
	assert.ErrorIs(t, Destroy(path), model.ErrOpenBlocked)

	release()
	require.NoError(t, s.Close())
	require.NoError(t, Destroy(path))
}
