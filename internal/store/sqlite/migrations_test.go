package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
)

// seedLegacyDB creates a version-1 database holding records in pre-migration
// shapes.
func seedLegacyDB(t *testing.T, path string) {
	t.Helper()
	db, err := open(path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE meta (k TEXT PRIMARY KEY, v TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE records (collection TEXT NOT NULL, key TEXT NOT NULL, value BLOB NOT NULL, PRIMARY KEY (collection, key))`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO meta (k, v) VALUES ('schema_version', '1'), ('migrated:create-record-tables', '1')`)
	require.NoError(t, err)

	seed := func(collection, key, value string) {
		_, err := db.ExecContext(ctx, `INSERT INTO records (collection, key, value) VALUES (?, ?, ?)`, collection, key, []byte(value))
		require.NoError(t, err)
	}
	seed(colImportedBills, "i1", `{"id":"i1","creatorName":"Bob","localStatus":{"myPortionPaid":true},"lastUpdatedAt":10}`)
	seed(colBills, "b1", `{"id":"b1","status":"active","shareInfo":{"shareId":"s1","encryptionKey":"k","signingPublicKey":"p"},"lastUpdatedAt":10}`)
	seed(colGroups, "g1", `{"id":"g1","name":"flat","participants":[],"defaultSplitMode":"equally","lastUpdatedAt":10}`)
}

func TestMigrationsUpgradeLegacyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bills.db")
	seedLegacyDB(t, path)

	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	ib, err := s.ImportedBills().Get(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, ib.LocalStatus.MyPortionPaid)
	assert.NotNil(t, ib.LocalStatus.PaidItems, "paidItems map added by migration")

	b, err := s.Bills().Get(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, b.ShareInfo)
	assert.Equal(t, model.ShareLive, b.ShareInfo.ShareStatus)

	g, err := s.Groups().Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 0, g.Popularity)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bills.db")
	seedLegacyDB(t, path)

	s, err := New(path)
	require.NoError(t, err)
	raw1 := dumpRecords(t, s.db)
	require.NoError(t, s.Close())

	// Second open: version already current, nothing changes.
	s2, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, raw1, dumpRecords(t, s2.db))
	require.NoError(t, s2.Close())

	// Force the version back without clearing the step markers: the runner
	// revisits every step, sees the markers, and still mutates nothing.
	db, err := open(path)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE meta SET v = '1' WHERE k = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, migrate(context.Background(), db, zerolog.Nop()))
	assert.Equal(t, raw1, dumpRecords(t, db))

	v, err := schemaVersion(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
	require.NoError(t, db.Close())
}

func dumpRecords(t *testing.T, db *sql.DB) map[string]string {
	t.Helper()
	rows, err := db.Query(`SELECT collection, key, value FROM records ORDER BY collection, key`)
	require.NoError(t, err)
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var collection, key string
		var value []byte
		require.NoError(t, rows.Scan(&collection, &key, &value))
		out[collection+"/"+key] = string(value)
	}
	require.NoError(t, rows.Err())
	return out
}
