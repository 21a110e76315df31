package migrate_test

import (
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/haulbid-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one %s migration", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestBidsMigrationLinksWinningBid(t *testing.T) {
	content := readMigration(t, "create_bids")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS bids",
		"FOREIGN KEY (auction_id) REFERENCES auctions(id)",
		"CHECK (amount > 0)",
		"UNIQUE (auction_id, user_id)",
		"FOREIGN KEY (winning_bid_id) REFERENCES bids(id)",
		"DROP CONSTRAINT IF EXISTS auctions_winning_bid_id_fkey",
	}
	for _, sub := range checks {
		require.Contains(t, content, sub)
	}
	require.NotContains(t, content, "ON DELETE CASCADE")
}

func TestAuctionsMigrationGuardsAggregates(t *testing.T) {
	content := readMigration(t, "create_auctions")
	checks := []string{
		"CHECK (status IN ('active', 'completed', 'cancelled', 'incomplete'))",
		"lowest_bid_amount <= highest_bid_amount",
		"CHECK (bid_count >= 0)",
		"DROP TABLE IF EXISTS auctions",
	}
	for _, sub := range checks {
		require.Contains(t, content, sub)
	}
}

func TestChildTablesReferenceParents(t *testing.T) {
	require.Contains(t, readMigration(t, "create_trips"), "FOREIGN KEY (auction_id) REFERENCES auctions(id)")
	require.Contains(t, readMigration(t, "create_notifications"), "FOREIGN KEY (auction_id) REFERENCES auctions(id)")
	audit := readMigration(t, "create_audit_logs")
	require.Contains(t, audit, "FOREIGN KEY (user_id) REFERENCES profiles(id)")
	require.Contains(t, audit, "details ? 'actor'")
}

func TestValidateDir(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
	require.NoError(t, migrate.ValidateEmbedded())

	empty := t.TempDir()
	require.ErrorContains(t, migrate.ValidateDir(empty), "no migrations found")

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.ErrorContains(t, migrate.ValidateDir(bad), "invalid migration filename")
}

func TestValidateFSAnnotations(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"missing down":  {body: "-- +goose Up\nSELECT 1;\n", want: "missing"},
		"down first":    {body: "-- +goose Down\n-- +goose Up\n", want: "must come after"},
		"unbalanced":    {body: "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n", want: "unbalanced"},
		"duplicate ver": {want: "duplicate migration version"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"20260101000000_first.sql": {Data: []byte(tc.body)},
			}
			if tc.body == "" {
				ok := []byte("-- +goose Up\n-- +goose Down\n")
				fsys = fstest.MapFS{
					"20260101000000_first.sql":  {Data: ok},
					"20260101000000_second.sql": {Data: ok},
				}
			}
			require.ErrorContains(t, migrate.ValidateFS(fsys, "."), tc.want)
		})
	}
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	compiled, err := fs.Glob(migrate.Embedded(), "migrations/*.sql")
	require.NoError(t, err)
	require.Len(t, compiled, len(onDisk))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Bid Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_bid_index.sql"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "-- +goose Up")
	require.Contains(t, string(data), "-- rollback add_bid_index")

	// same second, different name: the version must still advance
	second, err := migrate.CreateSQLMigration(dir, "add bid index")
	require.NoError(t, err)
	require.NotEqual(t, filepath.Base(path)[:14], filepath.Base(second)[:14])
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := migrate.ParseVersion("20260105090200")
	require.NoError(t, err)
	require.Equal(t, int64(20260105090200), v)

	for _, raw := range []string{"", "2026", "2026010509020x", "-0260105090200"} {
		_, err := migrate.ParseVersion(raw)
		require.Error(t, err, raw)
	}
}

func TestNewRunnerSource(t *testing.T) {
	_, err := migrate.NewRunner(nil, "")
	require.Error(t, err)

	db := &sql.DB{}
	r, err := migrate.NewRunner(db, migrate.DefaultDir)
	require.NoError(t, err)
	require.True(t, r.Embedded())

	r, err = migrate.NewRunner(db, "/tmp/other")
	require.NoError(t, err)
	require.False(t, r.Embedded())
}
