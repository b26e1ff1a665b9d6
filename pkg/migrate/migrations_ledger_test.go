package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/clinicops-backend/pkg/migrate"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestLedgerMigrationDeclaresBusinessKeyIndex(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_ledger_sheet_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no ledger sheet migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS ledger_sheet_headers",
		"CREATE TABLE IF NOT EXISTS ledger_sheet_rows",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_sheet_rows_key",
		"DROP TABLE IF EXISTS ledger_sheet_rows",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsApplyOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "migrate.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	require.NoError(t, migrate.Run(ctx, sqlDB, "sqlite3", "migrations", "up"))

	require.NoError(t, conn.Exec(
		`INSERT INTO ledger_sheet_rows (instance, position, business_key, cells) VALUES (?, ?, ?, ?)`,
		"default", 1, "pay_1", `["pay_1"]`,
	).Error)
	err = conn.Exec(
		`INSERT INTO ledger_sheet_rows (instance, position, business_key, cells) VALUES (?, ?, ?, ?)`,
		"default", 2, "pay_1", `["pay_1"]`,
	).Error
	require.Error(t, err, "business key must be unique per instance")

	require.NoError(t, conn.Exec(
		`INSERT INTO payment_orders (id, instance) VALUES (?, ?)`, "pay_1", "default",
	).Error)
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
	require.NoError(t, migrate.ValidateFS(migrate.Embedded()))
}

func TestEmbeddedMigrationsApplyOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "embedded.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.Run(context.Background(), sqlDB, "sqlite3", migrate.DefaultDir, "up"))
	require.True(t, conn.Migrator().HasTable("payment_orders"))
	require.Error(t, migrate.Run(context.Background(), sqlDB, "sqlite3", migrate.DefaultDir, "fix"))
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Refund Index")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_refund_index.sql"))
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestValidateDirRejectsPostgresOnlyDDL(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\n-- +goose StatementBegin\nCREATE TABLE refunds (id BIGSERIAL, meta JSONB);\n-- +goose StatementEnd\n-- +goose Down\nDROP TABLE refunds;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260401000000_refunds.sql"), []byte(body), 0o644))

	err := migrate.ValidateDir(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "BIGSERIAL")
	require.Contains(t, err.Error(), "JSONB")
}
