package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/quadrumtech/signal-gateway/internal/infrastructure/database"
)

func TestEmbeddedSchema(t *testing.T) {
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "schema.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{
		"devices", "device_control_states", "device_telemetry", "phases", "patterns", "plans", "audit_logs",
	} {
		var count int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&count); err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("table %s missing after migration", table)
		}
	}

	// Newest first: the audit table goes, then the core schema.
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	var audit int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='audit_logs'",
	).Scan(&audit); err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if audit != 0 {
		t.Error("audit_logs table should be dropped by the first down migration")
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	var remaining int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='devices'",
	).Scan(&remaining); err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if remaining != 0 {
		t.Error("devices table should be dropped by the down migration")
	}
}
