package migrate

import (
	"context"
	"testing"

	"fdc/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if v, err := Version(ctx, conn); err != nil || v != 0 {
		t.Fatalf("expected version 0 before migrating, got %d (%v)", v, err)
	}
	migrations, err := loadMigrations()
	if err != nil || len(migrations) == 0 {
		t.Fatalf("load migrations: %v", err)
	}
	latest := migrations[len(migrations)-1].Version

	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, conn); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
		v, err := Version(ctx, conn)
		if err != nil || v != latest {
			t.Fatalf("run %d: expected version %d, got %d (%v)", i+1, latest, v, err)
		}
	}
	for _, table := range []string{"units", "observers", "missions", "events", "api_keys"} {
		var name string
		if err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
