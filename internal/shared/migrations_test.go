package shared

import "testing"

func TestRunMigrations(t *testing.T) {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	ConfigureDatabase(db, 1, 1)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	t.Run("Creates Documents Table", func(t *testing.T) {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'documents'").Scan(&name)
		if err != nil {
			t.Fatalf("expected documents table: %v", err)
		}
	})

	t.Run("Is Idempotent", func(t *testing.T) {
		if err := RunMigrations(db); err != nil {
			t.Fatalf("expected rerun to be a no-op, got %v", err)
		}
	})
}
