package database

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := MigrationFiles(dir)
	if err != nil {
		t.Fatalf("MigrationFiles failed: %v", err)
	}
	if want := []string{"001_a.sql", "002_b.sql"}; !reflect.DeepEqual(files, want) {
		t.Errorf("Expected %v, got %v", want, files)
	}
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	if _, err := MigrationFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestRepositoryMigrations(t *testing.T) {
	files, err := MigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("MigrationFiles failed: %v", err)
	}
	if len(files) == 0 || files[0] != "001_create_leak_alerts.sql" {
		t.Errorf("Unexpected migrations %v", files)
	}
}
