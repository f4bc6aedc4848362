package migrator

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMigrationFiles_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "README.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := MigrationFiles(dir)
	if err != nil {
		t.Fatalf("MigrationFiles failed: %v", err)
	}
	want := []string{"001_a.sql", "002_b.sql"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("got %v, want %v", files, want)
	}
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	if _, err := MigrationFiles(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestChecksum(t *testing.T) {
	// sha256("") is well known.
	if got := Checksum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("unexpected checksum %s", got)
	}
	if Checksum([]byte("a")) == Checksum([]byte("b")) {
		t.Error("expected different checksums for different content")
	}
}

func TestRepositoryMigrationsAreListed(t *testing.T) {
	files, err := MigrationFiles("../migrations")
	if err != nil {
		t.Fatalf("MigrationFiles failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected at least one migration in db/migrations")
	}
}
