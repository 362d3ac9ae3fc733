package database

import (
	"testing"

	"github.com/pressly/goose/v3"
)

func TestOpenMigratesToLatest(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	v, err := Version(db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 5 {
		t.Errorf("version = %d, want 5", v)
	}

	var fk int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if fk != 1 {
		t.Error("expected foreign keys to be enforced")
	}

	if err := Migrate(db); err != nil {
		t.Errorf("second migrate should be a no-op: %v", err)
	}
}

func TestLatestMigrationRollsBack(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := goose.Down(db, "migrations"); err != nil {
		t.Fatalf("down: %v", err)
	}
	if v, _ := Version(db); v != 4 {
		t.Errorf("version after down = %d, want 4", v)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("up again: %v", err)
	}
	if v, _ := Version(db); v != 5 {
		t.Errorf("version after up = %d, want 5", v)
	}
}
