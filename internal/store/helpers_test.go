package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/pocketmoney/internal/database"
	"github.com/dukerupert/pocketmoney/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedFamily creates a family with one parent and one kid.
func seedFamily(t *testing.T, db *sql.DB) (family *model.Family, parent, kid *model.Member) {
	t.Helper()
	ctx := context.Background()
	fs := NewFamilyStore(db)

	family, err := fs.Create(ctx, "Test Family")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	parent, err = fs.AddMember(ctx, family.ID, "Mom", model.RoleParent)
	if err != nil {
		t.Fatalf("add parent: %v", err)
	}
	kid, err = fs.AddMember(ctx, family.ID, "Alice", model.RoleKid)
	if err != nil {
		t.Fatalf("add kid: %v", err)
	}
	return family, parent, kid
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}
