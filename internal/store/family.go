package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/pocketmoney/internal/model"
)

type FamilyStore struct {
	db DBTX
}

func NewFamilyStore(db DBTX) *FamilyStore {
	return &FamilyStore{db: db}
}

func (s *FamilyStore) Create(ctx context.Context, name string) (*model.Family, error) {
	f := model.Family{ID: newID(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO families (id, name, created_at) VALUES (?, ?, ?)`,
		f.ID, f.Name, toMillis(f.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	return s.GetByID(ctx, f.ID)
}

func (s *FamilyStore) GetByID(ctx context.Context, id string) (*model.Family, error) {
	var f model.Family
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM families WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	f.CreatedAt = fromMillis(created)
	return &f, nil
}

// --- Member methods ---

func scanMember(sc scanner) (*model.Member, error) {
	var m model.Member
	var created int64
	if err := sc.Scan(&m.ID, &m.FamilyID, &m.DisplayName, &m.Role, &created); err != nil {
		return nil, err
	}
	m.CreatedAt = fromMillis(created)
	return &m, nil
}

const memberCols = `id, family_id, display_name, role, created_at`

func (s *FamilyStore) AddMember(ctx context.Context, familyID, displayName string, role model.Role) (*model.Member, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, family_id, display_name, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, familyID, displayName, role, toMillis(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return s.GetMember(ctx, id)
}

func (s *FamilyStore) GetMember(ctx context.Context, id string) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *FamilyStore) ListMembers(ctx context.Context, familyID string) ([]model.Member, error) {
	return s.listMembers(ctx,
		`SELECT `+memberCols+` FROM members WHERE family_id = ? ORDER BY created_at ASC, id ASC`,
		familyID,
	)
}

// ListKids returns the members of a family with the kid role.
func (s *FamilyStore) ListKids(ctx context.Context, familyID string) ([]model.Member, error) {
	return s.listMembers(ctx,
		`SELECT `+memberCols+` FROM members WHERE family_id = ? AND role = 'kid' ORDER BY created_at ASC, id ASC`,
		familyID,
	)
}

func (s *FamilyStore) listMembers(ctx context.Context, query string, args ...any) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}
