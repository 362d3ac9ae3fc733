package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/pocketmoney/internal/model"
)

type ChoreStore struct {
	db DBTX
}

func NewChoreStore(db DBTX) *ChoreStore {
	return &ChoreStore{db: db}
}

// --- Template methods ---

func scanTemplate(sc scanner) (*model.ChoreTemplate, error) {
	var t model.ChoreTemplate
	var kidID sql.NullString
	var required int
	var anchor sql.NullInt64
	var created int64
	err := sc.Scan(&t.ID, &t.FamilyID, &kidID, &t.Title, &t.Category, &required, &t.Points,
		&t.Recurrence, &anchor, &created)
	if err != nil {
		return nil, err
	}
	t.KidID = stringPtr(kidID)
	t.IsRequired = required != 0
	if anchor.Valid {
		a := fromMillis(anchor.Int64)
		t.AnchorAt = &a
	}
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

const templateCols = `id, family_id, kid_user_id, title, category, is_required, points, recurrence, anchor_at, created_at`

func (s *ChoreStore) CreateTemplate(ctx context.Context, t model.ChoreTemplate) (*model.ChoreTemplate, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	var anchor sql.NullInt64
	if t.AnchorAt != nil {
		anchor = sql.NullInt64{Int64: toMillis(*t.AnchorAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chore_templates (`+templateCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FamilyID, nullString(t.KidID), t.Title, t.Category, boolInt(t.IsRequired), t.Points,
		t.Recurrence, anchor, toMillis(t.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore template: %w", err)
	}
	return s.GetTemplate(ctx, t.ID)
}

func (s *ChoreStore) GetTemplate(ctx context.Context, id string) (*model.ChoreTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM chore_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore template: %w", err)
	}
	return t, nil
}

func (s *ChoreStore) ListTemplates(ctx context.Context, familyID string) ([]model.ChoreTemplate, error) {
	return s.listTemplates(ctx,
		`SELECT `+templateCols+` FROM chore_templates WHERE family_id = ? ORDER BY title ASC`, familyID)
}

// ListRecurringTemplates returns every template with a schedule, across families.
func (s *ChoreStore) ListRecurringTemplates(ctx context.Context) ([]model.ChoreTemplate, error) {
	return s.listTemplates(ctx,
		`SELECT `+templateCols+` FROM chore_templates
		 WHERE recurrence != '' AND anchor_at IS NOT NULL ORDER BY family_id, id`)
}

func (s *ChoreStore) listTemplates(ctx context.Context, query string, args ...any) ([]model.ChoreTemplate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chore templates: %w", err)
	}
	defer rows.Close()

	var templates []model.ChoreTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// --- Chore methods ---

func scanChore(sc scanner) (*model.Chore, error) {
	var c model.Chore
	var kidID, templateID sql.NullString
	var required int
	var dueAt sql.NullInt64
	var created, updated int64

	err := sc.Scan(
		&c.ID, &c.FamilyID, &kidID, &templateID, &c.Title, &c.Category,
		&required, &c.Points, &c.Status, &dueAt, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	c.KidID = stringPtr(kidID)
	c.TemplateID = stringPtr(templateID)
	c.IsRequired = required != 0
	if dueAt.Valid {
		t := fromMillis(dueAt.Int64)
		c.DueAt = &t
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

const choreCols = `id, family_id, kid_user_id, template_id, title, category, is_required, points, status, due_at, created_at, updated_at`

// Create inserts c in the open state.
func (s *ChoreStore) Create(ctx context.Context, c model.Chore) (*model.Chore, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var due sql.NullInt64
	if c.DueAt != nil {
		due = sql.NullInt64{Int64: toMillis(*c.DueAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chores (`+choreCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FamilyID, nullString(c.KidID), nullString(c.TemplateID), c.Title, c.Category,
		boolInt(c.IsRequired), c.Points, model.ChoreOpen, due, toMillis(c.CreatedAt), toMillis(c.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore: %w", err)
	}
	return s.GetByID(ctx, c.ID)
}

// CreateOccurrence inserts c unless a chore for the same template and due
// instant already exists. It returns the new chore id and whether a row was
// written; the id is empty when the occurrence already existed.
func (s *ChoreStore) CreateOccurrence(ctx context.Context, c model.Chore) (string, bool, error) {
	if c.TemplateID == nil || c.DueAt == nil {
		return "", false, fmt.Errorf("occurrence needs a template and a due time")
	}
	if c.ID == "" {
		c.ID = newID()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chores (`+choreCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FamilyID, nullString(c.KidID), *c.TemplateID, c.Title, c.Category,
		boolInt(c.IsRequired), c.Points, model.ChoreOpen, toMillis(*c.DueAt), toMillis(c.CreatedAt), toMillis(c.CreatedAt),
	)
	if err != nil {
		return "", false, fmt.Errorf("insert chore occurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return "", false, nil
	}
	return c.ID, true, nil
}

func (s *ChoreStore) GetByID(ctx context.Context, id string) (*model.Chore, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+choreCols+` FROM chores WHERE id = ?`, id)
	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	return c, nil
}

func (s *ChoreStore) ListByFamily(ctx context.Context, familyID string) ([]model.Chore, error) {
	return s.list(ctx,
		`SELECT `+choreCols+` FROM chores WHERE family_id = ? ORDER BY created_at DESC, id ASC`, familyID)
}

func (s *ChoreStore) ListByKid(ctx context.Context, kidID string) ([]model.Chore, error) {
	return s.list(ctx,
		`SELECT `+choreCols+` FROM chores WHERE kid_user_id = ? ORDER BY created_at DESC, id ASC`, kidID)
}

// ListOutstandingRequired returns the kid's required chores that have not
// reached a terminal state.
func (s *ChoreStore) ListOutstandingRequired(ctx context.Context, kidID string) ([]model.Chore, error) {
	return s.list(ctx,
		`SELECT `+choreCols+` FROM chores
		 WHERE kid_user_id = ? AND is_required = 1 AND status NOT IN ('approved', 'denied')
		 ORDER BY due_at IS NULL, due_at ASC, created_at ASC`, kidID)
}

func (s *ChoreStore) list(ctx context.Context, query string, args ...any) ([]model.Chore, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	defer rows.Close()

	var chores []model.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	return chores, rows.Err()
}

// Transition is a compare-and-swap on a chore's status.
type Transition struct {
	ChoreID string
	From    model.ChoreStatus
	To      model.ChoreStatus
	// KidID, when set, must match the bound kid or the chore must be
	// unassigned; the chore is then bound to it.
	KidID string
	At    time.Time
}

// CompareAndSwapStatus applies t only if the chore is still in t.From (and,
// with a KidID, unassigned or bound to that kid). It reports whether a row
// was updated; false means another writer got there first.
func (s *ChoreStore) CompareAndSwapStatus(ctx context.Context, t Transition) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if t.KidID != "" {
		res, err = s.db.ExecContext(ctx,
			`UPDATE chores SET status = ?, kid_user_id = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND (kid_user_id IS NULL OR kid_user_id = ?)`,
			t.To, t.KidID, toMillis(t.At), t.ChoreID, t.From, t.KidID,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE chores SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			t.To, toMillis(t.At), t.ChoreID, t.From,
		)
	}
	if err != nil {
		return false, fmt.Errorf("update chore status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// --- Event methods ---

const eventCols = `id, chore_id, family_id, kid_user_id, kind, actor_id, created_at`

func (s *ChoreStore) AppendEvent(ctx context.Context, e model.ChoreEvent) (*model.ChoreEvent, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chore_events (`+eventCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ChoreID, e.FamilyID, nullString(e.KidID), e.Kind, e.ActorID, toMillis(e.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore event: %w", err)
	}
	e.CreatedAt = fromMillis(toMillis(e.CreatedAt))
	return &e, nil
}

func (s *ChoreStore) ListEvents(ctx context.Context, choreID string) ([]model.ChoreEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM chore_events WHERE chore_id = ? ORDER BY created_at ASC, rowid ASC`, choreID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chore events: %w", err)
	}
	defer rows.Close()

	var events []model.ChoreEvent
	for rows.Next() {
		var e model.ChoreEvent
		var kidID sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.ChoreID, &e.FamilyID, &kidID, &e.Kind, &e.ActorID, &created); err != nil {
			return nil, fmt.Errorf("scan chore event: %w", err)
		}
		e.KidID = stringPtr(kidID)
		e.CreatedAt = fromMillis(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ApprovalCounts splits a kid's approvals in a window by chore type.
type ApprovalCounts struct {
	Required int64
	Total    int64
}

// CountApprovalsSince counts approval events for kidID at or after since,
// joined to the chore to split required from paid work.
func (s *ChoreStore) CountApprovalsSince(ctx context.Context, kidID string, since time.Time) (ApprovalCounts, error) {
	var c ApprovalCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(c.is_required), 0)
		 FROM chore_events e JOIN chores c ON c.id = e.chore_id
		 WHERE e.kid_user_id = ? AND e.kind = 'approved' AND e.created_at >= ?`,
		kidID, toMillis(since),
	).Scan(&c.Total, &c.Required)
	if err != nil {
		return ApprovalCounts{}, fmt.Errorf("count approvals: %w", err)
	}
	return c, nil
}
