package model

import "time"

type ChoreStatus string

const (
	ChoreOpen      ChoreStatus = "open"
	ChoreClaimed   ChoreStatus = "claimed"
	ChoreSubmitted ChoreStatus = "submitted"
	ChoreApproved  ChoreStatus = "approved"
	ChoreDenied    ChoreStatus = "denied"
)

// Terminal reports whether no further transition is allowed from s.
func (s ChoreStatus) Terminal() bool {
	return s == ChoreApproved || s == ChoreDenied
}

type Chore struct {
	ID         string      `json:"id"`
	FamilyID   string      `json:"family_id"`
	KidID      *string     `json:"kid_user_id"`
	TemplateID *string     `json:"template_id,omitempty"`
	Title      string      `json:"title"`
	Category   string      `json:"category"`
	IsRequired bool        `json:"is_required"`
	Points     int64       `json:"points"`
	Status     ChoreStatus `json:"status"`
	DueAt      *time.Time  `json:"due_at"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// AssignedTo reports whether the chore is bound to kidID.
func (c Chore) AssignedTo(kidID string) bool {
	return c.KidID != nil && *c.KidID == kidID
}

type ChoreTemplate struct {
	ID         string  `json:"id"`
	FamilyID   string  `json:"family_id"`
	KidID      *string `json:"kid_user_id,omitempty"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	IsRequired bool    `json:"is_required"`
	Points     int64   `json:"points"`
	// Recurrence is an RRULE subset; empty for one-off templates. AnchorAt is
	// the first due instant of a recurring template.
	Recurrence string     `json:"recurrence,omitempty"`
	AnchorAt   *time.Time `json:"anchor_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Recurring reports whether the template spawns chores on a schedule.
func (t ChoreTemplate) Recurring() bool {
	return t.Recurrence != "" && t.AnchorAt != nil
}

type ChoreEventKind string

const (
	EventClaimed   ChoreEventKind = "claimed"
	EventSubmitted ChoreEventKind = "submitted"
	EventApproved  ChoreEventKind = "approved"
	EventDenied    ChoreEventKind = "denied"
)

type ChoreEvent struct {
	ID        string         `json:"id"`
	ChoreID   string         `json:"chore_id"`
	FamilyID  string         `json:"family_id"`
	KidID     *string        `json:"kid_user_id"`
	Kind      ChoreEventKind `json:"kind"`
	ActorID   string         `json:"actor_id"`
	CreatedAt time.Time      `json:"created_at"`
}
