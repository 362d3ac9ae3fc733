package model

import "time"

type Role string

const (
	RoleParent Role = "parent"
	RoleHelper Role = "helper"
	RoleKid    Role = "kid"
)

// IsGuardian reports whether the role may approve chores and manage family settings.
func (r Role) IsGuardian() bool {
	return r == RoleParent || r == RoleHelper
}

func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleHelper, RoleKid:
		return true
	}
	return false
}

type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	ID          string    `json:"id"`
	FamilyID    string    `json:"family_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}
