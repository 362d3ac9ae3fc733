package auth

import (
	"context"

	"github.com/dukerupert/pocketmoney/internal/model"
)

type contextKey struct{}

// SystemUserID is the actor recorded for background jobs (allowance runs,
// recurring chore spawns).
const SystemUserID = "system"

type AuthContext struct {
	UserID   string
	FamilyID string
	Role     model.Role
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func FamilyID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.FamilyID
}

func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}
