package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/pocketmoney/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:   "u1",
		FamilyID: "f1",
		Role:     model.RoleParent,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != "u1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "u1")
	}
	if got.FamilyID != "f1" {
		t.Errorf("FamilyID = %q, want %q", got.FamilyID, "f1")
	}
	if got.Role != model.RoleParent {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleParent)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
	if FamilyID(context.Background()) != "" {
		t.Error("expected empty FamilyID without auth")
	}
	if UserID(context.Background()) != "" {
		t.Error("expected empty UserID without auth")
	}
}

func TestSystemActor(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: SystemUserID, FamilyID: "f1"})
	if UserID(ctx) != SystemUserID {
		t.Errorf("UserID = %q, want %q", UserID(ctx), SystemUserID)
	}
	if FamilyID(ctx) != "f1" {
		t.Errorf("FamilyID = %q, want f1", FamilyID(ctx))
	}
}
