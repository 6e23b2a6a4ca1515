package membership

import (
	"context"
	"testing"
)

func TestStaticSetAndVersion(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()

	if err := s.Set("u1", []Membership{{WorkspaceID: "b", Role: RoleEditor}, {WorkspaceID: "a", Role: RoleAdmin}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	ms, _ := s.Memberships(ctx, "u1")
	if len(ms) != 2 || ms[0].WorkspaceID != "a" {
		t.Fatalf("expected sorted memberships, got %+v", ms)
	}
	if v, _ := s.Version(ctx, "u1"); v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}

	if err := s.Generate("u1", 50); err != nil {
		t.Fatalf("generate: %v", err)
	}
	ms, _ = s.Memberships(ctx, "u1")
	if len(ms) != 50 || ms[49].WorkspaceID != "ws-0049" {
		t.Fatalf("unexpected generated memberships: %d", len(ms))
	}
	if v, _ := s.Version(ctx, "u1"); v != 2 {
		t.Fatalf("expected version 2, got %d", v)
	}

	claims := Claims(ms)
	if claims["ws-0007"] != "viewer" || len(claims) != 50 {
		t.Fatalf("unexpected claims map")
	}
	if Claims(nil) != nil {
		t.Fatalf("no memberships should yield nil claims")
	}
}

func TestStaticRejectsInvalid(t *testing.T) {
	if err := NewStatic().Set("u1", []Membership{{WorkspaceID: "", Role: RoleAdmin}}); err == nil {
		t.Fatalf("expected error for empty workspace id")
	}
}
