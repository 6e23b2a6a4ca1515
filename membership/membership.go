package membership

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Role is a workspace role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ErrInvalidRole is returned when storing an unknown role.
var ErrInvalidRole = errors.New("invalid workspace role")

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	default:
		return false
	}
}

// Membership is one workspace a user belongs to.
type Membership struct {
	WorkspaceID string
	Role        Role
}

// Source lists memberships. Version changes whenever the user's memberships
// change, so compact tokens can carry it instead of the full list.
type Source interface {
	Memberships(ctx context.Context, userID string) ([]Membership, error)
	Version(ctx context.Context, userID string) (uint32, error)
}

// Claims converts memberships to the workspace claim map.
func Claims(ms []Membership) map[string]string {
	if len(ms) == 0 {
		return nil
	}
	out := make(map[string]string, len(ms))
	for _, m := range ms {
		out[m.WorkspaceID] = string(m.Role)
	}
	return out
}

func sortMemberships(ms []Membership) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].WorkspaceID < ms[j].WorkspaceID })
}

func validate(m Membership) error {
	if m.WorkspaceID == "" {
		return errors.New("workspace id required")
	}
	if !m.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
	}
	return nil
}
