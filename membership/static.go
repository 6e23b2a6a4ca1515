package membership

import (
	"context"
	"fmt"
	"sync"
)

// Static is an in-memory [Source] for development and tests.
type Static struct {
	mu       sync.RWMutex
	members  map[string][]Membership
	versions map[string]uint32
}

func NewStatic() *Static {
	return &Static{
		members:  make(map[string][]Membership),
		versions: make(map[string]uint32),
	}
}

// Set replaces the memberships of userID and bumps its version.
func (s *Static) Set(userID string, ms []Membership) error {
	for _, m := range ms {
		if err := validate(m); err != nil {
			return err
		}
	}
	cp := append([]Membership(nil), ms...)
	sortMemberships(cp)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[userID] = cp
	s.versions[userID]++
	return nil
}

// Generate gives userID n viewer memberships named ws-0000, ws-0001, ...
func (s *Static) Generate(userID string, n int) error {
	ms := make([]Membership, n)
	for i := range ms {
		ms[i] = Membership{WorkspaceID: fmt.Sprintf("ws-%04d", i), Role: RoleViewer}
	}
	return s.Set(userID, ms)
}

func (s *Static) Memberships(_ context.Context, userID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Membership(nil), s.members[userID]...), nil
}

func (s *Static) Version(_ context.Context, userID string) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[userID], nil
}
