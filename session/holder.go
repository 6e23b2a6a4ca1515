package session

import (
	"context"
	"errors"
	"sync"
)

// Refresher exchanges a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// RefresherFunc adapts a function to [Refresher].
type RefresherFunc func(ctx context.Context, refreshToken string) (*Session, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return f(ctx, refreshToken)
}

// ErrNoRefreshToken is returned when a refresh is requested for a session
// that carries no refresh token.
var ErrNoRefreshToken = errors.New("session has no refresh token")

// Holder is an in-memory [Source]. The zero value holds no session and
// cannot refresh; use [NewHolder].
//
// Holder serializes access to the current session but does not coalesce
// concurrent refreshes: two callers refreshing at once both hit the
// Refresher, and the later result wins.
type Holder struct {
	mu        sync.RWMutex
	current   *Session
	refresher Refresher
	onChange  func(*Session)
}

// NewHolder returns a Holder seeded with initial (may be nil).
func NewHolder(initial *Session, refresher Refresher) *Holder {
	h := &Holder{refresher: refresher}
	if initial != nil {
		cp := *initial
		h.current = &cp
	}
	return h
}

// OnChange registers fn to be called after every successful refresh or Set.
// The CLI uses it to persist the session file.
func (h *Holder) OnChange(fn func(*Session)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// GetSession returns a copy of the current session or ErrNoSession.
func (h *Holder) GetSession(_ context.Context) (*Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.current == nil {
		return nil, ErrNoSession
	}
	cp := *h.current
	return &cp, nil
}

// RefreshSession refreshes the held session through the Refresher.
func (h *Holder) RefreshSession(ctx context.Context) (*Session, error) {
	h.mu.RLock()
	current := h.current
	refresher := h.refresher
	h.mu.RUnlock()

	if current == nil {
		return nil, ErrNoSession
	}
	if current.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	if refresher == nil {
		return nil, errors.New("holder has no refresher")
	}

	next, err := refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, errors.New("refresher returned no session")
	}
	if next.UserID == "" {
		next.UserID = current.UserID
	}

	h.Set(next)
	cp := *next
	return &cp, nil
}

// Set replaces the held session. A nil session signs the user out.
func (h *Holder) Set(s *Session) {
	h.mu.Lock()
	if s == nil {
		h.current = nil
	} else {
		cp := *s
		h.current = &cp
	}
	onChange := h.onChange
	current := h.current
	h.mu.Unlock()

	if onChange != nil {
		onChange(current)
	}
}
