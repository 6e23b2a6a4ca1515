package session

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession is returned by a [Source] when no user is signed in.
var ErrNoSession = errors.New("no session")

// Session is the client-held credential set for one signed-in user.
type Session struct {
	UserID       string    `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
}

// Expired reports whether the access token's expiry has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Source exposes the current session and refreshes it.
//
// GetSession returns ErrNoSession when nobody is signed in. RefreshSession
// exchanges the refresh credential for a new access token and returns the
// updated session; implementations own their locking.
type Source interface {
	GetSession(ctx context.Context) (*Session, error)
	RefreshSession(ctx context.Context) (*Session, error)
}

// Record is the server-side state of a session. Only the SHA-256 hash of the
// current refresh secret is kept.
type Record struct {
	SchemaVersion     uint8
	SessionID         string
	UserID            string
	RefreshHash       [32]byte
	Compact           bool
	MembershipVersion uint32
	CreatedAt         int64
	ExpiresAt         int64
}
