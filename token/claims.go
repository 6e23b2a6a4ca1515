package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access-token payload minted by [Issuer].
//
// Full tokens carry every workspace membership in Workspaces; that map is what
// pushes long-lived accounts past the header budget. Compact tokens leave it
// empty and carry only MembershipVersion, so resource servers look roles up
// server-side.
type Claims struct {
	SID               string            `json:"sid"`
	Role              string            `json:"role,omitempty"`
	Workspaces        map[string]string `json:"ws,omitempty"`
	MembershipVersion uint32            `json:"mv,omitempty"`
	Compact           bool              `json:"cmp,omitempty"`
	jwt.RegisteredClaims
}

// Summary is a diagnostic view of a token that never includes signature or
// raw claim values beyond identifiers.
type Summary struct {
	Bytes      int
	WellFormed bool
	Fits       bool
	SessionID  string
	Subject    string
	Workspaces int
	Compact    bool
	ExpiresAt  time.Time
	Expired    bool
}

// ErrUndecodable is returned by [Inspect] when the payload segment is not a JWT.
var ErrUndecodable = errors.New("token payload undecodable")

// Inspect decodes raw without verifying its signature. It is meant for logs
// and the CLI, never for authorization decisions.
func Inspect(raw string, maxBytes int) (Summary, error) {
	summary := Summary{
		Bytes:      len(raw),
		WellFormed: WellFormed(raw),
		Fits:       Fits(raw, maxBytes),
	}
	if !summary.WellFormed {
		return summary, ErrMalformed
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return summary, errors.Join(ErrUndecodable, err)
	}

	summary.SessionID = claims.SID
	summary.Subject = claims.Subject
	summary.Workspaces = len(claims.Workspaces)
	summary.Compact = claims.Compact
	if claims.ExpiresAt != nil {
		summary.ExpiresAt = claims.ExpiresAt.Time
		summary.Expired = time.Now().After(claims.ExpiresAt.Time)
	}
	return summary, nil
}
