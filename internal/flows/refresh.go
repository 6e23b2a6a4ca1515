package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionfetch/session"
)

// RefreshFailureKind classifies server-side refresh failures.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureNextSecret
	RefreshFailureReuse
	RefreshFailureSessionNotFound
	RefreshFailureRotate
	RefreshFailureIssueAccess
	RefreshFailureEncode
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	SessionID    string
	Record       *session.Record
	AccessToken  string
	ExpiresAt    int64
	RefreshToken string
}

// RefreshSessionStore is the slice of session.Store the refresh flow needs.
type RefreshSessionStore interface {
	Rotate(ctx context.Context, sessionID string, provided, next [32]byte) (*session.Record, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	DecodeRefreshToken func(string) (string, [32]byte, error)
	NewRefreshSecret   func() ([32]byte, error)
	HashRefreshSecret  func([32]byte) [32]byte
	EncodeRefreshToken func(string, [32]byte) (string, error)
	IssueAccessToken   func(context.Context, *session.Record) (string, int64, error)
	SessionStore       RefreshSessionStore
}

// RunRefresh rotates the refresh secret and issues a new access token. A
// replayed (stale) refresh secret has already revoked the session inside the
// store by the time RefreshFailureReuse is reported.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	sessionID, providedSecret, err := deps.DecodeRefreshToken(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	nextSecret, err := deps.NewRefreshSecret()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextSecret, Err: err, SessionID: sessionID}
	}

	rec, err := deps.SessionStore.Rotate(
		ctx,
		sessionID,
		deps.HashRefreshSecret(providedSecret),
		deps.HashRefreshSecret(nextSecret),
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshHashMismatch):
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, SessionID: sessionID}
		case errors.Is(err, session.ErrRecordNotFound), errors.Is(err, session.ErrRecordExpired):
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SessionID: sessionID}
		default:
			return RefreshResult{Failure: RefreshFailureRotate, Err: err, SessionID: sessionID}
		}
	}

	access, expiresAt, err := deps.IssueAccessToken(ctx, rec)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, SessionID: sessionID, Record: rec}
	}

	refresh, err := deps.EncodeRefreshToken(rec.SessionID, nextSecret)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureEncode, Err: err, SessionID: sessionID, Record: rec}
	}

	return RefreshResult{
		SessionID:    sessionID,
		Record:       rec,
		AccessToken:  access,
		ExpiresAt:    expiresAt,
		RefreshToken: refresh,
	}
}
