package flows

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/sessionfetch/internal"
	"github.com/MrEthical07/sessionfetch/session"
)

type fakeRotateStore struct {
	rec *session.Record
	err error
}

func (f *fakeRotateStore) Rotate(_ context.Context, sessionID string, provided, next [32]byte) (*session.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.rec == nil || f.rec.SessionID != sessionID {
		return nil, session.ErrRecordNotFound
	}
	if f.rec.RefreshHash != provided {
		f.rec = nil
		return nil, session.ErrRefreshHashMismatch
	}
	f.rec.RefreshHash = next
	cp := *f.rec
	return &cp, nil
}

func refreshTestDeps(store RefreshSessionStore) RefreshDeps {
	return RefreshDeps{
		DecodeRefreshToken: internal.DecodeRefreshToken,
		NewRefreshSecret:   internal.NewRefreshSecret,
		HashRefreshSecret:  internal.HashRefreshSecret,
		EncodeRefreshToken: internal.EncodeRefreshToken,
		IssueAccessToken: func(_ context.Context, rec *session.Record) (string, int64, error) {
			if rec.Compact {
				return "compact.access.token", 100, nil
			}
			return "full.access.token", 100, nil
		},
		SessionStore: store,
	}
}

func seededRefresh(t *testing.T, compact bool) (*fakeRotateStore, string) {
	t.Helper()
	sid, err := internal.NewSessionID()
	if err != nil {
		t.Fatalf("session id: %v", err)
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	rt, err := internal.EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &fakeRotateStore{rec: &session.Record{
		SessionID:   sid.String(),
		UserID:      "u1",
		RefreshHash: internal.HashRefreshSecret(secret),
		Compact:     compact,
	}}, rt
}

func TestRunRefreshRotates(t *testing.T) {
	store, rt := seededRefresh(t, false)
	res := RunRefresh(context.Background(), rt, refreshTestDeps(store))
	if res.Failure != RefreshFailureNone {
		t.Fatalf("refresh failed: %v", res.Err)
	}
	if res.AccessToken != "full.access.token" || res.RefreshToken == "" || res.RefreshToken == rt {
		t.Fatalf("unexpected result: %+v", res)
	}

	again := RunRefresh(context.Background(), res.RefreshToken, refreshTestDeps(store))
	if again.Failure != RefreshFailureNone {
		t.Fatalf("rotated token should be usable: %v", again.Err)
	}
}

func TestRunRefreshCompactRecord(t *testing.T) {
	store, rt := seededRefresh(t, true)
	res := RunRefresh(context.Background(), rt, refreshTestDeps(store))
	if res.AccessToken != "compact.access.token" {
		t.Fatalf("expected compact token, got %+v", res)
	}
}

func TestRunRefreshReuseRevokes(t *testing.T) {
	store, rt := seededRefresh(t, false)
	if res := RunRefresh(context.Background(), rt, refreshTestDeps(store)); res.Failure != RefreshFailureNone {
		t.Fatalf("first refresh failed: %v", res.Err)
	}

	res := RunRefresh(context.Background(), rt, refreshTestDeps(store))
	if res.Failure != RefreshFailureReuse || !errors.Is(res.Err, session.ErrRefreshHashMismatch) {
		t.Fatalf("expected reuse failure, got %+v", res)
	}
	if store.rec != nil {
		t.Fatalf("session should be revoked after reuse")
	}
}

func TestRunRefreshFailureKinds(t *testing.T) {
	if res := RunRefresh(context.Background(), "%%%", refreshTestDeps(&fakeRotateStore{})); res.Failure != RefreshFailureDecode {
		t.Fatalf("expected decode failure, got %+v", res)
	}

	_, rt := seededRefresh(t, false)
	if res := RunRefresh(context.Background(), rt, refreshTestDeps(&fakeRotateStore{})); res.Failure != RefreshFailureSessionNotFound {
		t.Fatalf("expected not found failure, got %+v", res)
	}

	down := &fakeRotateStore{err: session.ErrRedisUnavailable}
	if res := RunRefresh(context.Background(), rt, refreshTestDeps(down)); res.Failure != RefreshFailureRotate {
		t.Fatalf("expected rotate failure, got %+v", res)
	}

	store, rt := seededRefresh(t, false)
	deps := refreshTestDeps(store)
	deps.IssueAccessToken = func(context.Context, *session.Record) (string, int64, error) {
		return "", 0, errors.New("signer offline")
	}
	if res := RunRefresh(context.Background(), rt, deps); res.Failure != RefreshFailureIssueAccess {
		t.Fatalf("expected issue failure, got %+v", res)
	}
}
