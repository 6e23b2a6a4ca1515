package session

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestHolderEmpty(t *testing.T) {
	h := NewHolder(nil, nil)
	if _, err := h.GetSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := h.RefreshSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession on refresh, got %v", err)
	}
}

func TestHolderRefreshReplacesSession(t *testing.T) {
	var seen string
	refresher := RefresherFunc(func(_ context.Context, rt string) (*Session, error) {
		seen = rt
		return &Session{AccessToken: "a.b.2", RefreshToken: "r2"}, nil
	})
	h := NewHolder(&Session{UserID: "u1", AccessToken: "a.b.1", RefreshToken: "r1"}, refresher)

	var changes int
	h.OnChange(func(*Session) { changes++ })

	next, err := h.RefreshSession(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if seen != "r1" {
		t.Fatalf("expected refresher to receive r1, got %q", seen)
	}
	if next.AccessToken != "a.b.2" || next.UserID != "u1" {
		t.Fatalf("unexpected refreshed session: %+v", next)
	}

	cur, err := h.GetSession(context.Background())
	if err != nil || cur.RefreshToken != "r2" {
		t.Fatalf("holder did not keep refreshed session: %+v %v", cur, err)
	}
	if changes != 1 {
		t.Fatalf("expected one change notification, got %d", changes)
	}
}

func TestHolderRefreshErrorKeepsSession(t *testing.T) {
	boom := errors.New("boom")
	h := NewHolder(&Session{AccessToken: "a.b.1", RefreshToken: "r1"}, RefresherFunc(func(context.Context, string) (*Session, error) {
		return nil, boom
	}))

	if _, err := h.RefreshSession(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected refresher error, got %v", err)
	}
	cur, _ := h.GetSession(context.Background())
	if cur.AccessToken != "a.b.1" {
		t.Fatalf("failed refresh must not replace session, got %+v", cur)
	}
}

func TestHolderWithoutRefreshToken(t *testing.T) {
	h := NewHolder(&Session{AccessToken: "a.b.c"}, RefresherFunc(func(context.Context, string) (*Session, error) {
		t.Fatal("refresher must not be called")
		return nil, nil
	}))
	if _, err := h.RefreshSession(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestHolderGetReturnsCopy(t *testing.T) {
	h := NewHolder(&Session{AccessToken: "a.b.c"}, nil)
	s, _ := h.GetSession(context.Background())
	s.AccessToken = "mutated"

	again, _ := h.GetSession(context.Background())
	if again.AccessToken != "a.b.c" {
		t.Fatal("GetSession leaked internal state")
	}
}

func TestHolderConcurrentAccess(t *testing.T) {
	h := NewHolder(&Session{AccessToken: "a.b.c", RefreshToken: "r"}, RefresherFunc(func(_ context.Context, rt string) (*Session, error) {
		return &Session{AccessToken: "a.b.d", RefreshToken: rt}, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.GetSession(context.Background())
			_, _ = h.RefreshSession(context.Background())
		}()
	}
	wg.Wait()
}
