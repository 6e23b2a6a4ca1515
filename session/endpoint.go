package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrRefreshRejected is returned when the token endpoint answers with a non-2xx status.
var ErrRefreshRejected = errors.New("refresh rejected by token endpoint")

// TokenResponse is the token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id,omitempty"`
}

// Session converts the response into a [Session].
func (r TokenResponse) Session(now time.Time) *Session {
	s := &Session{
		UserID:       r.UserID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return s
}

// TokenEndpoint is a [Refresher] that calls
// POST {BaseURL}/auth/v1/token?grant_type=refresh_token with the anon key in
// the apikey header.
type TokenEndpoint struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
}

// Refresh implements [Refresher].
func (e *TokenEndpoint) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	endpoint, err := url.JoinPath(strings.TrimRight(e.BaseURL, "/"), "auth", "v1", "token")
	if err != nil {
		return nil, fmt.Errorf("token endpoint url: %w", err)
	}
	endpoint += "?grant_type=refresh_token"

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.AnonKey != "" {
		req.Header.Set("apikey", e.AnonKey)
	}

	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	}

	var payload TokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return payload.Session(time.Now()), nil
}
