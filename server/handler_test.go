package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/sessionfetch"
	"github.com/MrEthical07/sessionfetch/session"
	"github.com/MrEthical07/sessionfetch/token"
)

func newHandlerTest(t *testing.T, mutate func(*Config)) (*serviceFixture, *httptest.Server, func()) {
	t.Helper()
	f, done := newServiceTest(t, mutate)
	ts := httptest.NewServer(NewHandler(f.svc, nil))
	return f, ts, func() {
		ts.Close()
		done()
	}
}

func postJSON(t *testing.T, url string, header http.Header, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestTokenRoute(t *testing.T) {
	f, ts, done := newHandlerTest(t, nil)
	defer done()

	pair, err := f.svc.IssueSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	apikey := http.Header{"Apikey": {testAnonKey}}
	url := ts.URL + "/auth/v1/token?grant_type=refresh_token"

	resp := postJSON(t, url, apikey, map[string]string{"refresh_token": pair.RefreshToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var tr session.TokenResponse
	decodeResponse(t, resp, &tr)
	if tr.AccessToken == "" || tr.RefreshToken == "" || tr.TokenType != "bearer" || tr.UserID != "u1" {
		t.Fatalf("unexpected token response %+v", tr)
	}

	cases := []struct {
		name   string
		url    string
		header http.Header
		body   map[string]string
		status int
		code   string
	}{
		{"bad apikey", url, http.Header{"Apikey": {"nope"}}, map[string]string{"refresh_token": tr.RefreshToken}, http.StatusUnauthorized, "invalid_client"},
		{"grant type", ts.URL + "/auth/v1/token?grant_type=password", apikey, map[string]string{"refresh_token": tr.RefreshToken}, http.StatusBadRequest, "unsupported_grant_type"},
		{"missing token", url, apikey, map[string]string{}, http.StatusBadRequest, "invalid_request"},
		{"reused token", url, apikey, map[string]string{"refresh_token": pair.RefreshToken}, http.StatusBadRequest, "invalid_grant"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, tc.url, tc.header, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			var oe oauthError
			decodeResponse(t, resp, &oe)
			if oe.Error != tc.code {
				t.Fatalf("expected %q, got %q", tc.code, oe.Error)
			}
		})
	}
}

func TestTokenRouteRateLimited(t *testing.T) {
	f, ts, done := newHandlerTest(t, func(c *Config) { c.RefreshMax = 1 })
	defer done()

	pair, err := f.svc.IssueSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	apikey := http.Header{"Apikey": {testAnonKey}}
	url := ts.URL + "/auth/v1/token?grant_type=refresh_token"

	resp := postJSON(t, url, apikey, map[string]string{"refresh_token": pair.RefreshToken})
	var tr session.TokenResponse
	decodeResponse(t, resp, &tr)

	resp = postJSON(t, url, apikey, map[string]string{"refresh_token": tr.RefreshToken})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestRepairRoute(t *testing.T) {
	f, ts, done := newHandlerTest(t, nil)
	defer done()

	pair, err := f.svc.IssueSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	url := ts.URL + session.RepairPath

	cases := []struct {
		name   string
		body   any
		status int
	}{
		{"empty", map[string]string{}, http.StatusBadRequest},
		{"anon key", session.RepairRequest{AccessToken: pair.AccessToken, SupabaseURL: testBackendURL, SupabaseAnonKey: "x"}, http.StatusUnauthorized},
		{"backend", session.RepairRequest{AccessToken: pair.AccessToken, SupabaseURL: "https://other.test", SupabaseAnonKey: testAnonKey}, http.StatusBadRequest},
		{"token", session.RepairRequest{AccessToken: "a.b.c", SupabaseURL: testBackendURL, SupabaseAnonKey: testAnonKey}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, url, nil, tc.body)
			var rr session.RepairResponse
			decodeResponse(t, resp, &rr)
			if resp.StatusCode != tc.status || rr.OK || rr.Error == "" {
				t.Fatalf("expected %d with error, got %d %+v", tc.status, resp.StatusCode, rr)
			}
		})
	}

	resp := postJSON(t, url, nil, session.RepairRequest{AccessToken: pair.AccessToken, SupabaseURL: testBackendURL, SupabaseAnonKey: testAnonKey})
	var rr session.RepairResponse
	decodeResponse(t, resp, &rr)
	if resp.StatusCode != http.StatusOK || !rr.OK || !rr.Repaired {
		t.Fatalf("expected repaired, got %d %+v", resp.StatusCode, rr)
	}
}

func TestIssueRoute(t *testing.T) {
	_, ts, done := newHandlerTest(t, nil)
	defer done()
	url := ts.URL + "/admin/v1/sessions"

	resp := postJSON(t, url, nil, map[string]string{"user_id": "u1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	auth := http.Header{"Authorization": {"Bearer service-key"}}
	resp = postJSON(t, url, auth, map[string]string{"user_id": ""})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = postJSON(t, url, auth, map[string]string{"user_id": "u1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var tr session.TokenResponse
	decodeResponse(t, resp, &tr)
	if !token.WellFormed(tr.AccessToken) || tr.RefreshToken == "" {
		t.Fatalf("unexpected response %+v", tr)
	}
}

func TestIssueRouteDisabledWithoutServiceKey(t *testing.T) {
	_, ts, done := newHandlerTest(t, func(c *Config) { c.ServiceKey = "" })
	defer done()

	resp := postJSON(t, ts.URL+"/admin/v1/sessions", http.Header{"Authorization": {"Bearer "}}, map[string]string{"user_id": "u1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f, ts, done := newHandlerTest(t, nil)
	defer done()

	if _, err := f.svc.IssueSession(context.Background(), "u1"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "sessionfetch_sessions_issued_total 1") {
		t.Fatalf("expected issued counter in metrics output:\n%s", body)
	}

	f.mr.Close()
	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with redis down, got %d", resp.StatusCode)
	}
}

func TestClientRepairsOversizedSessionEndToEnd(t *testing.T) {
	f, ts, done := newHandlerTest(t, nil)
	defer done()
	ctx := context.Background()

	if err := f.members.Generate("u1", 300); err != nil {
		t.Fatalf("generate: %v", err)
	}
	pair, err := f.svc.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token.Fits(pair.AccessToken, token.DefaultMaxBytes) {
		t.Fatalf("fixture token should be oversized")
	}

	holder := session.NewHolder(&session.Session{
		UserID:       "u1",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, &session.TokenEndpoint{BaseURL: ts.URL, AnonKey: testAnonKey, HTTPClient: ts.Client()})

	cfg := sessionfetch.DefaultConfig()
	cfg.Repair.Endpoint = ts.URL + session.RepairPath
	cfg.Repair.BackendURL = testBackendURL
	cfg.Repair.AnonKey = testAnonKey

	client, err := sessionfetch.New().
		WithConfig(cfg).
		WithSessionSource(holder).
		WithHTTPClient(ts.Client()).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	resp, err := client.Fetch(ctx, sessionfetch.Request{Method: http.MethodGet, URL: ts.URL + "/api/me"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var me MeResponse
	decodeResponse(t, resp, &me)
	if !me.Compact || len(me.Workspaces) != 300 || me.SessionID != pair.SessionID {
		t.Fatalf("unexpected me response: compact=%v ws=%d", me.Compact, len(me.Workspaces))
	}

	snap := client.MetricsSnapshot()
	if snap.Counters[sessionfetch.MetricRefreshSuccess] != 2 || snap.Counters[sessionfetch.MetricRepairSuccess] != 1 {
		t.Fatalf("expected two refreshes and one repair, got %+v", snap.Counters)
	}

	s, _ := holder.GetSession(ctx)
	if !token.Fits(s.AccessToken, token.DefaultMaxBytes) {
		t.Fatalf("holder should keep the compact token")
	}

	tok, err := client.ResolveAccessToken(ctx, false)
	if err != nil || tok != s.AccessToken {
		t.Fatalf("expected fast path on compact token, got %v", err)
	}
}
