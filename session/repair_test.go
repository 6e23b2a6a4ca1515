package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRepairEndpointSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != RepairPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		var body RepairRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.AccessToken != "h.p.s" || body.SupabaseURL != "https://backend.test" || body.SupabaseAnonKey != "anon" {
			t.Errorf("unexpected body %+v", body)
		}
		_ = json.NewEncoder(w).Encode(RepairResponse{OK: true, Repaired: true})
	}))
	defer srv.Close()

	ep := &RepairEndpoint{URL: srv.URL + RepairPath, BackendURL: "https://backend.test", AnonKey: "anon", HTTPClient: srv.Client()}
	if err := ep.Repair(context.Background(), "h.p.s"); err != nil {
		t.Fatalf("repair: %v", err)
	}
}

func TestRepairEndpointFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"ok":true}`, want: ErrRepairRejected},
		{name: "ok false", status: http.StatusOK, body: `{"ok":false,"error":"nope"}`, want: ErrRepairNotConfirmed},
		{name: "ok missing", status: http.StatusOK, body: `{"repaired":true}`, want: ErrRepairNotConfirmed},
		{name: "not json", status: http.StatusOK, body: `<html>`, want: ErrRepairNotConfirmed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			ep := &RepairEndpoint{URL: srv.URL, HTTPClient: srv.Client()}
			if err := ep.Repair(context.Background(), "h.p.s"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
