package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// RepairPath is where the backend serves session repair.
const RepairPath = "/api/auth/repair-session"

var (
	// ErrRepairRejected is returned for a non-2xx repair response.
	ErrRepairRejected = errors.New("repair rejected by endpoint")
	// ErrRepairNotConfirmed is returned for a 2xx response without ok=true.
	ErrRepairNotConfirmed = errors.New("repair response not ok")
)

// RepairRequest is the repair endpoint payload. Field names follow the
// hosted auth backend the endpoint fronts.
type RepairRequest struct {
	AccessToken     string `json:"accessToken"`
	SupabaseURL     string `json:"supabaseUrl"`
	SupabaseAnonKey string `json:"supabaseAnonKey"`
}

// RepairResponse is the repair endpoint answer. Repaired is false when the
// session was already compact.
type RepairResponse struct {
	OK       bool   `json:"ok"`
	Repaired bool   `json:"repaired"`
	Error    string `json:"error,omitempty"`
}

// RepairEndpoint asks the backend to shrink the session behind an oversized
// access token so that the next refresh yields a compact token.
type RepairEndpoint struct {
	URL        string
	BackendURL string
	AnonKey    string
	HTTPClient *http.Client
}

// Repair posts accessToken to the endpoint. It succeeds only on a 2xx status
// whose body reports ok=true.
func (e *RepairEndpoint) Repair(ctx context.Context, accessToken string) error {
	body, err := json.Marshal(RepairRequest{
		AccessToken:     accessToken,
		SupabaseURL:     e.BackendURL,
		SupabaseAnonKey: e.AnonKey,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d", ErrRepairRejected, resp.StatusCode)
	}

	var payload RepairResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrRepairNotConfirmed, err)
	}
	if !payload.OK {
		if payload.Error != "" {
			return fmt.Errorf("%w: %s", ErrRepairNotConfirmed, payload.Error)
		}
		return ErrRepairNotConfirmed
	}
	return nil
}
