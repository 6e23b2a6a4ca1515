package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/sessionfetch/middleware"
	"github.com/MrEthical07/sessionfetch/session"
)

const maxBodyBytes = 1 << 16

// Handler serves the token, repair, admin and demo API routes.
type Handler struct {
	svc    *Service
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewHandler builds the route table. gatherer serves /metrics; nil uses the
// service's private registry.
func NewHandler(svc *Service, gatherer prometheus.Gatherer) *Handler {
	h := &Handler{svc: svc, mux: http.NewServeMux(), logger: svc.logger}
	if gatherer == nil && svc.registry != nil {
		gatherer = svc.registry
	}

	h.mux.HandleFunc("POST /auth/v1/token", h.token)
	h.mux.HandleFunc("POST "+session.RepairPath, h.repair)
	h.mux.HandleFunc("POST /admin/v1/sessions", h.issue)
	h.mux.Handle("GET /api/me", middleware.RequireSession(svc.issuer, svc)(http.HandlerFunc(h.me)))
	h.mux.HandleFunc("GET /healthz", h.health)
	if gatherer != nil {
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("apikey")), []byte(h.svc.cfg.AnonKey)) != 1 {
		writeJSON(w, http.StatusUnauthorized, oauthError{Error: "invalid_client", Description: "invalid apikey"})
		return
	}
	if grant := r.URL.Query().Get("grant_type"); grant != "refresh_token" {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "unsupported_grant_type", Description: grant})
		return
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &body); err != nil || body.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_request", Description: "refresh_token required"})
		return
	}

	pair, err := h.svc.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		status, code := refreshStatus(err)
		writeJSON(w, status, oauthError{Error: code, Description: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, pair.Response(time.Now()))
}

func refreshStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRefreshToken), errors.Is(err, ErrRefreshReuse), errors.Is(err, ErrSessionNotFound):
		return http.StatusBadRequest, "invalid_grant"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "over_request_rate_limit"
	default:
		return http.StatusServiceUnavailable, "server_error"
	}
}

func (h *Handler) repair(w http.ResponseWriter, r *http.Request) {
	var req session.RepairRequest
	if err := decodeBody(r, &req); err != nil || req.AccessToken == "" {
		writeJSON(w, http.StatusBadRequest, session.RepairResponse{Error: "accessToken required"})
		return
	}

	resp, err := h.svc.Repair(r.Context(), req)
	if err != nil {
		writeJSON(w, repairStatus(err), session.RepairResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func repairStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAnonKey), errors.Is(err, ErrInvalidAccessToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBackendMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	key := h.svc.cfg.ServiceKey
	if key == "" {
		http.NotFound(w, r)
		return
	}
	presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
		writeJSON(w, http.StatusUnauthorized, oauthError{Error: "unauthorized"})
		return
	}

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_request"})
		return
	}

	pair, err := h.svc.IssueSession(r.Context(), body.UserID)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrInvalidUser) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, oauthError{Error: "issue_failed", Description: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, pair.Response(time.Now()))
}

// MeResponse is returned by GET /api/me.
type MeResponse struct {
	UserID            string            `json:"user_id"`
	SessionID         string            `json:"session_id"`
	Compact           bool              `json:"compact"`
	MembershipVersion uint32            `json:"membership_version"`
	Workspaces        map[string]string `json:"workspaces"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, oauthError{Error: "unauthorized"})
		return
	}

	ws := claims.Workspaces
	if claims.Compact {
		ms, err := h.svc.Memberships(r.Context(), claims.Subject)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "membership lookup failed", "user_id", claims.Subject, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, oauthError{Error: "server_error"})
			return
		}
		ws = make(map[string]string, len(ms))
		for _, m := range ms {
			ws[m.WorkspaceID] = string(m.Role)
		}
	}

	writeJSON(w, http.StatusOK, MeResponse{
		UserID:            claims.Subject,
		SessionID:         claims.SID,
		Compact:           claims.Compact,
		MembershipVersion: claims.MembershipVersion,
		Workspaces:        ws,
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	latency, err := h.svc.Ping(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "redis_latency": latency.String()})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
