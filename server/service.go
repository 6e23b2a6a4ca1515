package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/sessionfetch/internal"
	"github.com/MrEthical07/sessionfetch/internal/audit"
	"github.com/MrEthical07/sessionfetch/internal/flows"
	"github.com/MrEthical07/sessionfetch/internal/rate"
	"github.com/MrEthical07/sessionfetch/membership"
	"github.com/MrEthical07/sessionfetch/session"
	"github.com/MrEthical07/sessionfetch/token"
)

// TokenPair is the result of issuing or refreshing a session.
type TokenPair struct {
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Compact      bool
}

// Response renders the pair in the token endpoint wire format.
func (p TokenPair) Response(now time.Time) session.TokenResponse {
	return session.TokenResponse{
		AccessToken:  p.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(p.ExpiresAt.Sub(now).Seconds()),
		ExpiresAt:    p.ExpiresAt.Unix(),
		RefreshToken: p.RefreshToken,
		UserID:       p.UserID,
	}
}

// Option customizes a [Service].
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithAuditSink replaces the default slog audit sink.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) { s.auditSink = sink }
}

// WithRegisterer registers server metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.registerer = reg }
}

// Service issues, refreshes and repairs sessions.
type Service struct {
	cfg     Config
	store   *session.Store
	issuer  *token.Issuer
	members membership.Source
	limiter *rate.Limiter
	audit   *audit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger

	auditSink  audit.Sink
	registerer prometheus.Registerer
	registry   *prometheus.Registry
}

// NewService wires the session store, rate limiter and audit dispatcher on
// top of rdb. Call Close to flush audit events.
func NewService(cfg Config, rdb redis.UniversalClient, issuer *token.Issuer, members membership.Source, opts ...Option) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if rdb == nil || issuer == nil || members == nil {
		return nil, errors.New("server: redis, issuer and membership source required")
	}

	s := &Service{
		cfg:     cfg,
		store:   session.NewStore(rdb, cfg.RedisPrefix),
		issuer:  issuer,
		members: members,
		limiter: rate.New(rdb, rate.Config{
			Prefix:        cfg.RedisPrefix,
			RepairMax:     cfg.RepairMax,
			RepairWindow:  cfg.RepairWindow,
			RefreshMax:    cfg.RefreshMax,
			RefreshWindow: cfg.RefreshWindow,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.auditSink == nil {
		s.auditSink = audit.SlogSink{Logger: s.logger}
	}
	if s.registerer == nil {
		s.registry = prometheus.NewRegistry()
		s.registerer = s.registry
	}

	s.audit = audit.NewDispatcher(cfg.Audit, s.auditSink)
	s.metrics = NewMetrics(s.registerer)
	registerAuditDrops(s.registerer, s.audit.Dropped)
	return s, nil
}

// Close flushes pending audit events.
func (s *Service) Close() {
	s.audit.Close()
}

// Registry returns the private metrics registry, or nil when metrics were
// registered through [WithRegisterer].
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// IssueSession creates a session for userID and returns a full token pair.
func (s *Service) IssueSession(ctx context.Context, userID string) (TokenPair, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || len(userID) > 255 {
		return TokenPair{}, ErrInvalidUser
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return TokenPair{}, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}
	mv, err := s.members.Version(ctx, userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now()
	rec := &session.Record{
		SchemaVersion:     session.CurrentSchemaVersion,
		SessionID:         sid.String(),
		UserID:            userID,
		RefreshHash:       internal.HashRefreshSecret(secret),
		MembershipVersion: mv,
		CreatedAt:         now.Unix(),
		ExpiresAt:         now.Add(s.cfg.SessionTTL).Unix(),
	}
	if err := s.store.Save(ctx, rec, s.cfg.SessionTTL); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	access, exp, err := s.issueAccess(ctx, rec)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := internal.EncodeRefreshToken(rec.SessionID, secret)
	if err != nil {
		return TokenPair{}, err
	}

	s.metrics.SessionsIssued.Inc()
	s.audit.Emit(ctx, audit.Event{EventType: audit.EventSessionIssued, UserID: userID, SessionID: rec.SessionID, Success: true})

	return TokenPair{
		UserID:       userID,
		SessionID:    rec.SessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Unix(exp, 0),
	}, nil
}

// Refresh rotates the refresh token. A stale refresh token revokes the
// session and returns ErrRefreshReuse.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	sid, _, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		s.metrics.TokenRequests.WithLabelValues("invalid").Inc()
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if err := s.limiter.AllowRefresh(ctx, sid); err != nil {
		return TokenPair{}, s.limitError(ctx, "refresh", sid, err, s.metrics.TokenRequests)
	}

	res := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		DecodeRefreshToken: internal.DecodeRefreshToken,
		NewRefreshSecret:   internal.NewRefreshSecret,
		HashRefreshSecret:  internal.HashRefreshSecret,
		EncodeRefreshToken: internal.EncodeRefreshToken,
		IssueAccessToken:   s.issueAccess,
		SessionStore:       s.store,
	})

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureReuse:
		s.metrics.TokenRequests.WithLabelValues("reuse").Inc()
		s.audit.Emit(ctx, audit.Event{EventType: audit.EventRefreshReuse, SessionID: sid, Error: res.Err.Error()})
		s.logger.WarnContext(ctx, "refresh token reuse, session revoked", "session_id", sid)
		return TokenPair{}, ErrRefreshReuse
	case flows.RefreshFailureSessionNotFound:
		s.metrics.TokenRequests.WithLabelValues("not_found").Inc()
		s.audit.Emit(ctx, audit.Event{EventType: audit.EventRefreshRejected, SessionID: sid, Error: res.Err.Error()})
		return TokenPair{}, ErrSessionNotFound
	case flows.RefreshFailureDecode:
		s.metrics.TokenRequests.WithLabelValues("invalid").Inc()
		return TokenPair{}, ErrInvalidRefreshToken
	default:
		s.metrics.TokenRequests.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "refresh failed", "session_id", sid, "error", res.Err)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrUnavailable, res.Err)
	}

	s.metrics.TokenRequests.WithLabelValues("ok").Inc()
	s.audit.Emit(ctx, audit.Event{
		EventType: audit.EventSessionRefreshed,
		UserID:    res.Record.UserID,
		SessionID: sid,
		Success:   true,
		Metadata:  map[string]string{"compact": fmt.Sprint(res.Record.Compact)},
	})

	return TokenPair{
		UserID:       res.Record.UserID,
		SessionID:    sid,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    time.Unix(res.ExpiresAt, 0),
		Compact:      res.Record.Compact,
	}, nil
}

// Repair marks the session behind req.AccessToken compact. The token's
// signature is verified but its expiry is not.
func (s *Service) Repair(ctx context.Context, req session.RepairRequest) (session.RepairResponse, error) {
	if subtle.ConstantTimeCompare([]byte(req.SupabaseAnonKey), []byte(s.cfg.AnonKey)) != 1 {
		s.metrics.RepairRequests.WithLabelValues("rejected").Inc()
		return session.RepairResponse{}, ErrInvalidAnonKey
	}
	if normalizeURL(req.SupabaseURL) != normalizeURL(s.cfg.BackendURL) {
		s.metrics.RepairRequests.WithLabelValues("rejected").Inc()
		return session.RepairResponse{}, ErrBackendMismatch
	}

	claims, err := s.issuer.ParseIgnoringExpiry(req.AccessToken)
	if err != nil || claims.SID == "" {
		s.metrics.RepairRequests.WithLabelValues("rejected").Inc()
		s.audit.Emit(ctx, audit.Event{EventType: audit.EventRepairRejected, Error: "invalid access token"})
		return session.RepairResponse{}, ErrInvalidAccessToken
	}

	if err := s.limiter.AllowRepair(ctx, claims.SID); err != nil {
		return session.RepairResponse{}, s.limitError(ctx, "repair", claims.SID, err, s.metrics.RepairRequests)
	}

	repaired, err := s.store.MarkCompact(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) || errors.Is(err, session.ErrRecordExpired) {
			s.metrics.RepairRequests.WithLabelValues("rejected").Inc()
			s.audit.Emit(ctx, audit.Event{EventType: audit.EventRepairRejected, UserID: claims.Subject, SessionID: claims.SID, Error: err.Error()})
			return session.RepairResponse{}, ErrSessionNotFound
		}
		s.metrics.RepairRequests.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "repair failed", "session_id", claims.SID, "error", err)
		return session.RepairResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	outcome := "unchanged"
	if repaired {
		outcome = "repaired"
	}
	s.metrics.RepairRequests.WithLabelValues(outcome).Inc()
	s.audit.Emit(ctx, audit.Event{
		EventType: audit.EventSessionRepaired,
		UserID:    claims.Subject,
		SessionID: claims.SID,
		Success:   true,
		Metadata:  map[string]string{"token_bytes": fmt.Sprint(len(req.AccessToken)), "outcome": outcome},
	})
	s.logger.InfoContext(ctx, "session repaired", "session_id", claims.SID, "bytes", len(req.AccessToken), "changed", repaired)

	return session.RepairResponse{OK: true, Repaired: repaired}, nil
}

// SessionActive reports whether sessionID is still stored.
func (s *Service) SessionActive(ctx context.Context, sessionID string) (bool, error) {
	if _, err := s.store.Get(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrRecordNotFound) || errors.Is(err, session.ErrRecordExpired) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Memberships looks up the user's workspaces for compact tokens.
func (s *Service) Memberships(ctx context.Context, userID string) ([]membership.Membership, error) {
	return s.members.Memberships(ctx, userID)
}

// Ping checks the session store.
func (s *Service) Ping(ctx context.Context) (time.Duration, error) {
	return s.store.Ping(ctx)
}

func (s *Service) issueAccess(ctx context.Context, rec *session.Record) (string, int64, error) {
	mv, err := s.members.Version(ctx, rec.UserID)
	if err != nil {
		return "", 0, err
	}
	grant := token.Grant{
		UserID:            rec.UserID,
		SessionID:         rec.SessionID,
		Role:              s.cfg.Role,
		MembershipVersion: mv,
		Compact:           rec.Compact,
	}
	kind := "compact"
	if !rec.Compact {
		ms, err := s.members.Memberships(ctx, rec.UserID)
		if err != nil {
			return "", 0, err
		}
		grant.Workspaces = membership.Claims(ms)
		kind = "full"
	}

	raw, exp, err := s.issuer.Issue(grant)
	if err != nil {
		return "", 0, err
	}
	s.metrics.IssuedTokenBytes.WithLabelValues(kind).Observe(float64(len(raw)))
	return raw, exp.Unix(), nil
}

func (s *Service) limitError(ctx context.Context, op, sid string, err error, counter *prometheus.CounterVec) error {
	if errors.Is(err, rate.ErrRateLimited) {
		counter.WithLabelValues("rate_limited").Inc()
		s.logger.WarnContext(ctx, op+" rate limited", "session_id", sid)
		return ErrRateLimited
	}
	counter.WithLabelValues("error").Inc()
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
