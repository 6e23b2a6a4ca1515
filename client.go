package sessionfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/sessionfetch/internal/flows"
	"github.com/MrEthical07/sessionfetch/session"
)

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Repairer asks the backend to shrink the session behind an oversized token.
type Repairer interface {
	Repair(ctx context.Context, accessToken string) error
}

// RepairerFunc adapts a function to [Repairer].
type RepairerFunc func(ctx context.Context, accessToken string) error

func (f RepairerFunc) Repair(ctx context.Context, accessToken string) error {
	return f(ctx, accessToken)
}

// Stage names the resolution state a failure happened in.
type Stage string

const (
	StageUnvalidated    Stage = "unvalidated"
	StageRefreshPending Stage = "refresh_pending"
	StageRepairPending  Stage = "repair_pending"
	StageValid          Stage = "valid"
	StageFailed         Stage = "failed"
)

// FormBody is an opaque form payload, typically multipart. It is sent as is
// and never gets the JSON content type.
type FormBody struct {
	ContentType string
	Reader      io.Reader
}

// Request describes an outbound call made through [Client.Fetch].
//
// Body may be nil, a [FormBody], an io.Reader, []byte, a string or any value
// that encodes to JSON.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   any
}

// Client attaches a valid bearer token to outbound requests, refreshing and
// repairing the session when the stored token is unusable.
//
// Calls are independent: concurrent callers with a bad token each run their
// own refresh and repair.
type Client struct {
	config   Config
	source   session.Source
	http     HTTPDoer
	repairer Repairer
	logger   *slog.Logger
	metrics  *Metrics
}

// ResolveAccessToken returns a shape-valid access token no larger than
// Config.MaxTokenBytes.
//
// With forceRefresh the session is refreshed once before it is read. A stored
// token that fails validation is refreshed; a refreshed token that is
// well-formed but oversized is sent to the repair endpoint and refreshed one
// final time. Failures are returned as *ResolveError matching
// [ErrNoUsableToken].
func (c *Client) ResolveAccessToken(ctx context.Context, forceRefresh bool) (string, error) {
	start := time.Now()
	res := flows.RunResolve(ctx, forceRefresh, flows.ResolveDeps{
		ReadToken:    c.readToken,
		RefreshToken: c.refreshToken,
		Repair:       c.repair,
		MaxBytes:     c.config.MaxTokenBytes,
		Enter: func(s flows.State) {
			c.logger.DebugContext(ctx, "sessionfetch: token state", "stage", s.String())
		},
	})
	c.metrics.Observe(MetricResolveLatency, time.Since(start))

	if res.Failure == flows.ResolveFailureNone {
		c.metrics.Inc(MetricResolveSuccess)
		if res.FastPath {
			c.metrics.Inc(MetricResolveFastPath)
		}
		return res.Token, nil
	}

	rerr := &ResolveError{Stage: Stage(res.Stage.String()), Kind: resolveKind(res.Failure), Err: res.Err}
	switch res.Failure {
	case flows.ResolveFailureMissingSession:
		c.metrics.Inc(MetricResolveMissingSession)
		c.logger.DebugContext(ctx, "sessionfetch: no session", "error", res.Err)
	case flows.ResolveFailureMalformed:
		c.metrics.Inc(MetricResolveMalformed)
		c.logger.WarnContext(ctx, "sessionfetch: malformed token after refresh", "stage", rerr.Stage, "refreshes", res.Refreshes)
	case flows.ResolveFailureOversized:
		c.metrics.Inc(MetricResolveOversized)
		c.logger.WarnContext(ctx, "sessionfetch: token still oversized after repair", "stage", rerr.Stage, "max_bytes", c.config.MaxTokenBytes)
	default:
		c.logger.WarnContext(ctx, "sessionfetch: token resolution failed", "stage", rerr.Stage, "error", res.Err)
	}
	return "", rerr
}

// Fetch resolves a token and sends req with it.
//
// Without a token the request fails with [ErrUnauthenticated] unless the
// policy is [MissingTokenAnonymous]. The response is returned as received;
// Fetch never retries.
func (c *Client) Fetch(ctx context.Context, req Request) (*http.Response, error) {
	tok, err := c.ResolveAccessToken(ctx, false)
	if err != nil {
		if c.config.MissingToken != MissingTokenAnonymous {
			c.metrics.Inc(MetricFetchUnauthenticated)
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		c.metrics.Inc(MetricFetchAnonymous)
		c.logger.InfoContext(ctx, "sessionfetch: sending request without token", "url", req.URL)
	}

	httpReq, err := c.newRequest(ctx, req, tok)
	if err != nil {
		return nil, err
	}

	c.metrics.Inc(MetricFetchSent)
	return c.http.Do(httpReq)
}

// Metrics returns the client's counters.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot copies the current counters for exporters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

func (c *Client) newRequest(ctx context.Context, req Request, tok string) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	body, form, err := requestBody(req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	if tok != "" {
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}
	if httpReq.Header.Get("Content-Type") == "" {
		switch {
		case form == nil:
			httpReq.Header.Set("Content-Type", "application/json")
		case form.ContentType != "":
			httpReq.Header.Set("Content-Type", form.ContentType)
		}
	}
	if httpReq.Header.Get(RequestIDHeader) == "" {
		httpReq.Header.Set(RequestIDHeader, requestIDFromContext(ctx))
	}
	return httpReq, nil
}

func requestBody(body any) (io.Reader, *FormBody, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil, nil
	case FormBody:
		return b.Reader, &b, nil
	case *FormBody:
		if b == nil {
			return nil, nil, nil
		}
		return b.Reader, b, nil
	case io.Reader:
		return b, nil, nil
	case []byte:
		return bytes.NewReader(b), nil, nil
	case string:
		return bytes.NewReader([]byte(b)), nil, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(data), nil, nil
	}
}

func (c *Client) readToken(ctx context.Context) (string, error) {
	s, err := c.source.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", session.ErrNoSession
	}
	return s.AccessToken, nil
}

func (c *Client) refreshToken(ctx context.Context) (string, error) {
	s, err := c.source.RefreshSession(ctx)
	if err == nil && s == nil {
		err = session.ErrNoSession
	}
	if err != nil {
		c.metrics.Inc(MetricRefreshFailure)
		return "", err
	}
	c.metrics.Inc(MetricRefreshSuccess)
	return s.AccessToken, nil
}

func (c *Client) repair(ctx context.Context, tok string) error {
	if c.repairer == nil {
		c.metrics.Inc(MetricRepairFailure)
		return ErrRepairNotEnabled
	}
	if c.config.Repair.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Repair.Timeout)
		defer cancel()
	}

	c.logger.InfoContext(ctx, "sessionfetch: repairing oversized session", "bytes", len(tok), "max_bytes", c.config.MaxTokenBytes)
	if err := c.repairer.Repair(ctx, tok); err != nil {
		c.metrics.Inc(MetricRepairFailure)
		return err
	}
	c.metrics.Inc(MetricRepairSuccess)
	return nil
}

func resolveKind(kind flows.ResolveFailureKind) error {
	switch kind {
	case flows.ResolveFailureMissingSession:
		return ErrMissingSession
	case flows.ResolveFailureMalformed:
		return ErrMalformedToken
	case flows.ResolveFailureOversized:
		return ErrOversizedToken
	case flows.ResolveFailureRefresh:
		return ErrRefreshFailed
	case flows.ResolveFailureRepair:
		return ErrRepairFailed
	default:
		return errors.New("unknown resolve failure")
	}
}
