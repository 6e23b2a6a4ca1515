package sessionfetch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MrEthical07/sessionfetch/token"
)

// MissingTokenPolicy decides what [Client.Fetch] does when no token resolves.
type MissingTokenPolicy string

const (
	// MissingTokenFail returns ErrUnauthenticated without sending the request.
	MissingTokenFail MissingTokenPolicy = "fail"
	// MissingTokenAnonymous sends the request without an Authorization header.
	MissingTokenAnonymous MissingTokenPolicy = "anonymous"
)

// lintMaxTokenBytes is where common proxies start rejecting request headers.
const lintMaxTokenBytes = 7000

// Config controls a [Client].
type Config struct {
	// MaxTokenBytes is the largest access token sent as a bearer header.
	MaxTokenBytes int                `validate:"min=64,max=65536"`
	MissingToken  MissingTokenPolicy `validate:"oneof=fail anonymous"`
	Repair        RepairConfig
	Metrics       MetricsConfig
}

// RepairConfig points at the session repair endpoint and carries the backend
// coordinates it needs to rebuild a compact session. Endpoint may be left
// empty when a custom repairer is supplied through [Builder.WithRepairer].
type RepairConfig struct {
	Endpoint   string        `validate:"omitempty,url"`
	BackendURL string        `validate:"omitempty,url"`
	AnonKey    string
	Timeout    time.Duration `validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a config with the canonical 6000 byte limit. Repair
// coordinates are left for the caller.
func DefaultConfig() Config {
	return Config{
		MaxTokenBytes: token.DefaultMaxBytes,
		MissingToken:  MissingTokenFail,
		Repair: RepairConfig{
			Timeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and returns ErrInvalidConfig listing
// every offending field.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
	}
	if c.Repair.Endpoint != "" {
		if c.Repair.BackendURL == "" {
			return fmt.Errorf("%w: Repair.BackendURL required with Repair.Endpoint", ErrInvalidConfig)
		}
		if strings.TrimSpace(c.Repair.AnonKey) == "" {
			return fmt.Errorf("%w: Repair.AnonKey required with Repair.Endpoint", ErrInvalidConfig)
		}
	}
	return nil
}

// LintWarning is a non-fatal observation about a config.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult holds every warning produced by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, len(r))
	for i, w := range r {
		codes[i] = w.Code
	}
	return codes
}

// Lint reports valid but risky settings.
func (c *Config) Lint() LintResult {
	var ws LintResult
	if c.MaxTokenBytes > lintMaxTokenBytes {
		ws = append(ws, LintWarning{
			Code:    "max_token_bytes_high",
			Message: fmt.Sprintf("tokens up to %d bytes may be rejected by proxies limiting headers to 8KiB", c.MaxTokenBytes),
		})
	}
	if c.MissingToken == MissingTokenAnonymous {
		ws = append(ws, LintWarning{
			Code:    "anonymous_fallback",
			Message: "requests without a session are sent unauthenticated",
		})
	}
	if c.Repair.Timeout == 0 {
		ws = append(ws, LintWarning{
			Code:    "repair_timeout_unbounded",
			Message: "repair calls rely on the request context for cancellation",
		})
	}
	if strings.HasPrefix(c.Repair.Endpoint, "http://") && !isLoopback(c.Repair.Endpoint) {
		ws = append(ws, LintWarning{
			Code:    "repair_endpoint_plaintext",
			Message: "access tokens are posted to the repair endpoint over plain http",
		})
	}
	return ws
}

func isLoopback(u string) bool {
	rest := strings.TrimPrefix(u, "http://")
	return strings.HasPrefix(rest, "localhost") || strings.HasPrefix(rest, "127.0.0.1") || strings.HasPrefix(rest, "[::1]")
}
