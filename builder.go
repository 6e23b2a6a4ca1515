package sessionfetch

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/sessionfetch/session"
)

// Builder assembles a [Client]. It is single use.
type Builder struct {
	config   Config
	source   session.Source
	http     HTTPDoer
	repairer Repairer
	logger   *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSessionSource sets where tokens are read from and refreshed through.
func (b *Builder) WithSessionSource(src session.Source) *Builder {
	b.source = src
	return b
}

// WithHTTPClient sets the transport used for requests and, unless
// [Builder.WithRepairer] is used, for repair calls. A plain *http.Client is
// required for the latter; other doers only carry requests.
func (b *Builder) WithHTTPClient(doer HTTPDoer) *Builder {
	b.http = doer
	return b
}

// WithRepairer replaces the HTTP repair call built from Config.Repair.
func (b *Builder) WithRepairer(r Repairer) *Builder {
	b.repairer = r
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the config and returns the client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.source == nil {
		return nil, ErrSourceRequired
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range cfg.Lint() {
		logger.Warn("sessionfetch: config lint", "code", w.Code, "message", w.Message)
	}

	doer := b.http
	if doer == nil {
		doer = http.DefaultClient
	}

	repairer := b.repairer
	if repairer == nil && cfg.Repair.Endpoint != "" {
		hc, _ := doer.(*http.Client)
		repairer = &session.RepairEndpoint{
			URL:        cfg.Repair.Endpoint,
			BackendURL: cfg.Repair.BackendURL,
			AnonKey:    cfg.Repair.AnonKey,
			HTTPClient: hc,
		}
	}
	if repairer == nil {
		logger.Warn("sessionfetch: no repair endpoint configured; oversized tokens cannot be repaired")
	}

	b.built = true

	return &Client{
		config:   cfg,
		source:   b.source,
		http:     doer,
		repairer: repairer,
		logger:   logger,
		metrics:  NewMetrics(cfg.Metrics),
	}, nil
}

// MustBuild is Build for program setup; it panics on error.
func (b *Builder) MustBuild() *Client {
	c, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("sessionfetch: %v", err))
	}
	return c
}
