// Package config loads the sessionfetch service and CLI configuration from a
// YAML file, .env files and SESSIONFETCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/sessionfetch"
	"github.com/MrEthical07/sessionfetch/internal/audit"
	"github.com/MrEthical07/sessionfetch/membership"
	"github.com/MrEthical07/sessionfetch/server"
	"github.com/MrEthical07/sessionfetch/token"
)

// AppConfig is the root configuration of the sessionfetch binary.
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Token    TokenConfig    `mapstructure:"token"`
	Client   ClientConfig   `mapstructure:"client"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr" validate:"required,hostname_port"`
	BackendURL string `mapstructure:"backend_url" validate:"required,url"`
	AnonKey    string `mapstructure:"anon_key" validate:"required"`
	// ServiceKey guards POST /admin/v1/sessions. Empty disables the route.
	ServiceKey string `mapstructure:"service_key"`
	Role       string `mapstructure:"role"`
	AuditLog   bool   `mapstructure:"audit_log"`

	SessionTTL    time.Duration `mapstructure:"session_ttl" validate:"gt=0"`
	RepairMax     int           `mapstructure:"repair_max" validate:"gte=0"`
	RepairWindow  time.Duration `mapstructure:"repair_window" validate:"gte=0"`
	RefreshMax    int           `mapstructure:"refresh_max" validate:"gte=0"`
	RefreshWindow time.Duration `mapstructure:"refresh_window" validate:"gte=0"`
}

// RedisConfig selects the session store. An empty Addr runs an embedded
// in-memory Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Prefix   string `mapstructure:"prefix" validate:"required"`
}

// DatabaseConfig points at the Postgres membership store. An empty DSN uses
// generated in-memory memberships.
type DatabaseConfig struct {
	DSN            string        `mapstructure:"dsn"`
	MaxOpenConns   int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time" validate:"gte=0"`
	DemoWorkspaces int           `mapstructure:"demo_workspaces" validate:"gte=0"`
	EnsureSchema   bool          `mapstructure:"ensure_schema"`
}

type TokenConfig struct {
	SigningMethod  string        `mapstructure:"signing_method" validate:"oneof=hs256 ed25519"`
	Secret         string        `mapstructure:"secret"`
	PrivateKeyFile string        `mapstructure:"private_key_file"`
	PublicKeyFile  string        `mapstructure:"public_key_file"`
	AccessTTL      time.Duration `mapstructure:"access_ttl" validate:"gt=0"`
	Issuer         string        `mapstructure:"issuer"`
}

type ClientConfig struct {
	MaxTokenBytes int           `mapstructure:"max_token_bytes" validate:"min=64,max=65536"`
	MissingToken  string        `mapstructure:"missing_token" validate:"oneof=fail anonymous"`
	RepairTimeout time.Duration `mapstructure:"repair_timeout" validate:"gte=0"`
	SessionFile   string        `mapstructure:"session_file" validate:"required"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

var ErrInvalidSigningKey = errors.New("invalid signing key configuration")

// ServiceConfig maps the server section onto [server.Config].
func (c *AppConfig) ServiceConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.AnonKey = c.Server.AnonKey
	cfg.ServiceKey = c.Server.ServiceKey
	cfg.BackendURL = c.Server.BackendURL
	cfg.SessionTTL = c.Server.SessionTTL
	cfg.RedisPrefix = c.Redis.Prefix
	if c.Server.Role != "" {
		cfg.Role = c.Server.Role
	}
	cfg.RepairMax = c.Server.RepairMax
	cfg.RepairWindow = c.Server.RepairWindow
	cfg.RefreshMax = c.Server.RefreshMax
	cfg.RefreshWindow = c.Server.RefreshWindow
	cfg.Audit.Enabled = c.Server.AuditLog
	return cfg
}

// ClientConfigFor builds a client config whose repair calls target baseURL.
func (c *AppConfig) ClientConfigFor(baseURL string) sessionfetch.Config {
	cfg := sessionfetch.DefaultConfig()
	cfg.MaxTokenBytes = c.Client.MaxTokenBytes
	cfg.MissingToken = sessionfetch.MissingTokenPolicy(c.Client.MissingToken)
	cfg.Repair.Endpoint = strings.TrimRight(baseURL, "/") + "/api/auth/repair-session"
	cfg.Repair.BackendURL = c.Server.BackendURL
	cfg.Repair.AnonKey = c.Server.AnonKey
	cfg.Repair.Timeout = c.Client.RepairTimeout
	return cfg
}

func (c *AppConfig) DBConfig() membership.DBConfig {
	return membership.DBConfig{
		DSN:          c.Database.DSN,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
		MaxIdleTime:  c.Database.MaxIdleTime,
	}
}

// IssuerConfig reads key material for the configured signing method.
func (c *AppConfig) IssuerConfig() (token.IssuerConfig, error) {
	cfg := token.IssuerConfig{
		AccessTTL:     c.Token.AccessTTL,
		SigningMethod: token.SigningMethod(c.Token.SigningMethod),
		Issuer:        c.Token.Issuer,
	}

	switch cfg.SigningMethod {
	case token.MethodHS256:
		cfg.PrivateKey = []byte(c.Token.Secret)
	case token.MethodEd25519:
		priv, err := os.ReadFile(c.Token.PrivateKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidSigningKey, err)
		}
		pub, err := os.ReadFile(c.Token.PublicKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidSigningKey, err)
		}
		cfg.PrivateKey = priv
		cfg.PublicKey = pub
	}
	return cfg, nil
}

// Logger builds the process logger writing to w.
func (c *AppConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.Log.Level))
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// AuditSink returns the sink for server audit events.
func (c *AppConfig) AuditSink(logger *slog.Logger) audit.Sink {
	if !c.Server.AuditLog {
		return audit.NoOpSink{}
	}
	return audit.SlogSink{Logger: logger.With("component", "audit")}
}
