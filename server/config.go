package server

import (
	"errors"
	"time"

	"github.com/MrEthical07/sessionfetch/internal/audit"
)

// Config controls a [Service].
type Config struct {
	// SessionTTL bounds the refresh token lifetime.
	SessionTTL time.Duration
	// AnonKey is the public key clients send as apikey and in repair bodies.
	AnonKey string
	// ServiceKey guards session issuance. Empty disables the admin route.
	ServiceKey string
	// BackendURL is the public base URL clients know this server by.
	BackendURL  string
	RedisPrefix string
	Role        string

	RepairMax     int
	RepairWindow  time.Duration
	RefreshMax    int
	RefreshWindow time.Duration

	Audit audit.Config
}

func DefaultConfig() Config {
	return Config{
		SessionTTL:    30 * 24 * time.Hour,
		RedisPrefix:   "sf",
		Role:          "authenticated",
		RepairMax:     5,
		RepairWindow:  time.Minute,
		RefreshMax:    30,
		RefreshWindow: time.Minute,
		Audit: audit.Config{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func (c Config) validate() error {
	if c.SessionTTL <= 0 {
		return errors.New("server: SessionTTL must be positive")
	}
	if c.AnonKey == "" {
		return errors.New("server: AnonKey required")
	}
	if c.BackendURL == "" {
		return errors.New("server: BackendURL required")
	}
	return nil
}
