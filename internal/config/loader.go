package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SESSIONFETCH_SERVER_ADDR.
const EnvPrefix = "SESSIONFETCH"

var ErrInvalidConfig = errors.New("invalid configuration")

var defaults = map[string]any{
	"server.addr":           "127.0.0.1:8080",
	"server.backend_url":    "http://127.0.0.1:8080",
	"server.anon_key":       "",
	"server.service_key":    "",
	"server.role":           "authenticated",
	"server.audit_log":      true,
	"server.session_ttl":    "720h",
	"server.repair_max":     5,
	"server.repair_window":  "1m",
	"server.refresh_max":    30,
	"server.refresh_window": "1m",

	"redis.addr":     "",
	"redis.password": "",
	"redis.db":       0,
	"redis.prefix":   "sf",

	"database.dsn":             "",
	"database.max_open_conns":  10,
	"database.max_idle_conns":  5,
	"database.max_idle_time":   "5m",
	"database.demo_workspaces": 0,
	"database.ensure_schema":   false,

	"token.signing_method":   "hs256",
	"token.secret":           "",
	"token.private_key_file": "",
	"token.public_key_file":  "",
	"token.access_ttl":       "15m",
	"token.issuer":           "sessionfetch",

	"client.max_token_bytes": 6000,
	"client.missing_token":   "fail",
	"client.repair_timeout":  "10s",
	"client.session_file":    "session.yaml",

	"log.level":  "info",
	"log.format": "text",
}

// Load reads .env files, then the YAML file at path (or sessionfetch.yaml in
// the working directory or ~/.sessionfetch when path is empty), then
// SESSIONFETCH_* variables, and validates the result.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		v.SetConfigName("sessionfetch")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key := range defaults {
		_ = v.BindEnv(key)
	}
	return v
}

func findConfigFile() string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".sessionfetch"))
	}
	for _, dir := range dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			p := filepath.Join(dir, "sessionfetch"+ext)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

// Validate checks struct tags and the signing key rules.
func (c *AppConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.ToLower(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.Secret) < 32 {
			return fmt.Errorf("%w: token.secret must be at least 32 bytes for hs256", ErrInvalidConfig)
		}
	case "ed25519":
		if c.Token.PublicKeyFile == "" {
			return fmt.Errorf("%w: token.public_key_file required for ed25519", ErrInvalidConfig)
		}
	}
	return nil
}
