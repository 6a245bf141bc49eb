package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	KeyBackendKeyring    = "keyring"
	KeyBackendPassphrase = "passphrase"
)

// Config holds runtime settings for the auth client and its CLI.
//
// Durations are time.Duration; JSON accepts "30s" style strings or
// nanoseconds, the environment accepts Go duration strings.
type Config struct {
	BackendURL  string `env:"SUPABASE_URL"`
	AnonKey     string `env:"SUPABASE_ANON_KEY"`
	RedirectURL string `env:"SUPABASE_REDIRECT_URL"`

	Platform         string `env:"GOPHAUTH_PLATFORM"`
	AppleServiceID   string `env:"APPLE_SERVICE_ID"`
	AppleRedirectURI string `env:"APPLE_REDIRECT_URI"`
	VerifyIDTokens   bool   `env:"GOPHAUTH_VERIFY_ID_TOKENS"`

	DatabasePath    string `env:"GOPHAUTH_DB_PATH"`
	KeyBackend      string `env:"GOPHAUTH_KEY_BACKEND"`
	StorePassphrase string `env:"GOPHAUTH_STORE_PASSPHRASE"`

	RequestTimeout  time.Duration `env:"GOPHAUTH_REQUEST_TIMEOUT"`
	RefreshInterval time.Duration `env:"GOPHAUTH_REFRESH_INTERVAL"`
	RefreshMargin   time.Duration `env:"GOPHAUTH_REFRESH_MARGIN"`

	LogLevel     string `env:"GOPHAUTH_LOG_LEVEL"`
	LogFormat    string `env:"GOPHAUTH_LOG_FORMAT"`
	OTelEndpoint string `env:"GOPHAUTH_OTEL_ENDPOINT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.RedirectURL = "http://127.0.0.1:54321/auth/callback"
	c.Platform = "web"
	c.DatabasePath = defaultDatabasePath()
	c.KeyBackend = KeyBackendKeyring
	c.RequestTimeout = 30 * time.Second
	c.RefreshInterval = 30 * time.Second
	c.RefreshMargin = time.Minute
	c.LogLevel = "info"
	c.LogFormat = "console"
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "gophauth.db"
	}
	return filepath.Join(dir, "gophauth", "client.db")
}

// LoadConfig builds a Config from defaults, then the JSON file, dotenv
// files, the environment and finally command-line flags. Later sources win.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, os.Args[1:]); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the client cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.BackendURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if c.AnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Supabase environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.Platform {
	case "ios", "android", "web":
	default:
		return fmt.Errorf("unknown platform %q (want ios, android or web)", c.Platform)
	}

	switch c.KeyBackend {
	case KeyBackendKeyring:
	case KeyBackendPassphrase:
		if c.StorePassphrase == "" {
			return errors.New("key backend passphrase requires GOPHAUTH_STORE_PASSPHRASE")
		}
	default:
		return fmt.Errorf("unknown key backend %q", c.KeyBackend)
	}

	if c.RefreshInterval <= 0 || c.RequestTimeout <= 0 {
		return errors.New("refresh interval and request timeout must be positive")
	}
	return nil
}
