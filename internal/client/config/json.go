package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling; durations go
// through timex.Duration. Only keys present with non-zero values override
// the Config.
type JsonConfig struct {
	BackendURL       string         `json:"backend_url"`
	AnonKey          string         `json:"anon_key"`
	RedirectURL      string         `json:"redirect_url"`
	Platform         string         `json:"platform"`
	AppleServiceID   string         `json:"apple_service_id"`
	AppleRedirectURI string         `json:"apple_redirect_uri"`
	VerifyIDTokens   *bool          `json:"verify_id_tokens"`
	DatabasePath     string         `json:"database_path"`
	KeyBackend       string         `json:"key_backend"`
	RequestTimeout   timex.Duration `json:"request_timeout"`
	RefreshInterval  timex.Duration `json:"refresh_interval"`
	RefreshMargin    timex.Duration `json:"refresh_margin"`
	LogLevel         string         `json:"log_level"`
	LogFormat        string         `json:"log_format"`
	OTelEndpoint     string         `json:"otel_endpoint"`
}

// parseJson overlays cfg with the file named by -c / -config, if any.
func parseJson(cfg *Config) error {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return nil
	}
	return loadJsonFile(cfg, path)
}

func loadJsonFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.BackendURL, jc.BackendURL)
	setString(&cfg.AnonKey, jc.AnonKey)
	setString(&cfg.RedirectURL, jc.RedirectURL)
	setString(&cfg.Platform, jc.Platform)
	setString(&cfg.AppleServiceID, jc.AppleServiceID)
	setString(&cfg.AppleRedirectURI, jc.AppleRedirectURI)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.KeyBackend, jc.KeyBackend)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.OTelEndpoint, jc.OTelEndpoint)

	if jc.VerifyIDTokens != nil {
		cfg.VerifyIDTokens = *jc.VerifyIDTokens
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.RefreshInterval.Duration > 0 {
		cfg.RefreshInterval = jc.RefreshInterval.Duration
	}
	if jc.RefreshMargin.Duration > 0 {
		cfg.RefreshMargin = jc.RefreshMargin.Duration
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
