package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects the agenda store backend.
type DatabaseConfig struct {
	// Driver is "postgres" (default) or "sqlite".
	Driver string `yaml:"driver"`
	// URL is a pgx connection string or an SQLite file path / DSN.
	URL string `yaml:"url"`
}

// StaticToken maps a fixed bearer token to a principal.
type StaticToken struct {
	Token        string `yaml:"token"`
	TechnicianID string `yaml:"technician_id"`
	Admin        bool   `yaml:"admin"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	StaticTokens []StaticToken `yaml:"static_tokens"`
}

// GoogleConfig enables pushing agendas to Google Calendar.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	// CalendarID is the target calendar, "primary" by default.
	CalendarID string `yaml:"calendar_id"`
	// SyncCron is a standard 5-field cron spec; empty disables scheduled sync.
	SyncCron string `yaml:"sync_cron"`
	// HorizonDays is how far ahead a sync pushes records.
	HorizonDays int `yaml:"horizon_days"`
}

// Enabled reports whether OAuth credentials are configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

// ClientConfig is used by agendactl to reach the service.
type ClientConfig struct {
	ServerURL string        `yaml:"server_url"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Config is the top-level configuration shared by the server and agendactl.
type Config struct {
	Listen   string         `yaml:"listen"`
	LogLevel string         `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Google   GoogleConfig   `yaml:"google"`
	Client   ClientConfig   `yaml:"client"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Database: DatabaseConfig{Driver: DriverPostgres},
		Google: GoogleConfig{
			CalendarID:  "primary",
			HorizonDays: 30,
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:8080",
			Timeout:   15 * time.Second,
		},
	}
}

// Normalize fills in missing values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = def.Google.CalendarID
	}
	if c.Google.HorizonDays <= 0 {
		c.Google.HorizonDays = def.Google.HorizonDays
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = def.Client.ServerURL
	}
	c.Client.ServerURL = strings.TrimRight(c.Client.ServerURL, "/")
	if c.Client.Timeout <= 0 {
		c.Client.Timeout = def.Client.Timeout
	}
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := strings.TrimSpace(getenv("JWT_HMAC_SECRET")); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(getenv("STATIC_TOKENS")); v != "" {
		c.Auth.StaticTokens = append(c.Auth.StaticTokens, ParseStaticTokens(v)...)
	}
	if v := getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.Google.ClientID = v
	}
	if v := getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.Google.ClientSecret = v
	}
	if v := getenv("GOOGLE_REDIRECT_URL"); v != "" {
		c.Google.RedirectURL = v
	}
	if v := getenv("AGENDA_SERVER"); v != "" {
		c.Client.ServerURL = v
	}
	if v := getenv("AGENDA_TOKEN"); v != "" {
		c.Client.Token = v
	}
}

// ParseStaticTokens parses "token:technician[:admin]" entries separated by commas.
// A bare token without a technician is ignored.
func ParseStaticTokens(s string) []StaticToken {
	var out []StaticToken
	for _, entry := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		tok := StaticToken{Token: parts[0], TechnicianID: parts[1]}
		if len(parts) > 2 && strings.EqualFold(parts[2], "admin") {
			tok.Admin = true
		}
		out = append(out, tok)
	}
	return out
}

// ValidateServer checks the settings cmd/server needs.
func (c *Config) ValidateServer() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL required")
	}
	if c.Auth.JWTSecret == "" && len(c.Auth.StaticTokens) == 0 {
		return errors.New("JWT_HMAC_SECRET or STATIC_TOKENS required")
	}
	if c.Google.SyncCron != "" {
		if _, err := cron.ParseStandard(c.Google.SyncCron); err != nil {
			return fmt.Errorf("invalid google.sync_cron: %w", err)
		}
	}
	return nil
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "agenda", "config.yaml"), nil
}

// Load reads the YAML file at path (a missing file yields defaults), then
// applies environment overrides and normalizes the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.Normalize()
	return cfg, nil
}

// Save writes cfg atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".agenda-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
