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

	"eventocc/internal/recurrence"
)

// ICSConfig describes a single ICS subscription whose events are imported
// as recurrence rules.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID prefixes the ids of imported rules ("<id>:<UID>").
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label used for exported calendars.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for rules submitted without one.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DatabasePath is the SQLite file holding rules and occurrences.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// CacheDir holds the last good body of every ICS source.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic import and re-expansion.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how far past today occurrences are materialized.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// MaxCandidates caps the raw candidates one rule may generate.
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates"`

	// TooltipLines is the number of upcoming dates listed by the badge
	// endpoint.
	TooltipLines int `yaml:"tooltip_lines" json:"tooltip_lines"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8080",
		Timezone:      "UTC",
		DatabasePath:  "./var/eventocc.db",
		CacheDir:      "./var/ics-cache",
		RefreshCron:   "*/15 * * * *",
		HorizonDays:   recurrence.DefaultHorizonDays,
		MaxCandidates: recurrence.DefaultMaxCandidates,
		TooltipLines:  3,
		LogLevel:      "info",
		ICS:           []ICSConfig{},
		BasicAuth:     nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = def.MaxCandidates
	}
	if c.TooltipLines <= 0 {
		c.TooltipLines = def.TooltipLines
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	// A daily rule produces one candidate per horizon day plus the reference
	// date itself.
	if c.MaxCandidates <= c.HorizonDays {
		return fmt.Errorf("max_candidates %d must exceed horizon_days %d", c.MaxCandidates, c.HorizonDays)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("refresh %q: %w", c.RefreshCron, err)
	}
	seen := make(map[string]struct{}, len(c.ICS))
	for i, src := range c.ICS {
		if src.ID == "" || src.URL == "" {
			return fmt.Errorf("ics[%d]: id and url are required", i)
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("ics[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = struct{}{}
	}
	return nil
}

// Expansion returns the horizon settings for recurrence expansion.
func (c *Config) Expansion() recurrence.Config {
	return recurrence.Config{
		HorizonDays:   c.HorizonDays,
		MaxCandidates: c.MaxCandidates,
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to path atomically (temp file +
// rename) with 0600 permissions.
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
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventocc-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}
