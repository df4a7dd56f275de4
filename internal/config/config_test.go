package config

import (
	"os"
	"path/filepath"
	"testing"

	"eventocc/internal/recurrence"
)

func TestLoad_CreatesDefault(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HorizonDays != recurrence.DefaultHorizonDays || cfg.TooltipLines != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Listen != cfg.Listen || again.DatabasePath != cfg.DatabasePath {
		t.Fatalf("reload mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `listen: ":9000"
log_level: DEBUG
horizon_days: 30
ics:
  - id: club
    url: https://cal.example.com/club.ics
basic_auth:
  username: ""
  password: ""
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.HorizonDays != 30 || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.MaxCandidates != recurrence.DefaultMaxCandidates || cfg.Timezone != "UTC" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.BasicAuth != nil {
		t.Fatalf("empty credentials should disable basic auth")
	}
	if len(cfg.ICS) != 1 || cfg.ICS[0].ID != "club" {
		t.Fatalf("ics sources = %+v", cfg.ICS)
	}

	exp := cfg.Expansion()
	if exp.HorizonDays != 30 || exp.MaxCandidates != recurrence.DefaultMaxCandidates {
		t.Fatalf("Expansion() = %+v", exp)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, false},
		{"bad cron", func(c *Config) { c.RefreshCron = "every minute" }, false},
		{"cap below horizon", func(c *Config) { c.HorizonDays = 1000; c.MaxCandidates = 1000 }, false},
		{"cap covers horizon", func(c *Config) { c.HorizonDays = 999; c.MaxCandidates = 1000 }, true},
		{"source without url", func(c *Config) { c.ICS = []ICSConfig{{ID: "a"}} }, false},
		{"duplicate source", func(c *Config) {
			c.ICS = []ICSConfig{{ID: "a", URL: "https://x"}, {ID: "a", URL: "https://y"}}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
