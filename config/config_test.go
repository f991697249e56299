package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spiffcs/repopulse/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"PollInterval", s.PollInterval, 60 * time.Second},
		{"Workers", s.Workers, 4},
		{"PageSize", s.PageSize, 100},
		{"RequestTimeout", s.RequestTimeout, 30 * time.Second},
		{"RequestsPerSecond", s.RequestsPerSecond, 1.0},
		{"Burst", s.Burst, 5},
		{"AdvanceOnDispatchError", s.AdvanceOnDispatchError, true},
		{"StoreDriver", s.StoreDriver, store.DriverPostgres},
		{"ServerAddr", s.ServerAddr, ":8080"},
		{"LogFormat", s.LogFormat, "auto"},
		{"Sink", s.Sink, SinkTelegram},
		{"MaxTitleWidth", s.MaxTitleWidth, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("DefaultSettings().%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if err := s.Validate(); err != nil {
		t.Errorf("DefaultSettings().Validate() error: %v", err)
	}
}

func TestSettingsOverrides(t *testing.T) {
	interval := 15
	advance := false
	driver := store.DriverSQLite
	path := "/tmp/pulse.db"
	cfg := &Config{
		Poll:  &PollOverrides{IntervalSeconds: &interval, AdvanceOnDispatchError: &advance},
		Store: &StoreOverrides{Driver: &driver, SQLitePath: &path},
	}
	s := cfg.Settings()

	if s.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %v, want 15s", s.PollInterval)
	}
	if s.AdvanceOnDispatchError {
		t.Error("AdvanceOnDispatchError = true, want false")
	}
	if s.StoreDriver != store.DriverSQLite || s.SQLitePath != path {
		t.Errorf("store = %q %q", s.StoreDriver, s.SQLitePath)
	}
	// Untouched values keep their defaults.
	if s.Workers != 4 || s.Sink != SinkTelegram {
		t.Errorf("defaults lost: workers=%d sink=%q", s.Workers, s.Sink)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"zero interval", func(s *Settings) { s.PollInterval = 0 }, "interval_seconds"},
		{"no workers", func(s *Settings) { s.Workers = 0 }, "workers"},
		{"page size too large", func(s *Settings) { s.PageSize = 101 }, "page_size"},
		{"unknown driver", func(s *Settings) { s.StoreDriver = "mysql" }, "store.driver"},
		{"sqlite without path", func(s *Settings) { s.StoreDriver = store.DriverSQLite; s.SQLitePath = "" }, "sqlite_path"},
		{"unknown log format", func(s *Settings) { s.LogFormat = "xml" }, "log.format"},
		{"unknown sink", func(s *Settings) { s.Sink = "slack" }, "notify.sink"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.yaml", `
poll:
  interval_seconds: 30
  workers: 8
notify:
  sink: log
`)
	local := writeFile(t, dir, "local.yaml", `
poll:
  workers: 2
store:
  driver: sqlite
`)

	t.Run("local wins over global", func(t *testing.T) {
		cfg, err := LoadFrom(global, local)
		if err != nil {
			t.Fatalf("LoadFrom() error: %v", err)
		}
		s := cfg.Settings()
		if s.PollInterval != 30*time.Second {
			t.Errorf("PollInterval = %v, want 30s from global", s.PollInterval)
		}
		if s.Workers != 2 {
			t.Errorf("Workers = %d, want 2 from local", s.Workers)
		}
		if s.Sink != SinkLog {
			t.Errorf("Sink = %q, want log from global", s.Sink)
		}
		if s.StoreDriver != store.DriverSQLite {
			t.Errorf("StoreDriver = %q, want sqlite from local", s.StoreDriver)
		}
	})

	t.Run("missing files", func(t *testing.T) {
		cfg, err := LoadFrom(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "nope2.yaml"))
		if err != nil {
			t.Fatalf("LoadFrom() error: %v", err)
		}
		if cfg.Settings() != DefaultSettings() {
			t.Errorf("Settings() = %+v, want defaults", cfg.Settings())
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		bad := writeFile(t, dir, "bad.yaml", "poll: [")
		if _, err := LoadFrom(bad, local); err == nil {
			t.Error("LoadFrom() expected error for invalid yaml")
		}
	})
}

func TestDefaultConfigRoundTrip(t *testing.T) {
	out, err := DefaultConfig().ToYAML()
	if err != nil {
		t.Fatalf("ToYAML() error: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("defaults do not parse: %v", err)
	}
	if cfg.Settings() != DefaultSettings() {
		t.Errorf("Settings() from defaults = %+v, want %+v", cfg.Settings(), DefaultSettings())
	}
}

func TestMinimalConfigParses(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(MinimalConfig()), &cfg); err != nil {
		t.Fatalf("MinimalConfig() does not parse: %v", err)
	}
	if err := cfg.Settings().Validate(); err != nil {
		t.Errorf("MinimalConfig() settings invalid: %v", err)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveTo(path, "poll: {}\n"); err != nil {
		t.Fatalf("SaveTo() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "poll: {}\n" {
		t.Errorf("file content = %q, %v", data, err)
	}
}

func TestResolved(t *testing.T) {
	workers := 9
	cfg := (&Config{Poll: &PollOverrides{Workers: &workers}}).Resolved()

	if cfg.Poll == nil || cfg.Poll.Workers == nil || *cfg.Poll.Workers != 9 {
		t.Fatalf("Resolved() lost the override: %+v", cfg.Poll)
	}
	if cfg.Poll.IntervalSeconds == nil || *cfg.Poll.IntervalSeconds != 60 {
		t.Errorf("Resolved() interval = %v, want 60", cfg.Poll.IntervalSeconds)
	}
	if cfg.Notify == nil || cfg.Notify.Sink == nil || *cfg.Notify.Sink != SinkTelegram {
		t.Errorf("Resolved() notify = %+v", cfg.Notify)
	}
}
