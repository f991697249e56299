package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/store"
)

// Sinks supported by the notify section.
const (
	SinkTelegram = "telegram"
	SinkLog      = "log"
)

// Config represents the application configuration file. Every field is
// optional; unset values fall back to DefaultSettings.
type Config struct {
	Poll   *PollOverrides   `yaml:"poll,omitempty" json:"poll,omitempty"`
	Store  *StoreOverrides  `yaml:"store,omitempty" json:"store,omitempty"`
	Server *ServerOverrides `yaml:"server,omitempty" json:"server,omitempty"`
	Log    *LogOverrides    `yaml:"log,omitempty" json:"log,omitempty"`
	Notify *NotifyOverrides `yaml:"notify,omitempty" json:"notify,omitempty"`
}

// PollOverrides tunes the poll loop and the GitHub client.
type PollOverrides struct {
	IntervalSeconds        *int     `yaml:"interval_seconds,omitempty" json:"interval_seconds,omitempty"`
	Workers                *int     `yaml:"workers,omitempty" json:"workers,omitempty"`
	PageSize               *int     `yaml:"page_size,omitempty" json:"page_size,omitempty"`
	RequestTimeoutSeconds  *int     `yaml:"request_timeout_seconds,omitempty" json:"request_timeout_seconds,omitempty"`
	RequestsPerSecond      *float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`
	Burst                  *int     `yaml:"burst,omitempty" json:"burst,omitempty"`
	AdvanceOnDispatchError *bool    `yaml:"advance_on_dispatch_error,omitempty" json:"advance_on_dispatch_error,omitempty"`
}

// StoreOverrides selects the record store.
type StoreOverrides struct {
	Driver     *string `yaml:"driver,omitempty" json:"driver,omitempty"`
	SQLitePath *string `yaml:"sqlite_path,omitempty" json:"sqlite_path,omitempty"`
}

// ServerOverrides configures the HTTP server.
type ServerOverrides struct {
	Addr      *string `yaml:"addr,omitempty" json:"addr,omitempty"`
	PublicURL *string `yaml:"public_url,omitempty" json:"public_url,omitempty"`
}

// LogOverrides configures logging.
type LogOverrides struct {
	Format *string `yaml:"format,omitempty" json:"format,omitempty"`
}

// NotifyOverrides configures notification delivery.
type NotifyOverrides struct {
	Sink          *string `yaml:"sink,omitempty" json:"sink,omitempty"`
	MaxTitleWidth *int    `yaml:"max_title_width,omitempty" json:"max_title_width,omitempty"`
}

// Settings is the fully resolved configuration.
type Settings struct {
	PollInterval           time.Duration
	Workers                int
	PageSize               int
	RequestTimeout         time.Duration
	RequestsPerSecond      float64
	Burst                  int
	AdvanceOnDispatchError bool

	StoreDriver string
	SQLitePath  string

	ServerAddr string
	// PublicURL is the externally reachable base URL, used for the OAuth
	// redirect. Empty disables the connect flow.
	PublicURL string

	LogFormat string

	Sink          string
	MaxTitleWidth int
}

// DefaultSettings returns the default settings
func DefaultSettings() Settings {
	return Settings{
		PollInterval:           constants.DefaultPollInterval,
		Workers:                constants.DefaultPollWorkers,
		PageSize:               constants.DefaultPageSize,
		RequestTimeout:         constants.DefaultRequestTimeout,
		RequestsPerSecond:      constants.DefaultRequestsPerSecond,
		Burst:                  constants.DefaultRequestBurst,
		AdvanceOnDispatchError: true,

		StoreDriver: store.DriverPostgres,
		SQLitePath:  filepath.Join(DefaultConfigDir(), "repopulse.db"),

		ServerAddr: ":8080",

		LogFormat: log.FormatAuto,

		Sink:          SinkTelegram,
		MaxTitleWidth: constants.DefaultMaxTitleWidth,
	}
}

// Settings returns settings with file overrides merged onto the defaults
func (c *Config) Settings() Settings {
	s := DefaultSettings()

	if p := c.Poll; p != nil {
		if p.IntervalSeconds != nil {
			s.PollInterval = time.Duration(*p.IntervalSeconds) * time.Second
		}
		if p.Workers != nil {
			s.Workers = *p.Workers
		}
		if p.PageSize != nil {
			s.PageSize = *p.PageSize
		}
		if p.RequestTimeoutSeconds != nil {
			s.RequestTimeout = time.Duration(*p.RequestTimeoutSeconds) * time.Second
		}
		if p.RequestsPerSecond != nil {
			s.RequestsPerSecond = *p.RequestsPerSecond
		}
		if p.Burst != nil {
			s.Burst = *p.Burst
		}
		if p.AdvanceOnDispatchError != nil {
			s.AdvanceOnDispatchError = *p.AdvanceOnDispatchError
		}
	}

	if st := c.Store; st != nil {
		if st.Driver != nil {
			s.StoreDriver = *st.Driver
		}
		if st.SQLitePath != nil {
			s.SQLitePath = *st.SQLitePath
		}
	}

	if sv := c.Server; sv != nil {
		if sv.Addr != nil {
			s.ServerAddr = *sv.Addr
		}
		if sv.PublicURL != nil {
			s.PublicURL = *sv.PublicURL
		}
	}

	if l := c.Log; l != nil && l.Format != nil {
		s.LogFormat = *l.Format
	}

	if n := c.Notify; n != nil {
		if n.Sink != nil {
			s.Sink = *n.Sink
		}
		if n.MaxTitleWidth != nil {
			s.MaxTitleWidth = *n.MaxTitleWidth
		}
	}

	return s
}

// Validate rejects settings the application cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if s.PollInterval <= 0 {
		errs = append(errs, errors.New("poll.interval_seconds must be positive"))
	}
	if s.Workers < 1 {
		errs = append(errs, errors.New("poll.workers must be at least 1"))
	}
	if s.PageSize < 1 || s.PageSize > constants.DefaultPageSize {
		errs = append(errs, fmt.Errorf("poll.page_size must be between 1 and %d", constants.DefaultPageSize))
	}
	if s.RequestTimeout <= 0 {
		errs = append(errs, errors.New("poll.request_timeout_seconds must be positive"))
	}
	switch s.StoreDriver {
	case store.DriverPostgres, store.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported (postgres, sqlite)", s.StoreDriver))
	}
	if s.StoreDriver == store.DriverSQLite && s.SQLitePath == "" {
		errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
	}
	switch s.LogFormat {
	case log.FormatAuto, log.FormatText, log.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not supported (auto, text, json)", s.LogFormat))
	}
	switch s.Sink {
	case SinkTelegram, SinkLog:
	default:
		errs = append(errs, fmt.Errorf("notify.sink %q is not supported (telegram, log)", s.Sink))
	}
	if s.MaxTitleWidth < 0 {
		errs = append(errs, errors.New("notify.max_title_width must not be negative"))
	}
	return errors.Join(errs...)
}

// DefaultConfigDir returns the default config directory
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ".repopulse"
	}
	return filepath.Join(configDir, "repopulse")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LocalConfigPath returns the path to the local config file in the current directory
func LocalConfigPath() string {
	return ".repopulse.yaml"
}

// Load loads the configuration from disk.
// It first loads the global config from XDG config directory, then merges
// any local .repopulse.yaml config on top (local values take precedence).
func Load() (*Config, error) {
	return LoadFrom(ConfigPath(), LocalConfigPath())
}

// LoadFrom loads and merges the config files at globalPath and localPath.
// Missing files are skipped.
func LoadFrom(globalPath, localPath string) (*Config, error) {
	cfg := &Config{}

	global, err := readConfig(globalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load global config file: %w", err)
	}
	if global != nil {
		cfg = global
	}

	local, err := readConfig(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load local config file: %w", err)
	}
	if local != nil {
		cfg = mergeConfig(cfg, local)
	}

	return cfg, nil
}

func readConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// mergeConfig merges local config on top of global config.
// Local values take precedence; unset local values preserve global values.
func mergeConfig(global, local *Config) *Config {
	return &Config{
		Poll:   mergePoll(global.Poll, local.Poll),
		Store:  mergeStore(global.Store, local.Store),
		Server: mergeServer(global.Server, local.Server),
		Log:    mergeLog(global.Log, local.Log),
		Notify: mergeNotify(global.Notify, local.Notify),
	}
}

// pick returns local when it is set.
func pick[T any](global, local *T) *T {
	if local != nil {
		return local
	}
	return global
}

func mergePoll(global, local *PollOverrides) *PollOverrides {
	if global == nil {
		return local
	}
	if local == nil {
		return global
	}
	return &PollOverrides{
		IntervalSeconds:        pick(global.IntervalSeconds, local.IntervalSeconds),
		Workers:                pick(global.Workers, local.Workers),
		PageSize:               pick(global.PageSize, local.PageSize),
		RequestTimeoutSeconds:  pick(global.RequestTimeoutSeconds, local.RequestTimeoutSeconds),
		RequestsPerSecond:      pick(global.RequestsPerSecond, local.RequestsPerSecond),
		Burst:                  pick(global.Burst, local.Burst),
		AdvanceOnDispatchError: pick(global.AdvanceOnDispatchError, local.AdvanceOnDispatchError),
	}
}

func mergeStore(global, local *StoreOverrides) *StoreOverrides {
	if global == nil {
		return local
	}
	if local == nil {
		return global
	}
	return &StoreOverrides{
		Driver:     pick(global.Driver, local.Driver),
		SQLitePath: pick(global.SQLitePath, local.SQLitePath),
	}
}

func mergeServer(global, local *ServerOverrides) *ServerOverrides {
	if global == nil {
		return local
	}
	if local == nil {
		return global
	}
	return &ServerOverrides{
		Addr:      pick(global.Addr, local.Addr),
		PublicURL: pick(global.PublicURL, local.PublicURL),
	}
}

func mergeLog(global, local *LogOverrides) *LogOverrides {
	if global == nil {
		return local
	}
	if local == nil {
		return global
	}
	return &LogOverrides{Format: pick(global.Format, local.Format)}
}

func mergeNotify(global, local *NotifyOverrides) *NotifyOverrides {
	if global == nil {
		return local
	}
	if local == nil {
		return global
	}
	return &NotifyOverrides{
		Sink:          pick(global.Sink, local.Sink),
		MaxTitleWidth: pick(global.MaxTitleWidth, local.MaxTitleWidth),
	}
}

// DefaultConfig returns a fully populated config with all default values.
// This is useful for generating a complete config file template.
func DefaultConfig() *Config {
	s := DefaultSettings()
	interval := int(s.PollInterval / time.Second)
	timeout := int(s.RequestTimeout / time.Second)

	return &Config{
		Poll: &PollOverrides{
			IntervalSeconds:        &interval,
			Workers:                &s.Workers,
			PageSize:               &s.PageSize,
			RequestTimeoutSeconds:  &timeout,
			RequestsPerSecond:      &s.RequestsPerSecond,
			Burst:                  &s.Burst,
			AdvanceOnDispatchError: &s.AdvanceOnDispatchError,
		},
		Store: &StoreOverrides{
			Driver:     &s.StoreDriver,
			SQLitePath: &s.SQLitePath,
		},
		Server: &ServerOverrides{
			Addr:      &s.ServerAddr,
			PublicURL: &s.PublicURL,
		},
		Log: &LogOverrides{Format: &s.LogFormat},
		Notify: &NotifyOverrides{
			Sink:          &s.Sink,
			MaxTitleWidth: &s.MaxTitleWidth,
		},
	}
}

// Resolved returns the config with every unset value filled from the defaults.
func (c *Config) Resolved() *Config {
	return mergeConfig(DefaultConfig(), c)
}

// ToYAML returns the config as a YAML string
func (c *Config) ToYAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// ConfigPathInfo contains information about config file paths
type ConfigPathInfo struct {
	GlobalPath   string
	GlobalExists bool
	LocalPath    string
	LocalExists  bool
}

// GetConfigPaths returns path info for both global and local configs
func GetConfigPaths() ConfigPathInfo {
	globalPath := ConfigPath()
	localPath := LocalConfigPath()

	// Get absolute path for local config
	absLocalPath, err := filepath.Abs(localPath)
	if err != nil {
		absLocalPath = localPath
	}

	_, globalErr := os.Stat(globalPath)
	_, localErr := os.Stat(localPath)

	return ConfigPathInfo{
		GlobalPath:   globalPath,
		GlobalExists: globalErr == nil,
		LocalPath:    absLocalPath,
		LocalExists:  localErr == nil,
	}
}

// MinimalConfig returns a minimal config template with comments
func MinimalConfig() string {
	return `# repopulse configuration file
# See: repopulse config defaults  (for all available options)
# Secrets (GITHUB_TOKEN, DATABASE_URL, TELEGRAM_BOT_TOKEN, ...) are read
# from the environment or a .env file, never from this file.

poll:
  interval_seconds: 60
  workers: 4

# Use an embedded database instead of PostgreSQL
# store:
#   driver: sqlite
#   sqlite_path: ./repopulse.db

# Externally reachable URL, required for "repopulse connect"
# server:
#   addr: ":8080"
#   public_url: https://pulse.example.com

# Print notifications instead of sending them to Telegram
# notify:
#   sink: log
`
}

// SaveTo writes content to a specific path, creating directories as needed
func SaveTo(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}
