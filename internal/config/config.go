package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarConfig describes a single calendar subscription source.
type CalendarConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Enabled toggles the source without removing it from the config.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// TrustUTC disables the local-mislabeled-as-UTC correction for this
	// source. Some producers tag local wall-clock time as UTC; by default
	// UTC-tagged timestamps are reinterpreted as local wall-clock time.
	// Set TrustUTC for sources known to emit genuine UTC instants.
	TrustUTC bool `yaml:"trust_utc" json:"trust_utc"`
}

// IsEnabled treats a missing enabled field as enabled.
func (c CalendarConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
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

	// Timezone is the IANA timezone used as the reference zone all
	// event instants are normalized into (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used to prewarm the calendar fetch cache in the background.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CushionMinutes is the buffer inserted after every scheduled
	// timeline item before the next one may start.
	CushionMinutes int `yaml:"cushion_minutes" json:"cushion_minutes"`

	// DefaultTaskDurationMinutes sizes gap-scheduled tasks.
	DefaultTaskDurationMinutes int `yaml:"default_task_duration_minutes" json:"default_task_duration_minutes"`

	// TaskDB is the path of the SQLite task store.
	TaskDB string `yaml:"task_db" json:"task_db"`

	// Calendars is the list of subscribed calendar sources.
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                     "127.0.0.1:8090",
		Timezone:                   "Local",
		RefreshCron:                "*/15 * * * *",
		CushionMinutes:             5,
		DefaultTaskDurationMinutes: 30,
		TaskDB:                     "./var/dayplan.db",
		Calendars:                  []CalendarConfig{},
		BasicAuth:                  nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8090"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.CushionMinutes <= 0 {
		c.CushionMinutes = 5
	}
	if c.DefaultTaskDurationMinutes <= 0 {
		c.DefaultTaskDurationMinutes = 30
	}
	if c.TaskDB == "" {
		c.TaskDB = "./var/dayplan.db"
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
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

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".dayplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
