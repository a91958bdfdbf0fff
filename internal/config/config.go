package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"skolcal/internal/fsutil"
)

// Defaults shared with the CLI flag definitions.
const (
	DefaultUnit     = "Yrgo Lärdomsgatan"
	DefaultHost     = "studiumyrgo.skola24.se"
	DefaultFilename = "calendar.ics"
	DefaultAPIBase  = "https://web.skola24.se"
	DefaultScope    = "8a22163c-8662-4535-9050-bc5e1923df48"
)

// Config is the top-level application configuration.
type Config struct {
	// Unit is the Skola24 unitId of the school, e.g. "Yrgo Lärdomsgatan".
	Unit string `yaml:"unit"`
	// Host is the school's Skola24 host name.
	Host string `yaml:"host"`
	// Filename is where the generated .ics is written.
	Filename string `yaml:"filename"`

	// APIBase is the vendor endpoint root. Only tests point this elsewhere.
	APIBase string `yaml:"api_base"`
	// Scope is sent as the X-Scope header on every vendor request.
	Scope string `yaml:"scope"`

	// SourceTimezone is the civil zone lesson times are published in.
	SourceTimezone string `yaml:"source_timezone"`
	// DisplayTimezone is the zone used by the CSV export.
	DisplayTimezone string `yaml:"display_timezone"`

	// RequestInterval is the minimum pause before each week's vendor calls.
	RequestInterval time.Duration `yaml:"request_interval"`
	// HTTPTimeout bounds a single vendor request.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// TrackSchoolYears enables the active school year lookup that newer
	// vendor versions require for timetable renders.
	TrackSchoolYears bool `yaml:"track_school_years"`

	// UIDDomain is appended to every VEVENT UID.
	UIDDomain string `yaml:"uid_domain"`

	// RefreshCron is the cron schedule used by watch mode.
	RefreshCron string `yaml:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Unit:             DefaultUnit,
		Host:             DefaultHost,
		Filename:         DefaultFilename,
		APIBase:          DefaultAPIBase,
		Scope:            DefaultScope,
		SourceTimezone:   "Europe/Stockholm",
		DisplayTimezone:  "Europe/Berlin",
		RequestInterval:  500 * time.Millisecond,
		HTTPTimeout:      15 * time.Second,
		TrackSchoolYears: true,
		UIDDomain:        "stc",
		RefreshCron:      "0 6 * * *",
		LogLevel:         "info",
	}
}

// Normalize fills in missing/zero values so partially-filled files still work.
// TrackSchoolYears is left as written since false is a meaningful choice.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Unit == "" {
		c.Unit = d.Unit
	}
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Filename == "" {
		c.Filename = d.Filename
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	if c.APIBase == "" {
		c.APIBase = d.APIBase
	}
	if c.Scope == "" {
		c.Scope = d.Scope
	}
	if c.SourceTimezone == "" {
		c.SourceTimezone = d.SourceTimezone
	}
	if c.DisplayTimezone == "" {
		c.DisplayTimezone = d.DisplayTimezone
	}
	// Never pace vendor requests faster than the default.
	if c.RequestInterval < d.RequestInterval {
		c.RequestInterval = d.RequestInterval
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
	if c.UIDDomain == "" {
		c.UIDDomain = d.UIDDomain
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Load loads configuration from the given YAML path and applies environment
// overrides.
//
// Behavior:
//   - An empty path means defaults only.
//   - If the file does not exist, a default config is written there with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshaled on top of the defaults and normalized.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are not overwritten and a missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides fields from SKOLCAL_* environment variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"SKOLCAL_UNIT":             &c.Unit,
		"SKOLCAL_HOST":             &c.Host,
		"SKOLCAL_FILENAME":         &c.Filename,
		"SKOLCAL_API_BASE":         &c.APIBase,
		"SKOLCAL_SCOPE":            &c.Scope,
		"SKOLCAL_SOURCE_TIMEZONE":  &c.SourceTimezone,
		"SKOLCAL_DISPLAY_TIMEZONE": &c.DisplayTimezone,
		"SKOLCAL_UID_DOMAIN":       &c.UIDDomain,
		"SKOLCAL_REFRESH":          &c.RefreshCron,
		"SKOLCAL_LOG_LEVEL":        &c.LogLevel,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	invalid := make([]string, 0, 3)

	durations := map[string]*time.Duration{
		"SKOLCAL_REQUEST_INTERVAL": &c.RequestInterval,
		"SKOLCAL_HTTP_TIMEOUT":     &c.HTTPTimeout,
	}
	for key, dst := range durations {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, key)
			continue
		}
		*dst = d
	}

	if v := strings.TrimSpace(os.Getenv("SKOLCAL_TRACK_SCHOOL_YEARS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			invalid = append(invalid, "SKOLCAL_TRACK_SCHOOL_YEARS")
		} else {
			c.TrackSchoolYears = b
		}
	}

	if len(invalid) > 0 {
		slices.Sort(invalid)
		return fmt.Errorf("config: invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Save normalizes cfg and writes it as YAML with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fsutil.WriteFile(path, data, 0o600)
}
