// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Themes accepted by ui.theme. "auto" asks the terminal.
var Themes = []string{"auto", "dark", "light"}

// Config is the master configuration for Lifeline.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Root is the base directory for Lifeline data. Available to
	// other path fields as ${LIFELINE_ROOT}.
	Root string `yaml:"root"`

	Feed    FeedConfig    `yaml:"feed"`
	Session SessionConfig `yaml:"session"`
	Cache   CacheConfig   `yaml:"cache"`
	Account AccountConfig `yaml:"account"`
	Server  ServerConfig  `yaml:"server"`
	UI      UIConfig      `yaml:"ui"`

	// Per-environment overrides, applied after the base config loads.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields an environment section may replace.
// Only non-zero values take effect.
type Overrides struct {
	Feed    *FeedConfig    `yaml:"feed,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Cache   *CacheConfig   `yaml:"cache,omitempty"`
	Account *AccountConfig `yaml:"account,omitempty"`
	Server  *ServerConfig  `yaml:"server,omitempty"`
	UI      *UIConfig      `yaml:"ui,omitempty"`
}

// FeedConfig tells clients how to reach the feed service.
type FeedConfig struct {
	// URL is the WebSocket endpoint.
	// Default: ws://127.0.0.1:8470/v1/feed
	URL string `yaml:"url"`

	// Email is the identity the CLI signs in with.
	Email string `yaml:"email"`

	DialTimeout    time.Duration `yaml:"dial_timeout"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// SessionConfig configures sync sessions.
type SessionConfig struct {
	// MutationTimeout bounds the wait for a write or delete to be
	// confirmed. Zero selects the default; negative disables.
	// Default: 15s
	MutationTimeout time.Duration `yaml:"mutation_timeout"`
}

// CacheConfig configures the offline snapshot cache.
type CacheConfig struct {
	// Enabled is a pointer so an environment section can turn the
	// cache off.
	Enabled   *bool  `yaml:"enabled,omitempty"`
	Directory string `yaml:"directory"`
}

// On reports whether the cache is enabled.
func (c CacheConfig) On() bool {
	return c.Enabled == nil || *c.Enabled
}

// AccountConfig configures role assignment.
type AccountConfig struct {
	// AdminEmails sign in with the admin role.
	AdminEmails []string `yaml:"admin_emails"`
}

// ServerConfig configures lifeline-feed-service.
type ServerConfig struct {
	// ListenAddress is the HTTP listen address.
	// Default: 127.0.0.1:8470
	ListenAddress string `yaml:"listen_address"`

	// Database is the SQLite file holding the collections.
	Database string `yaml:"database"`

	// WriteLimit is the per-connection write and delete rate per
	// second. Zero means unlimited.
	WriteLimit float64 `yaml:"write_limit"`
	WriteBurst int     `yaml:"write_burst"`

	// SeedFile is a JSONC export imported into an empty database.
	SeedFile string `yaml:"seed_file"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UIConfig configures the terminal screens.
type UIConfig struct {
	// Theme is one of Themes. Default: auto
	Theme string `yaml:"theme"`
}

// Default returns the development configuration used as the base
// before a file is loaded.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "lifeline")

	return &Config{
		Environment: Development,
		Root:        defaultRoot,
		Feed: FeedConfig{
			URL:            "ws://127.0.0.1:8470/v1/feed",
			DialTimeout:    5 * time.Second,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			PingInterval:   20 * time.Second,
		},
		Session: SessionConfig{
			MutationTimeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			Directory: filepath.Join(defaultRoot, "snapshots"),
		},
		Server: ServerConfig{
			ListenAddress:   "127.0.0.1:8470",
			Database:        filepath.Join(defaultRoot, "feed.db"),
			WriteLimit:      20,
			WriteBurst:      40,
			ShutdownTimeout: 10 * time.Second,
		},
		UI: UIConfig{Theme: "auto"},
	}
}

// Load loads configuration from the file named by LIFELINE_CONFIG. It
// fails when the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("LIFELINE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("LIFELINE_CONFIG environment variable not set; " +
			"set it to the path of your lifeline.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg.finish()
}

// Resolve loads path when it is set, else the file named by
// LIFELINE_CONFIG, else the defaults. Expansion and environment
// overrides apply in every case.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv("LIFELINE_CONFIG") != "" {
		return Load()
	}
	return Default().finish()
}

func (c *Config) finish() (*Config, error) {
	c.applyEnvironmentOverrides()
	c.expandVariables()
	if err := c.applyEnvironmentVariables(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFile loads a single configuration file, merging into the current
// config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if feed := overrides.Feed; feed != nil {
		setString(&c.Feed.URL, feed.URL)
		setString(&c.Feed.Email, feed.Email)
		setDuration(&c.Feed.DialTimeout, feed.DialTimeout)
		setDuration(&c.Feed.InitialBackoff, feed.InitialBackoff)
		setDuration(&c.Feed.MaxBackoff, feed.MaxBackoff)
		setDuration(&c.Feed.PingInterval, feed.PingInterval)
	}
	if overrides.Session != nil {
		setDuration(&c.Session.MutationTimeout, overrides.Session.MutationTimeout)
	}
	if cache := overrides.Cache; cache != nil {
		if cache.Enabled != nil {
			c.Cache.Enabled = cache.Enabled
		}
		setString(&c.Cache.Directory, cache.Directory)
	}
	if overrides.Account != nil && len(overrides.Account.AdminEmails) > 0 {
		c.Account.AdminEmails = overrides.Account.AdminEmails
	}
	if server := overrides.Server; server != nil {
		setString(&c.Server.ListenAddress, server.ListenAddress)
		setString(&c.Server.Database, server.Database)
		setString(&c.Server.SeedFile, server.SeedFile)
		if server.WriteLimit != 0 {
			c.Server.WriteLimit = server.WriteLimit
		}
		if server.WriteBurst != 0 {
			c.Server.WriteBurst = server.WriteBurst
		}
		setDuration(&c.Server.ShutdownTimeout, server.ShutdownTimeout)
	}
	if overrides.UI != nil {
		setString(&c.UI.Theme, overrides.UI.Theme)
	}
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setDuration(target *time.Duration, value time.Duration) {
	if value != 0 {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"LIFELINE_ROOT": c.Root,
		"HOME":          os.Getenv("HOME"),
	}
	c.Root = expandVars(c.Root, vars)
	vars["LIFELINE_ROOT"] = c.Root

	c.Cache.Directory = expandVars(c.Cache.Directory, vars)
	c.Server.Database = expandVars(c.Server.Database, vars)
	c.Server.SeedFile = expandVars(c.Server.SeedFile, vars)
	c.Feed.URL = expandVars(c.Feed.URL, vars)
	c.Feed.Email = expandVars(c.Feed.Email, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// EnvironmentVariables lists the variables that override single
// settings, applied after the file and its environment section.
var EnvironmentVariables = []string{
	"LIFELINE_ENVIRONMENT",
	"LIFELINE_FEED_URL",
	"LIFELINE_EMAIL",
	"LIFELINE_MUTATION_TIMEOUT",
	"LIFELINE_CACHE_DIR",
	"LIFELINE_CACHE_ENABLED",
	"LIFELINE_ADMIN_EMAILS",
	"LIFELINE_LISTEN_ADDRESS",
	"LIFELINE_DATABASE",
	"LIFELINE_THEME",
}

func (c *Config) applyEnvironmentVariables() error {
	var errs []error
	lookup := func(name string, apply func(string) error) {
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			return
		}
		if err := apply(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	text := func(target *string) func(string) error {
		return func(value string) error { *target = value; return nil }
	}

	lookup("LIFELINE_ENVIRONMENT", func(value string) error {
		c.Environment = Environment(value)
		return nil
	})
	lookup("LIFELINE_FEED_URL", text(&c.Feed.URL))
	lookup("LIFELINE_EMAIL", text(&c.Feed.Email))
	lookup("LIFELINE_MUTATION_TIMEOUT", func(value string) error {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		c.Session.MutationTimeout = timeout
		return nil
	})
	lookup("LIFELINE_CACHE_DIR", text(&c.Cache.Directory))
	lookup("LIFELINE_CACHE_ENABLED", func(value string) error {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.Cache.Enabled = &enabled
		return nil
	})
	lookup("LIFELINE_ADMIN_EMAILS", func(value string) error {
		var emails []string
		for email := range strings.SplitSeq(value, ",") {
			if email = strings.TrimSpace(email); email != "" {
				emails = append(emails, email)
			}
		}
		c.Account.AdminEmails = emails
		return nil
	})
	lookup("LIFELINE_LISTEN_ADDRESS", text(&c.Server.ListenAddress))
	lookup("LIFELINE_DATABASE", text(&c.Server.Database))
	lookup("LIFELINE_THEME", text(&c.UI.Theme))

	return errors.Join(errs...)
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	feedURL, err := url.Parse(c.Feed.URL)
	switch {
	case c.Feed.URL == "":
		errs = append(errs, fmt.Errorf("feed.url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("feed.url: %w", err))
	case feedURL.Scheme != "ws" && feedURL.Scheme != "wss":
		errs = append(errs, fmt.Errorf("feed.url must use ws:// or wss://, got %q", c.Feed.URL))
	case c.Environment == Production && feedURL.Scheme != "wss":
		errs = append(errs, fmt.Errorf("feed.url must use wss:// in production"))
	}

	if c.Feed.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("feed.dial_timeout must be positive"))
	}
	if c.Feed.InitialBackoff <= 0 || c.Feed.MaxBackoff < c.Feed.InitialBackoff {
		errs = append(errs, fmt.Errorf("feed backoff must satisfy 0 < initial_backoff <= max_backoff"))
	}

	if c.Cache.On() && c.Cache.Directory == "" {
		errs = append(errs, fmt.Errorf("cache.directory is required when the cache is enabled"))
	}

	for _, email := range c.Account.AdminEmails {
		if !strings.Contains(email, "@") {
			errs = append(errs, fmt.Errorf("account.admin_emails: %q is not an email address", email))
		}
	}

	if c.Server.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("server.listen_address is required"))
	}
	if c.Server.Database == "" {
		errs = append(errs, fmt.Errorf("server.database is required"))
	}
	if c.Server.WriteLimit < 0 {
		errs = append(errs, fmt.Errorf("server.write_limit must not be negative"))
	}
	if c.Server.WriteLimit > 0 && c.Server.WriteBurst < 1 {
		errs = append(errs, fmt.Errorf("server.write_burst must be at least 1 when write_limit is set"))
	}

	if !slices.Contains(Themes, c.UI.Theme) {
		errs = append(errs, fmt.Errorf("ui.theme must be one of: %v", Themes))
	}

	return errors.Join(errs...)
}

// EnsureDirectories creates the directories the configuration names.
func (c *Config) EnsureDirectories() error {
	directories := []string{c.Root, filepath.Dir(c.Server.Database)}
	if c.Cache.On() {
		directories = append(directories, c.Cache.Directory)
	}
	for _, directory := range directories {
		if directory == "" || directory == "." {
			continue
		}
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", directory, err)
		}
	}
	return nil
}
