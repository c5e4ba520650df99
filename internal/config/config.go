// Package config handles configuration loading for the bot runtime:
// the ops dashboard listener, each platform adapter, the conversation
// demultiplexer's tuning knobs, and the session audit ledger.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order. An explicit
// path (from the -config flag) is checked first. Then: ./config.yaml,
// ~/.config/canoe-go/config.yaml, the container convention
// /config/config.yaml, and /etc/canoe-go/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "canoe-go", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/canoe-go/config.yaml")
	return paths
}

// searchPathsFunc is indirected so tests can substitute a search path
// list that doesn't depend on the developer's or CI machine's real
// filesystem.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches searchPathsFunc() and returns the first
// that exists. Returns the path found, or an error if nothing was
// found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds the full runtime configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Signal      SignalConfig      `yaml:"signal"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Email       EmailConfig       `yaml:"email"`
	ContactBook ContactBookConfig `yaml:"contact_book"`
	Incident    IncidentConfig    `yaml:"incident"`
	Demux       DemuxConfig       `yaml:"demux"`
	SessionLog  SessionLogConfig  `yaml:"session_log"`
	DataDir     string            `yaml:"data_dir"`
	LogLevel    string            `yaml:"log_level"`
}

// ListenConfig defines the ops dashboard's HTTP/WebSocket listener.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
	// BasicAuthUser and BasicAuthPasswordHash gate the dashboard behind
	// HTTP basic auth when both are set. PasswordHash is a bcrypt hash,
	// never a plaintext password.
	BasicAuthUser         string `yaml:"basic_auth_user"`
	BasicAuthPasswordHash string `yaml:"basic_auth_password_hash"`
}

// RequiresAuth reports whether the dashboard listener has basic auth
// configured.
func (c ListenConfig) RequiresAuth() bool {
	return c.BasicAuthUser != "" && c.BasicAuthPasswordHash != ""
}

// SignalConfig configures the Signal platform adapter, backed by
// signal-cli in JSON-RPC mode.
type SignalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	AccountNumber string `yaml:"account_number"`
	SignalCLIPath string `yaml:"signal_cli_path"`
	// LinkDeviceName is the device name offered during first-run QR
	// device linking, when AccountNumber is not yet registered locally.
	LinkDeviceName string `yaml:"link_device_name"`
}

// Configured reports whether enough Signal settings are present to
// start the adapter.
func (c SignalConfig) Configured() bool {
	return c.Enabled && c.AccountNumber != ""
}

// MQTTConfig configures the MQTT platform adapter.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Configured reports whether enough MQTT settings are present to start
// the adapter.
func (c MQTTConfig) Configured() bool {
	return c.Enabled && c.BrokerURL != ""
}

// EmailConfig configures the email platform adapter (IMAP polling plus
// SMTP replies).
type EmailConfig struct {
	Enabled         bool   `yaml:"enabled"`
	IMAPHost        string `yaml:"imap_host"`
	IMAPPort        int    `yaml:"imap_port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Mailbox         string `yaml:"mailbox"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`

	// SMTPHost defaults to IMAPHost when unset — most providers run
	// IMAP and SMTP on the same mail domain.
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	// StartTLS selects STARTTLS (plain connect, then upgrade) over
	// implicit TLS (connect already encrypted). Implicit TLS is the
	// default, matching SMTPPort 465.
	StartTLS bool `yaml:"start_tls"`
	// DefaultFrom is the address replies are sent From. Defaults to
	// Username.
	DefaultFrom string `yaml:"default_from"`
}

// Configured reports whether enough email settings are present to
// start the adapter.
func (c EmailConfig) Configured() bool {
	return c.Enabled && c.IMAPHost != "" && c.Username != ""
}

// ContactBookConfig configures CardDAV-backed contact resolution.
type ContactBookConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CardDAVURL string `yaml:"carddav_url"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
}

// Configured reports whether enough CardDAV settings are present to
// start contact resolution.
func (c ContactBookConfig) Configured() bool {
	return c.Enabled && c.CardDAVURL != ""
}

// IncidentConfig configures incident reporting via GitHub issue
// comments.
type IncidentConfig struct {
	Enabled     bool   `yaml:"enabled"`
	GithubToken string `yaml:"github_token"`
	Owner       string `yaml:"owner"`
	Repo        string `yaml:"repo"`
	IssueNumber int    `yaml:"issue_number"`
}

// Configured reports whether enough GitHub settings are present to
// file incidents.
func (c IncidentConfig) Configured() bool {
	return c.Enabled && c.GithubToken != "" && c.Owner != "" && c.Repo != "" && c.IssueNumber > 0
}

// DemuxConfig tunes the conversation demultiplexer.
type DemuxConfig struct {
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"` // 0 = unlimited
	IdleTimeoutSec     int `yaml:"idle_timeout_sec"`      // 0 disables idle eviction
}

// SessionLogConfig configures the append-only session audit ledger.
type SessionLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}, ${SIGNAL_ACCOUNT}).
	// This is a convenience for container deployments; the recommended
	// approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Signal.SignalCLIPath == "" {
		c.Signal.SignalCLIPath = "signal-cli"
	}
	if c.Signal.LinkDeviceName == "" {
		c.Signal.LinkDeviceName = "canoe-go"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "canoe-go"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "canoe"
	}
	if c.Email.IMAPPort == 0 {
		c.Email.IMAPPort = 993
	}
	if c.Email.Mailbox == "" {
		c.Email.Mailbox = "INBOX"
	}
	if c.Email.PollIntervalSec == 0 {
		c.Email.PollIntervalSec = 60
	}
	if c.Email.SMTPHost == "" {
		c.Email.SMTPHost = c.Email.IMAPHost
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 465
	}
	if c.Email.DefaultFrom == "" {
		c.Email.DefaultFrom = c.Email.Username
	}
	if c.SessionLog.Path == "" {
		c.SessionLog.Path = filepath.Join(c.DataDir, "sessions.db")
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.Email.Enabled && (c.Email.IMAPPort < 1 || c.Email.IMAPPort > 65535) {
		return fmt.Errorf("email.imap_port %d out of range (1-65535)", c.Email.IMAPPort)
	}
	if c.Demux.RateLimitPerMinute < 0 {
		return fmt.Errorf("demux.rate_limit_per_minute %d must not be negative", c.Demux.RateLimitPerMinute)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration with no platform adapters
// enabled, suitable as a starting point for local development.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
