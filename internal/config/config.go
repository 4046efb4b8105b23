package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v4"
)

// ErrNotFound is returned by Find when no config file exists on the search path.
var ErrNotFound = errors.New("no config file found")

// Config is the top-level application configuration.
type Config struct {
	LogLevel                 string    `yaml:"log_level"`
	LogFile                  string    `yaml:"log_file,omitempty"`
	IdleTimeoutSeconds       int       `yaml:"idle_timeout"`
	ReconnectIntervalSeconds int       `yaml:"reconnect_interval"`
	DebounceSeconds          int       `yaml:"debounce_seconds"`
	WebhookURL               string    `yaml:"webhook_url"`
	WebhookToken             string    `yaml:"webhook_token"`
	WebhookMode              string    `yaml:"webhook_mode,omitempty"`
	DesktopNotify            bool      `yaml:"desktop_notify,omitempty"`
	KeyringService           string    `yaml:"keyring_service,omitempty"`
	Services                 []Service `yaml:"services,omitempty"`
	Accounts                 []Account `yaml:"accounts"`
}

// Account describes one monitored mailbox.
type Account struct {
	Name                string `yaml:"name,omitempty"`
	Protocol            string `yaml:"protocol,omitempty"` // "imap" (default) or "pop3"
	Host                string `yaml:"host"`
	Port                int    `yaml:"port,omitempty"`
	Username            string `yaml:"username"`
	Password            string `yaml:"password,omitempty"`
	UseTLS              *bool  `yaml:"ssl,omitempty"`
	PollIntervalSeconds int    `yaml:"poll_interval,omitempty"`
}

// Service describes a well-known notification sender whose mails are
// summarised instead of shown as plain email.
type Service struct {
	Name           string   `yaml:"name"`
	Icon           string   `yaml:"icon,omitempty"`
	Senders        []string `yaml:"senders"`
	MentionMarkers []string `yaml:"mention_markers,omitempty"`
}

// IdleTimeout returns how long a monitor waits in IDLE before re-probing.
func (c *Config) IdleTimeout() time.Duration {
	if c.IdleTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// ReconnectInterval returns how long a connection may sit in IDLE before a
// keep-alive refresh.
func (c *Config) ReconnectInterval() time.Duration {
	if c.ReconnectIntervalSeconds <= 0 {
		return 900 * time.Second
	}
	return time.Duration(c.ReconnectIntervalSeconds) * time.Second
}

// Debounce returns the quiet window after which buffered events are flushed.
func (c *Config) Debounce() time.Duration {
	if c.DebounceSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DebounceSeconds) * time.Second
}

// GetWebhookMode returns the default dispatch mode, "now" unless configured.
func (c *Config) GetWebhookMode() string {
	if c.WebhookMode == "" {
		return "now"
	}
	return c.WebhookMode
}

// GetKeyringService returns the keyring service name credentials live under.
func (c *Config) GetKeyringService() string {
	if c.KeyringService == "" {
		return "mailwake"
	}
	return c.KeyringService
}

// GetServices returns the configured recognized services, or the GitHub
// default when none are set.
func (c *Config) GetServices() []Service {
	if len(c.Services) > 0 {
		return c.Services
	}
	return []Service{DefaultGitHubService()}
}

// DefaultGitHubService is the built-in recognized service.
func DefaultGitHubService() Service {
	return Service{
		Name:    "GitHub",
		Icon:    "🐙",
		Senders: []string{"notifications@github.com", "noreply@github.com"},
		MentionMarkers: []string{
			"you were mentioned",
			"mentioned you",
		},
	}
}

// Identity returns the unique key of the account, its login name.
func (a *Account) Identity() string {
	return a.Username
}

// Label returns the display name of the account, defaulting to its identity.
func (a *Account) Label() string {
	if a.Name == "" {
		return a.Username
	}
	return a.Name
}

// GetProtocol returns the mailbox protocol, defaulting to "imap".
func (a *Account) GetProtocol() string {
	if a.Protocol == "" {
		return "imap"
	}
	return a.Protocol
}

// Secure reports whether the connection uses implicit TLS. Defaults to true.
func (a *Account) Secure() bool {
	if a.UseTLS == nil {
		return true
	}
	return *a.UseTLS
}

// GetPort returns the configured port or the protocol's well-known one.
func (a *Account) GetPort() int {
	if a.Port > 0 {
		return a.Port
	}
	switch {
	case a.GetProtocol() == "pop3" && a.Secure():
		return 995
	case a.GetProtocol() == "pop3":
		return 110
	case a.Secure():
		return 993
	default:
		return 143
	}
}

// PollInterval returns how often a POP3 account is checked, defaulting to 60s.
func (a *Account) PollInterval() time.Duration {
	if a.PollIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(a.PollIntervalSeconds) * time.Second
}

// Load reads and parses a configuration file. JSON files are accepted too.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{
		LogLevel: "info",
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories. The file
// may hold credentials so it is written owner-only.
func Save(path string, cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// SearchPaths lists the locations Find looks at, in order.
func SearchPaths(home string) []string {
	return []string{
		filepath.Join(home, ".config", "mailwake", "config.yaml"),
		filepath.Join(home, ".openclaw", "imap-idle.json"),
		filepath.Join(home, ".config", "imap-idle", "config.json"),
	}
}

// Find returns the first existing file from SearchPaths.
func Find(home string) (string, error) {
	for _, p := range SearchPaths(home) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNotFound
}

func (c *Config) validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	seen := make(map[string]struct{}, len(c.Accounts))
	for i, a := range c.Accounts {
		label := a.Label()
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if p := a.GetProtocol(); p != "pop3" && p != "imap" {
			return fmt.Errorf("account %s: protocol must be pop3 or imap", label)
		}
		if a.Host == "" {
			return fmt.Errorf("account %s: host is required", label)
		}
		if a.Username == "" {
			return fmt.Errorf("account %s: username is required", label)
		}
		if _, dup := seen[a.Username]; dup {
			return fmt.Errorf("account %s: duplicate username %q", label, a.Username)
		}
		seen[a.Username] = struct{}{}
	}
	for _, s := range c.Services {
		if s.Name == "" || len(s.Senders) == 0 {
			return fmt.Errorf("service entries need a name and at least one sender")
		}
	}
	return nil
}
