package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AccountConfig holds the connection settings for a single IMAP account.
// It is read once at startup and never mutated.
type AccountConfig struct {
	// ID is the account identity, defaulting to Username when empty.
	ID string `mapstructure:"id" yaml:"id"`

	// Host is the IMAP server hostname.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the IMAP server port (defaults to 993 for TLS).
	Port int `mapstructure:"port" yaml:"port"`

	// Username is the mailbox user.
	Username string `mapstructure:"username" yaml:"username"`

	// Password is the mailbox secret. When empty, the system keyring is
	// consulted under the account's credential key.
	Password string `mapstructure:"password" yaml:"password"`

	// TLS selects implicit TLS; when false the connection upgrades via
	// STARTTLS.
	TLS bool `mapstructure:"tls" yaml:"tls"`
}

// Validate reports whether the account carries everything needed to open
// a connection. Incomplete accounts are skipped by the supervisor, not
// fatal.
func (a AccountConfig) Validate() error {
	var missing []string
	if a.Host == "" {
		missing = append(missing, "host")
	}
	if a.Username == "" {
		missing = append(missing, "username")
	}
	if a.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("account %q missing %s", a.Name(), strings.Join(missing, ", "))
	}
	return nil
}

// Name returns the account identity used in logs, documents, and
// credential keys.
func (a AccountConfig) Name() string {
	if a.ID != "" {
		return a.ID
	}
	return a.Username
}

// Addr returns the host:port dial address.
func (a AccountConfig) Addr() string {
	port := a.Port
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", a.Host, port)
}

// SyncConfig holds the tunables of the synchronization engine.
type SyncConfig struct {
	// WindowDays is the backfill lookback window.
	WindowDays int `mapstructure:"window_days" yaml:"window_days"`

	// Folder is the mailbox folder to synchronize.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// ReconnectBaseSec is the initial reconnect delay in seconds.
	ReconnectBaseSec int `mapstructure:"reconnect_base_sec" yaml:"reconnect_base_sec"`

	// ReconnectMaxSec caps the reconnect delay growth in seconds.
	ReconnectMaxSec int `mapstructure:"reconnect_max_sec" yaml:"reconnect_max_sec"`
}

// ReconnectBase returns the initial reconnect delay.
func (s SyncConfig) ReconnectBase() time.Duration {
	return time.Duration(s.ReconnectBaseSec) * time.Second
}

// ReconnectMax returns the reconnect delay cap.
func (s SyncConfig) ReconnectMax() time.Duration {
	return time.Duration(s.ReconnectMaxSec) * time.Second
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// StoreConfig holds the document store settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Sync     SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Server   ServerConfig    `mapstructure:"server" yaml:"server"`
	Store    StoreConfig     `mapstructure:"store" yaml:"store"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailsift/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsift", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Sync: SyncConfig{
			WindowDays:       30,
			Folder:           "INBOX",
			ReconnectBaseSec: 5,
			ReconnectMaxSec:  120,
		},
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Path: "mailsift.db"},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. Environment variables prefixed MAILSIFT_ override file values
// (e.g. MAILSIFT_SERVER_ADDR). A missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("sync.window_days", 30)
	v.SetDefault("sync.folder", "INBOX")
	v.SetDefault("sync.reconnect_base_sec", 5)
	v.SetDefault("sync.reconnect_max_sec", 120)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.path", "mailsift.db")

	v.SetEnvPrefix("MAILSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Accounts default to the standard IMAPS port with implicit TLS.
	// An explicit tls key always wins, whatever the port.
	rawAccounts, _ := v.Get("accounts").([]interface{})
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Port == 0 {
			cfg.Accounts[i].Port = 993
		}
		if !accountKeySet(rawAccounts, i, "tls") {
			cfg.Accounts[i].TLS = true
		}
	}

	return cfg, nil
}

// accountKeySet reports whether the config file carried the given key
// for the i-th account entry.
func accountKeySet(raw []interface{}, i int, key string) bool {
	if i >= len(raw) {
		return false
	}
	entry, ok := raw[i].(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = entry[key]
	return ok
}
