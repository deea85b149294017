package vsd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for viewsyncd.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Auth    AuthConfig    `toml:"auth"`
	Modules ModulesConfig `toml:"modules"`
}

// ServerConfig defines shared daemon settings.
type ServerConfig struct {
	Listen          string `toml:"listen"`
	DBPath          string `toml:"db_path"`
	Debug           bool   `toml:"debug"`
	FlushIntervalMS int64  `toml:"flush_interval_ms"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
	LogOutput       string `toml:"log_output"`
	Daemonize       bool   `toml:"daemonize"`
}

// AuthConfig maps bearer tokens to subjects. With AllowAnonymous set and
// no tokens, every client shares one subject.
type AuthConfig struct {
	AllowAnonymous bool              `toml:"allow_anonymous"`
	Tokens         map[string]string `toml:"tokens"`
}

// ModulesConfig holds optional module configurations.
type ModulesConfig struct {
	Events       EventsConfig       `toml:"events"`
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// EventsConfig configures the MQTT telemetry bridge.
type EventsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Broker    string `toml:"broker"`
	ClientID  string `toml:"client_id"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	TLSCA     string `toml:"tls_ca"`
	TLSCert   string `toml:"tls_cert"`
	TLSKey    string `toml:"tls_key"`
	TopicBase string `toml:"topic_base"`
}

// EmbeddedMQTTConfig configures the embedded broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "viewsync", "viewsyncd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "viewsync", "viewsyncd.toml"), nil
}

// DefaultDBPath returns the default database location.
func DefaultDBPath() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "viewsync", "viewsync.db"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "viewsync", "viewsync.db"), nil
}
