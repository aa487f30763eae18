package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultServer        = "messenger.hotmail.com:1863"
	DefaultAuthEndpoint  = "https://login.live.com/RST.srf"
	DefaultClientName    = "msgr"
	DefaultClientVersion = "0.1.0"
	DefaultPresence      = "online"
	DefaultTypingTimeout = 5 * time.Second
	DefaultHistoryLimit  = 50

	defaultPort = 1863
)

// Config represents the global ~/.msgr/config.toml.
type Config struct {
	DefaultAccount  string   `toml:"default_account"`
	Server          string   `toml:"server,omitempty"`
	AuthEndpoint    string   `toml:"auth_endpoint,omitempty"`
	ClientName      string   `toml:"client_name,omitempty"`
	ClientVersion   string   `toml:"client_version,omitempty"`
	InitialPresence string   `toml:"initial_presence,omitempty"`
	TypingTimeout   Duration `toml:"typing_timeout,omitempty"`
	HistoryLimit    int      `toml:"history_limit,omitempty"`
}

// Duration decodes TOML strings such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Settings are the effective values every component reads.
type Settings struct {
	Host            string
	Port            int
	AuthEndpoint    string
	ClientName      string
	ClientVersion   string
	InitialPresence string
	TypingTimeout   time.Duration
	HistoryLimit    int
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server:          DefaultServer,
		AuthEndpoint:    DefaultAuthEndpoint,
		ClientName:      DefaultClientName,
		ClientVersion:   DefaultClientVersion,
		InitialPresence: DefaultPresence,
		TypingTimeout:   Duration{DefaultTypingTimeout},
		HistoryLimit:    DefaultHistoryLimit,
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Settings resolves cfg into effective settings. Empty or invalid fields fall
// back to their defaults; a nil cfg yields all defaults.
func (cfg *Config) Settings() Settings {
	if cfg == nil {
		cfg = &Config{}
	}
	s := Settings{
		AuthEndpoint:    or(cfg.AuthEndpoint, DefaultAuthEndpoint),
		ClientName:      or(cfg.ClientName, DefaultClientName),
		ClientVersion:   or(cfg.ClientVersion, DefaultClientVersion),
		InitialPresence: or(cfg.InitialPresence, DefaultPresence),
		TypingTimeout:   cfg.TypingTimeout.Duration,
		HistoryLimit:    cfg.HistoryLimit,
	}
	if s.TypingTimeout <= 0 {
		s.TypingTimeout = DefaultTypingTimeout
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = DefaultHistoryLimit
	}
	host, port, err := SplitServer(or(cfg.Server, DefaultServer))
	if err != nil {
		host, port, _ = SplitServer(DefaultServer)
	}
	s.Host, s.Port = host, port
	return s
}

// SplitServer splits "host[:port]", defaulting the port to 1863.
func SplitServer(server string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(server)
	if err != nil {
		if server == "" {
			return "", 0, errors.New("empty server address")
		}
		// No port given.
		return server, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", server)
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", server)
	}
	return host, port, nil
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
