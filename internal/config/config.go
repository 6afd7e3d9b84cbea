package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the sccpd server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir         string
	SCCPAddr        string
	SCCPPort        int
	HTTPPort        int
	Keepalive       time.Duration
	KeepaliveGrace  time.Duration // extra time before a silent phone is dropped
	MonitorMaxWait  time.Duration
	MaxFrameSize    int
	AllowAnonymous  bool // accept registrations from unprovisioned devices
	DateFormat      string
	ServerName      string
	DBDSN           string // PostgreSQL DSN for device messages; empty keeps them in SQLite
	JWTSecret       string // hex-encoded 32-byte secret for admin JWT signing
	AdminUser       string
	AdminPassword   string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string // log output format: "text" or "json"
}

// defaults
const (
	defaultDataDir         = "./data"
	defaultSCCPAddr        = "0.0.0.0"
	defaultSCCPPort        = 2000
	defaultHTTPPort        = 8080
	defaultKeepalive       = 60 * time.Second
	defaultKeepaliveGrace  = 10 * time.Second
	defaultMonitorMaxWait  = time.Second
	defaultMaxFrameSize    = 8192
	defaultDateFormat      = "D/M/YA"
	defaultServerName      = "sccpd"
	defaultShutdownTimeout = 10 * time.Second
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
)

// envPrefix is the prefix for all sccpd environment variables.
const envPrefix = "SCCPD_"

// Load parses configuration from CLI flags and environment variables.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("sccpd", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the database")
	fs.StringVar(&cfg.SCCPAddr, "sccp-addr", defaultSCCPAddr, "SCCP listen address")
	fs.IntVar(&cfg.SCCPPort, "sccp-port", defaultSCCPPort, "SCCP TCP listen port")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "admin HTTP server listen port")
	fs.DurationVar(&cfg.Keepalive, "keepalive", defaultKeepalive, "keepalive interval sent to phones")
	fs.DurationVar(&cfg.KeepaliveGrace, "keepalive-grace", defaultKeepaliveGrace, "grace period after a missed keepalive before the session is closed")
	fs.DurationVar(&cfg.MonitorMaxWait, "monitor-max-wait", defaultMonitorMaxWait, "longest sleep of the monitor loop between timer checks")
	fs.IntVar(&cfg.MaxFrameSize, "max-frame-size", defaultMaxFrameSize, "largest SCCP frame accepted from a phone, in bytes")
	fs.BoolVar(&cfg.AllowAnonymous, "allow-anonymous", true, "accept registrations from devices that are not provisioned")
	fs.StringVar(&cfg.DateFormat, "date-format", defaultDateFormat, "date template shown on phone displays")
	fs.StringVar(&cfg.ServerName, "server-name", defaultServerName, "server name reported to phones")
	fs.StringVar(&cfg.DBDSN, "db-dsn", "", "PostgreSQL DSN for device messages (SQLite when empty)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for admin JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.AdminUser, "admin-user", "", "admin user created on first start")
	fs.StringVar(&cfg.AdminPassword, "admin-password", "", "password for the bootstrap admin user")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "how long to wait for connections to drain on shutdown")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// CLI flags take precedence over env vars.
	if err := applyEnvOverrides(fs, cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) error {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	var err error
	fs.VisitAll(func(f *flag.Flag) {
		if set[f.Name] || err != nil {
			return
		}
		envVar := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			return
		}
		if serr := f.Value.Set(val); serr != nil {
			err = fmt.Errorf("parsing %s: %w", envVar, serr)
		}
	})
	return err
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.SCCPPort < 1 || c.SCCPPort > 65535 {
		return fmt.Errorf("sccp-port must be between 1 and 65535, got %d", c.SCCPPort)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.HTTPPort == c.SCCPPort {
		return fmt.Errorf("http-port and sccp-port must differ, both are %d", c.HTTPPort)
	}
	if net.ParseIP(c.SCCPAddr) == nil {
		return fmt.Errorf("sccp-addr must be an IP address, got %q", c.SCCPAddr)
	}
	if c.Keepalive < time.Second || c.Keepalive > time.Hour {
		return fmt.Errorf("keepalive must be between 1s and 1h, got %s", c.Keepalive)
	}
	if c.KeepaliveGrace < 0 {
		return fmt.Errorf("keepalive-grace must not be negative, got %s", c.KeepaliveGrace)
	}
	if c.MonitorMaxWait <= 0 {
		return fmt.Errorf("monitor-max-wait must be positive, got %s", c.MonitorMaxWait)
	}
	// The largest fixed-layout message is well under 1 KiB.
	if c.MaxFrameSize < 1024 || c.MaxFrameSize > 1<<20 {
		return fmt.Errorf("max-frame-size must be between 1024 and 1048576, got %d", c.MaxFrameSize)
	}
	if len(c.DateFormat) != 6 {
		return fmt.Errorf("date-format must be 6 characters, got %q", c.DateFormat)
	}
	if c.ServerName == "" {
		return fmt.Errorf("server-name must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if (c.AdminUser == "") != (c.AdminPassword == "") {
		return fmt.Errorf("admin-user and admin-password must both be provided or both be omitted")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// SCCPListenAddr returns the host:port the SCCP server binds.
func (c *Config) SCCPListenAddr() string {
	return net.JoinHostPort(c.SCCPAddr, strconv.Itoa(c.SCCPPort))
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
