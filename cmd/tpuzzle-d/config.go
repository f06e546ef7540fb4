package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/transformer-puzzle/pkg/webhook"
)

const (
	defaultAddr          = "127.0.0.1:8090"
	defaultLogLevel      = "info"
	defaultLockTTL       = 5 * time.Second
	defaultPruneInterval = time.Hour
)

type Config struct {
	Addr     string
	DBPath   string // empty disables the event journal
	LogLevel slog.Level

	RedisAddr string // empty keeps sessions in memory
	LockTTL   time.Duration

	Retention     time.Duration // zero keeps events forever
	PruneInterval time.Duration
	ArchiveDir    string // expired events are archived here before deletion

	AdminToken  string
	TLSCertFile string
	TLSKeyFile  string

	// Webhooks come from the config file only.
	Webhooks []webhook.Config

	// ConfigPath is the YAML file the config was layered from, if any.
	ConfigPath string
}

// fileConfig is the YAML layout. Durations are Go duration strings.
type fileConfig struct {
	Addr          string `yaml:"addr"`
	DBPath        string `yaml:"db_path"`
	LogLevel      string `yaml:"log_level"`
	RedisAddr     string `yaml:"redis_addr"`
	LockTTL       string `yaml:"lock_ttl"`
	Retention     string `yaml:"retention"`
	PruneInterval string `yaml:"prune_interval"`
	ArchiveDir    string `yaml:"archive_dir"`
	AdminToken    string `yaml:"admin_token"`
	TLSCertFile   string `yaml:"tls_cert_file"`
	TLSKeyFile    string `yaml:"tls_key_file"`

	Webhooks []webhook.Config `yaml:"webhooks"`
}

// LoadConfig layers defaults, the optional YAML file, TPUZZLE_* environment
// variables and flags, in that order, then validates the result.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	raw := fileConfig{
		Addr:          defaultAddr,
		DBPath:        filepath.Join(cwd, "tpuzzle.db"),
		LogLevel:      defaultLogLevel,
		LockTTL:       defaultLockTTL.String(),
		Retention:     "0s",
		PruneInterval: defaultPruneInterval.String(),
	}

	configPath := configPathFromArgs(args)
	if configPath == "" {
		configPath = os.Getenv("TPUZZLE_CONFIG")
	}
	if configPath != "" {
		configPath = resolvePath(configPath, cwd)
		if err := loadFile(configPath, &raw); err != nil {
			return Config{}, err
		}
	}

	raw.Addr = addrFromEnv(raw.Addr)
	raw.DBPath = envOrDefault("TPUZZLE_DB_PATH", raw.DBPath)
	raw.LogLevel = envOrDefault("TPUZZLE_LOG_LEVEL", raw.LogLevel)
	raw.RedisAddr = envOrDefault("TPUZZLE_REDIS_ADDR", raw.RedisAddr)
	raw.LockTTL = envOrDefault("TPUZZLE_LOCK_TTL", raw.LockTTL)
	raw.Retention = envOrDefault("TPUZZLE_RETENTION", raw.Retention)
	raw.PruneInterval = envOrDefault("TPUZZLE_PRUNE_INTERVAL", raw.PruneInterval)
	raw.ArchiveDir = envOrDefault("TPUZZLE_ARCHIVE_DIR", raw.ArchiveDir)
	raw.AdminToken = envOrDefault("TPUZZLE_ADMIN_TOKEN", raw.AdminToken)
	raw.TLSCertFile = envOrDefault("TPUZZLE_TLS_CERT", raw.TLSCertFile)
	raw.TLSKeyFile = envOrDefault("TPUZZLE_TLS_KEY", raw.TLSKeyFile)

	flagSet := flag.NewFlagSet("tpuzzle-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.String("config", configPath, "path to YAML config file")
	flagAddr := flagSet.String("addr", raw.Addr, "HTTP listen address")
	flagDB := flagSet.String("db", raw.DBPath, "path to SQLite event journal (empty disables it)")
	flagLogLevel := flagSet.String("log-level", raw.LogLevel, "log level: debug|info|warn|error")
	flagRedis := flagSet.String("redis", raw.RedisAddr, "Redis address for shared session storage")
	flagLockTTL := flagSet.String("lock-ttl", raw.LockTTL, "session lease TTL when using Redis")
	flagRetention := flagSet.String("retention", raw.Retention, "prune journal events older than this (0 keeps all)")
	flagPruneInterval := flagSet.String("prune-interval", raw.PruneInterval, "how often to prune the journal")
	flagArchiveDir := flagSet.String("archive-dir", raw.ArchiveDir, "archive expired events here instead of dropping them")
	flagTLSCert := flagSet.String("tls-cert", raw.TLSCertFile, "TLS certificate file")
	flagTLSKey := flagSet.String("tls-key", raw.TLSKeyFile, "TLS key file")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	config := Config{
		Addr:        strings.TrimSpace(*flagAddr),
		DBPath:      resolvePath(*flagDB, cwd),
		RedisAddr:   strings.TrimSpace(*flagRedis),
		ArchiveDir:  resolvePath(*flagArchiveDir, cwd),
		AdminToken:  raw.AdminToken,
		TLSCertFile: resolvePath(*flagTLSCert, cwd),
		TLSKeyFile:  resolvePath(*flagTLSKey, cwd),
		Webhooks:    raw.Webhooks,
		ConfigPath:  configPath,
	}

	if err := config.LogLevel.UnmarshalText([]byte(strings.TrimSpace(*flagLogLevel))); err != nil {
		return Config{}, fmt.Errorf("invalid log level %q", *flagLogLevel)
	}
	if config.LockTTL, err = time.ParseDuration(*flagLockTTL); err != nil {
		return Config{}, fmt.Errorf("invalid lock ttl: %w", err)
	}
	if config.Retention, err = time.ParseDuration(*flagRetention); err != nil {
		return Config{}, fmt.Errorf("invalid retention: %w", err)
	}
	if config.PruneInterval, err = time.ParseDuration(*flagPruneInterval); err != nil {
		return Config{}, fmt.Errorf("invalid prune interval: %w", err)
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	if c.LockTTL <= 0 {
		return errors.New("lock ttl must be positive")
	}
	if c.Retention < 0 {
		return errors.New("retention cannot be negative")
	}
	if c.Retention > 0 && c.PruneInterval <= 0 {
		return errors.New("prune interval must be positive when retention is set")
	}
	if c.Retention > 0 && c.DBPath == "" {
		return errors.New("retention requires an event journal")
	}
	if c.ArchiveDir != "" && c.DBPath == "" {
		return errors.New("archive-dir requires an event journal")
	}
	if len(c.Webhooks) > 0 && c.DBPath == "" {
		return errors.New("webhooks require an event journal")
	}
	if err := webhook.ValidateConfigs(c.Webhooks); err != nil {
		return err
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	return nil
}

func loadFile(path string, into *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// configPathFromArgs finds -config ahead of the full flag parse, since the
// file supplies the defaults for every other flag.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("TPUZZLE_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("TPUZZLE_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
