package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "careforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// CLIFlags holds command-line overrides. Nil fields were not set.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
}

// ParseFlags parses server command-line flags. Long and short forms are
// accepted: --config/-c, --port/-p, --log-level, --dsn, --nats-url.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("careforge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configPath, port, logLevel, dsn, natsURL string
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.StringVar(&configPath, "c", "", "shorthand for --config")
	fs.StringVar(&port, "port", "", "HTTP listen port")
	fs.StringVar(&port, "p", "", "shorthand for --port")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN")
	fs.StringVar(&natsURL, "nats-url", "", "NATS server URL")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = &configPath
		case "port", "p":
			flags.Port = &port
		case "log-level":
			flags.LogLevel = &logLevel
		case "dsn":
			flags.DSN = &dsn
		case "nats-url":
			flags.NatsURL = &natsURL
		}
	})
	return flags, nil
}

// LoadWithCLI loads configuration with CLI flags applied last. It returns
// the resolved YAML path.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := configPath(flags)

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

func configPath(flags CLIFlags) string {
	if flags.ConfigPath != nil {
		return *flags.ConfigPath
	}
	return DefaultConfigFile
}

func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// Holder provides concurrency-safe access to a Config that can be reloaded
// at runtime (on SIGHUP). Reload runs the same pipeline as LoadWithCLI, so
// the flags the process started with keep their precedence.
type Holder struct {
	mu    sync.RWMutex
	cfg   *Config
	flags CLIFlags
	subs  []func(prev, next *Config)
}

// NewHolder wraps cfg, remembering flags for Reload.
func NewHolder(cfg *Config, flags CLIFlags) *Holder {
	return &Holder{cfg: cfg, flags: flags}
}

// Get returns the current configuration. Callers must not mutate it.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Path returns the YAML file Reload reads.
func (h *Holder) Path() string {
	return configPath(h.flags)
}

// OnReload registers fn to run after every successful Reload with the
// previous and the new configuration.
func (h *Holder) OnReload(fn func(prev, next *Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, fn)
}

// Reload re-reads the YAML file and environment and re-applies the CLI
// flags. On error the previous configuration is kept and no subscriber runs.
func (h *Holder) Reload() error {
	cfg, _, err := LoadWithCLI(h.flags)
	if err != nil {
		return err
	}
	h.mu.Lock()
	prev := h.cfg
	h.cfg = cfg
	subs := slices.Clone(h.subs)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(prev, cfg)
	}
	return nil
}

// RestartRequired lists the config sections that differ between prev and
// next in settings only read at startup. The log level, the rate limits and
// the request timeout apply on reload and are not reported.
func RestartRequired(prev, next *Config) []string {
	a, b := *prev, *next
	for _, c := range []*Config{&a, &b} {
		c.Logging.Level = ""
		c.Rate.RequestsPerSecond, c.Rate.Burst = 0, 0
		c.Rate.AuthFailuresPerMinute, c.Rate.AuthFailureBurst = 0, 0
		c.Server.RequestTimeout = 0
	}

	var changed []string
	for _, s := range []struct {
		name string
		diff bool
	}{
		{"server", a.Server != b.Server},
		{"postgres", a.Postgres != b.Postgres},
		{"nats", a.NATS != b.NATS},
		{"logging", a.Logging != b.Logging},
		{"otel", a.OTEL != b.OTEL},
		{"cache", a.Cache != b.Cache},
		{"breaker", a.Breaker != b.Breaker},
		{"rate", a.Rate != b.Rate},
		{"auth", a.Auth != b.Auth},
		{"dispatch", a.Dispatch != b.Dispatch},
		{"documents", a.Documents != b.Documents},
		{"mcp", a.MCP != b.MCP},
		{"notify", a.Notify != b.Notify},
	} {
		if s.diff {
			changed = append(changed, s.name)
		}
	}
	return changed
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CAREFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "CAREFORGE_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "CAREFORGE_REQUEST_TIMEOUT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CAREFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CAREFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CAREFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CAREFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CAREFORGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "CAREFORGE_NATS_STREAM")
	setString(&cfg.Logging.Level, "CAREFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CAREFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CAREFORGE_LOG_ASYNC")
	setBool(&cfg.Auth.Enabled, "CAREFORGE_AUTH_ENABLED")
	setString(&cfg.Auth.AdminEmail, "CAREFORGE_ADMIN_EMAIL")
	setString(&cfg.Auth.AdminPassword, "CAREFORGE_ADMIN_PASSWORD")
	setInt(&cfg.Auth.BcryptCost, "CAREFORGE_BCRYPT_COST")
	setBool(&cfg.Dispatch.StopOnFirstFailure, "CAREFORGE_DISPATCH_STOP_ON_FIRST_FAILURE")
	setInt(&cfg.Breaker.MaxFailures, "CAREFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CAREFORGE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "CAREFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "CAREFORGE_RATE_BURST")
	setFloat64(&cfg.Rate.AuthFailuresPerMinute, "CAREFORGE_RATE_AUTH_FAILURES_PER_MINUTE")
	setInt(&cfg.Rate.AuthFailureBurst, "CAREFORGE_RATE_AUTH_FAILURE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "CAREFORGE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "CAREFORGE_RATE_MAX_IDLE_TIME")

	// Telemetry
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "CAREFORGE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "CAREFORGE_OTEL_SAMPLE_RATE")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "CAREFORGE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "CAREFORGE_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "CAREFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "CAREFORGE_CACHE_L2_TTL")

	// Documents
	setString(&cfg.Documents.Bucket, "CAREFORGE_DOCUMENTS_BUCKET")
	setInt64(&cfg.Documents.MaxSizeBytes, "CAREFORGE_DOCUMENTS_MAX_SIZE")
	setInt(&cfg.Documents.MaxConcurrent, "CAREFORGE_DOCUMENTS_MAX_CONCURRENT")

	// MCP
	setBool(&cfg.MCP.Enabled, "CAREFORGE_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "CAREFORGE_MCP_ADDR")

	// Notify
	setString(&cfg.Notify.Provider, "CAREFORGE_NOTIFY_PROVIDER")
	setString(&cfg.Notify.WebhookURL, "CAREFORGE_NOTIFY_WEBHOOK_URL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Rate.AuthFailuresPerMinute <= 0 {
		return errors.New("rate.auth_failures_per_minute must be > 0")
	}
	if cfg.Rate.AuthFailureBurst < 1 {
		return errors.New("rate.auth_failure_burst must be >= 1")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return errors.New("auth.bcrypt_cost must be between 4 and 31")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
	}
	if cfg.Documents.MaxSizeBytes < 1 {
		return errors.New("documents.max_size_bytes must be >= 1")
	}
	if cfg.Documents.MaxConcurrent < 1 {
		return errors.New("documents.max_concurrent must be >= 1")
	}
	if cfg.MCP.Enabled && cfg.MCP.Addr == "" {
		return errors.New("mcp.addr is required when mcp is enabled")
	}
	if cfg.Notify.Provider != "" && cfg.Notify.WebhookURL == "" {
		return errors.New("notify.webhook_url is required when notify.provider is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
