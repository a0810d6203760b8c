// Package config carrega a configuração do gateway: .env (godotenv), variáveis
// de ambiente e, opcionalmente, um arquivo YAML (GATEWAY_CONFIG) que
// sobrescreve políticas, caminhos sensíveis e limite de corpo.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	rldomain "risk-gateway/middleware/ratelimit/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr   string
	AdminAddr    string
	UpstreamURL  string
	MaxBodyBytes int64

	TrustForwarded  bool
	BlockListFile   string
	BlockSuspicious bool

	RateEnabled      bool
	RateBackend      string
	RateIdleTTL      time.Duration
	RateCleanupEvery time.Duration
	RateMaxKeys      int
	RateRedisPrefix  string
	Policy           rldomain.Policy

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateStatsEnabled   bool
	RateStatsPrefix    string
	RateStatsTTL       time.Duration
	RateStatsBucket    string
	RateStatsTrackKeys bool

	SensitivePaths   []string
	AuditFile        string
	AuditBuffer      int
	AuditHeaders     bool
	AuditDatabaseURL string
	AuditKafka       []string
	AuditKafkaTopic  string

	OTLPEndpoint string
	OTLPInsecure bool
	LogLevel     string
	LogFormat    string
}

// fileConfig é o formato do arquivo YAML.
//
//	max_body_bytes: 10485760
//	sensitive_paths: ["/auth/", "/admin/"]
//	rate_limits:
//	  auth:   {quota: 5, window: 1m}
//	  upload: {quota: 2, window: 30s}
type fileConfig struct {
	MaxBodyBytes   int64                   `yaml:"max_body_bytes"`
	SensitivePaths []string                `yaml:"sensitive_paths"`
	RateLimits     map[string]fileRateRule `yaml:"rate_limits"`
}

type fileRateRule struct {
	Quota  int           `yaml:"quota"`
	Window time.Duration `yaml:"window"`
}

// Load lê .env (se existir), o ambiente e o arquivo de GATEWAY_CONFIG.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{}
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.AdminAddr = getenvDefault("ADMIN_ADDR", ":9090")
	cfg.UpstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.MaxBodyBytes = int64(getenvIntDefault("MAX_BODY_BYTES", 50<<20))

	cfg.TrustForwarded = getenvBoolDefault("TRUST_FORWARDED", true)
	cfg.BlockListFile = os.Getenv("BLOCKLIST_FILE")
	cfg.BlockSuspicious = getenvBoolDefault("BLOCK_SUSPICIOUS", false)

	cfg.RateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.RateBackend = strings.ToLower(getenvDefault("RATE_BACKEND", "memory"))
	cfg.RateIdleTTL = getenvDurationDefault("RATE_IDLE_TTL", 15*time.Minute)
	cfg.RateCleanupEvery = getenvDurationDefault("RATE_CLEANUP_EVERY", 2*time.Minute)
	cfg.RateMaxKeys = getenvIntDefault("RATE_MAX_KEYS", 0)
	cfg.RateRedisPrefix = getenvDefault("RATE_REDIS_PREFIX", "ratelimit:window")
	cfg.Policy = rldomain.DefaultPolicy()

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvIntDefault("REDIS_DB", 0)

	cfg.RateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.RateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.RateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.RateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.RateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.AuditFile = os.Getenv("AUDIT_FILE")
	cfg.AuditBuffer = getenvIntDefault("AUDIT_BUFFER", 1024)
	cfg.AuditHeaders = getenvBoolDefault("AUDIT_HEADERS", true)
	cfg.AuditDatabaseURL = os.Getenv("AUDIT_DATABASE_URL")
	cfg.AuditKafka = splitList(os.Getenv("AUDIT_KAFKA_BROKERS"))
	cfg.AuditKafkaTopic = getenvDefault("AUDIT_KAFKA_TOPIC", "gateway.audit")

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTLPInsecure = getenvBoolDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "json"))

	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if f.MaxBodyBytes > 0 {
		c.MaxBodyBytes = f.MaxBodyBytes
	}
	if len(f.SensitivePaths) > 0 {
		c.SensitivePaths = f.SensitivePaths
	}
	if len(f.RateLimits) > 0 {
		overrides := make(map[rldomain.EndpointClass]rldomain.Rule, len(f.RateLimits))
		for name, r := range f.RateLimits {
			class, ok := rldomain.ParseClass(name)
			if !ok {
				return fmt.Errorf("config file %s: unknown endpoint class %q", path, name)
			}
			overrides[class] = rldomain.Rule{Quota: r.Quota, Window: r.Window}
		}
		p, err := rldomain.NewPolicy(overrides)
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		c.Policy = p
	}
	return nil
}

// Validate confere combinações que abortam a inicialização.
func (c Config) Validate() error {
	var errs []error
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be > 0"))
	}
	switch c.RateBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when RATE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_BACKEND must be memory or redis, got %q", c.RateBackend))
	}
	if c.RateStatsEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	if c.RateMaxKeys < 0 {
		errs = append(errs, errors.New("RATE_MAX_KEYS must be >= 0"))
	}
	if c.AuditBuffer < 0 {
		errs = append(errs, errors.New("AUDIT_BUFFER must be >= 0"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
