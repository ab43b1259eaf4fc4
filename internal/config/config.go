package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // patient zones must resolve on minimal images

	"github.com/spf13/viper"
)

const (
	PolicyProduction = "production"
	PolicyRelaxed    = "relaxed"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	DefaultTimezone string        `mapstructure:"DEFAULT_TIMEZONE"`

	// Alert policy. ALERT_MIN_SUBMISSIONS and ALERT_MIN_COVERAGE override the
	// named policy when non-zero.
	AlertPolicy         string  `mapstructure:"ALERT_POLICY"`
	AlertMinSubmissions int     `mapstructure:"ALERT_MIN_SUBMISSIONS"`
	AlertMinCoverage    float64 `mapstructure:"ALERT_MIN_COVERAGE"`

	TrashRetentionDays int           `mapstructure:"TRASH_RETENTION_DAYS"`
	SweepInterval      time.Duration `mapstructure:"SWEEP_INTERVAL"`
	PurgeInterval      time.Duration `mapstructure:"PURGE_INTERVAL"`
	SweepConcurrency   int           `mapstructure:"SWEEP_CONCURRENCY"`

	KafkaBrokers        []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaAlertTopic     string        `mapstructure:"KAFKA_ALERT_TOPIC"`
	EventPublishTimeout time.Duration `mapstructure:"EVENT_PUBLISH_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "DEFAULT_TIMEZONE",
	"ALERT_POLICY", "ALERT_MIN_SUBMISSIONS", "ALERT_MIN_COVERAGE",
	"TRASH_RETENTION_DAYS", "SWEEP_INTERVAL", "PURGE_INTERVAL", "SWEEP_CONCURRENCY",
	"KAFKA_BROKERS", "KAFKA_ALERT_TOPIC", "EVENT_PUBLISH_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("DEFAULT_TIMEZONE", "Asia/Taipei")
	v.SetDefault("ALERT_POLICY", PolicyProduction)
	v.SetDefault("TRASH_RETENTION_DAYS", 10)
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("PURGE_INTERVAL", "24h")
	v.SetDefault("SWEEP_CONCURRENCY", 4)
	v.SetDefault("KAFKA_ALERT_TOPIC", "score-alerts")
	v.SetDefault("EVENT_PUBLISH_TIMEOUT", "2s")

	// Bind explicitly so Unmarshal sees env-only keys.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList normalises a comma separated value that may have been decoded as
// a single element.
func splitList(decoded []string, raw string) []string {
	if len(decoded) == 0 && raw != "" {
		decoded = []string{raw}
	}
	var out []string
	for _, item := range decoded {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DefaultLocation resolves DEFAULT_TIMEZONE, falling back to UTC.
func (c *Config) DefaultLocation() *time.Location {
	if loc, err := time.LoadLocation(c.DefaultTimezone); err == nil && c.DefaultTimezone != "" {
		return loc
	}
	return time.UTC
}

// KafkaEnabled reports whether alert events should go to kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate checks cross-field rules that Load cannot express as defaults.
func (c *Config) Validate() error {
	switch c.AlertPolicy {
	case PolicyProduction, PolicyRelaxed:
	default:
		return fmt.Errorf("ALERT_POLICY must be %q or %q, got %q", PolicyProduction, PolicyRelaxed, c.AlertPolicy)
	}
	if c.AlertMinSubmissions < 0 {
		return fmt.Errorf("ALERT_MIN_SUBMISSIONS must be >= 1 when set, got %d", c.AlertMinSubmissions)
	}
	if c.AlertMinCoverage < 0 || c.AlertMinCoverage > 1 {
		return fmt.Errorf("ALERT_MIN_COVERAGE must be in (0, 1], got %v", c.AlertMinCoverage)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil || c.DefaultTimezone == "" {
		return fmt.Errorf("DEFAULT_TIMEZONE %q is not a loadable IANA zone", c.DefaultTimezone)
	}
	if c.TrashRetentionDays < 1 {
		return fmt.Errorf("TRASH_RETENTION_DAYS must be >= 1, got %d", c.TrashRetentionDays)
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be >= 1, got %d", c.SweepConcurrency)
	}
	if c.KafkaEnabled() && c.KafkaAlertTopic == "" {
		return fmt.Errorf("KAFKA_ALERT_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.EventPublishTimeout <= 0 {
		return fmt.Errorf("EVENT_PUBLISH_TIMEOUT must be positive, got %v", c.EventPublishTimeout)
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY must be set outside development (current ENV=%q); "+
				"refusing to start without token verification", c.Env)
	}
	return nil
}
