package config

import (
	"fmt"
	"strings"
	"time"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/types"
	"github.com/duespay/duespay/internal/validator"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration is the root application configuration, loaded from config
// files and environment variables.
type Configuration struct {
	Deployment DeploymentConfig `mapstructure:"deployment" validate:"required"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Gateway    GatewayConfig    `mapstructure:"gateway" validate:"required"`
	Billing    BillingConfig    `mapstructure:"billing" validate:"required"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" validate:"required"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Audit      AuditConfig      `mapstructure:"audit" validate:"required"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
}

type DeploymentConfig struct {
	Mode string `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	// Address the HTTP server binds to.
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

// DSN builds the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MerchantIdentity is the four-part identity carried on every gateway
// request.
type MerchantIdentity struct {
	MerchantID string `mapstructure:"merchant_id" validate:"required"`
	StoreID    string `mapstructure:"store_id" validate:"required"`
	TerminalID string `mapstructure:"terminal_id" validate:"required"`
	APIKeyID   string `mapstructure:"api_key_id" validate:"required"`
}

type GatewayConfig struct {
	BaseURL       string           `mapstructure:"base_url" validate:"required,url"`
	SigningSecret string           `mapstructure:"signing_secret" validate:"required"`
	Merchant      MerchantIdentity `mapstructure:"merchant" validate:"required"`
	// ApprovedCodes overrides the default set of response codes treated
	// as an approval. Anything else is a decline.
	ApprovedCodes []string `mapstructure:"approved_codes"`
}

type BillingConfig struct {
	// BackoffDays maps the Nth consecutive failure to the days until the
	// next retry.
	BackoffDays types.BackoffTable `mapstructure:"backoff_days" validate:"required,min=1"`
	// MaxConsecutiveFailures suspends the schedule once reached.
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures" validate:"required,min=1"`
	// InterChargeDelay separates consecutive gateway calls within one run.
	InterChargeDelay time.Duration `mapstructure:"inter_charge_delay"`
}

type SchedulerConfig struct {
	// DailyRunSpec is the cron expression for the daily trigger.
	DailyRunSpec string `mapstructure:"daily_run_spec" validate:"required"`
	// CatchUpOnStart runs the due set once at process start to cover
	// triggers missed during downtime.
	CatchUpOnStart bool `mapstructure:"catch_up_on_start"`
}

type WebhookConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Endpoint of the notification service consuming outcome events.
	Endpoint string `mapstructure:"endpoint"`
	// SigningSecret signs delivered payloads.
	SigningSecret string `mapstructure:"signing_secret"`
	Topic         string `mapstructure:"topic"`
	MaxRetries    int    `mapstructure:"max_retries"`
}

type AuditConfig struct {
	// Dir is the primary append-only certification log location.
	Dir string `mapstructure:"dir" validate:"required"`
	// FallbackDir is used when the primary location is not writable.
	FallbackDir string `mapstructure:"fallback_dir"`
	// RingSize bounds the in-memory buffer of recent records.
	RingSize int `mapstructure:"ring_size"`
}

type DirectoryConfig struct {
	// BaseURL of the subscriber/member directory service.
	BaseURL string `mapstructure:"base_url"`
	// CacheTTL for directory lookups.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// NewConfig loads the configuration from ./config.yaml (if present) and
// DUESPAY_* environment variables, env taking precedence.
func NewConfig() (*Configuration, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("DUESPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, ierr.WithError(err).
				WithHint("Failed to read configuration file").
				Mark(ierr.ErrConfiguration)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to parse configuration").
			Mark(ierr.ErrConfiguration)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", "scheduler")
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("billing.backoff_days", []int(types.DefaultBackoffTable))
	v.SetDefault("billing.max_consecutive_failures", 3)
	v.SetDefault("billing.inter_charge_delay", 2*time.Second)
	v.SetDefault("scheduler.daily_run_spec", "0 6 * * *")
	v.SetDefault("scheduler.catch_up_on_start", true)
	v.SetDefault("webhook.topic", "billing_events")
	v.SetDefault("webhook.max_retries", 5)
	v.SetDefault("audit.dir", "./certification")
	v.SetDefault("audit.ring_size", 256)
	v.SetDefault("directory.cache_ttl", 10*time.Minute)
}

// Validate checks the configuration. Missing merchant identity or signing
// secret is fatal at startup, not reported per attempt.
func (c *Configuration) Validate() error {
	if err := validator.ValidateRequest(c); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid configuration").
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

// GetDefaultConfig returns a minimal configuration for scripts and tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: "test"},
		Logging:    LoggingConfig{Level: "debug"},
		Gateway: GatewayConfig{
			BaseURL:       "http://localhost:9099",
			SigningSecret: "test-secret",
			Merchant: MerchantIdentity{
				MerchantID: "merchant-test",
				StoreID:    "store-test",
				TerminalID: "terminal-test",
				APIKeyID:   "key-test",
			},
		},
		Billing: BillingConfig{
			BackoffDays:            types.DefaultBackoffTable,
			MaxConsecutiveFailures: 3,
			InterChargeDelay:       0,
		},
		Scheduler: SchedulerConfig{DailyRunSpec: "0 6 * * *"},
		Audit:     AuditConfig{Dir: "./certification", RingSize: 64},
		Directory: DirectoryConfig{CacheTTL: time.Minute},
	}
}
