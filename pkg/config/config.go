package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/synapsedb/synapse/internal/mathengine"
)

// Config is the complete application configuration (§6: environment-supplied,
// all validated at startup).
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Tiers     TiersConfig     `mapstructure:"tiers"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Math      MathConfig      `mapstructure:"math"`
}

// DatabaseConfig holds the relational store connection and pool settings.
type DatabaseConfig struct {
	URL              string        `mapstructure:"url"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	// MaintenanceStatementTimeout overrides StatementTimeout for maintenance
	// operations (e.g. schema migration, vacuum-equivalent work).
	MaintenanceStatementTimeout time.Duration `mapstructure:"maintenance_statement_timeout"`
	// SaturationAlertThreshold is the pool-utilisation fraction (0,1] at which
	// a warning is logged (§4.7 default 0.70).
	SaturationAlertThreshold float64 `mapstructure:"saturation_alert_threshold"`
}

// EmbeddingConfig configures the external embedding gateway.
type EmbeddingConfig struct {
	URL        string        `mapstructure:"url"`
	Model      string        `mapstructure:"model"`
	Dimension  int           `mapstructure:"dimension"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// TiersConfig configures working/warm tier capacity and migration overrides.
type TiersConfig struct {
	WorkingCapacity int `mapstructure:"working_capacity"`
	// MigrationCandidateLimit (K in §4.4) bounds how many candidates the Tier
	// Manager requests per source tier per sweep.
	MigrationCandidateLimit int `mapstructure:"migration_candidate_limit"`
}

// AuthConfig configures credential verification for the Tool Protocol Layer.
type AuthConfig struct {
	// SigningSecret is the bearer-token HMAC signing secret. Required, >= 32
	// bytes. No default: refusing to start without one is a hard invariant.
	SigningSecret string `mapstructure:"signing_secret"`
	// APIKeys maps a static API key to a client identity, an alternative
	// credential form alongside bearer tokens.
	APIKeys map[string]string `mapstructure:"api_keys"`
	// ClientCertificates maps a lowercase-hex certificate thumbprint to the
	// client identity/expiry/scopes it authenticates (§4.6's third credential
	// form). Registered out of band since the Tool Protocol Layer runs over
	// stdio, not TLS.
	ClientCertificates map[string]ClientCertConfig `mapstructure:"client_certificates"`
	// RequiredScope is the scope every client-certificate credential must
	// carry. Empty disables the scope check.
	RequiredScope string `mapstructure:"required_scope"`
}

// ClientCertConfig is one registered client-certificate-thumbprint entry.
type ClientCertConfig struct {
	ClientID  string    `mapstructure:"client_id"`
	ExpiresAt time.Time `mapstructure:"expires_at"`
	Scopes    []string  `mapstructure:"scopes"`
}

// RateLimitConfig mirrors internal/ratelimit.Config's shape for viper binding.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	GlobalRPS         float64       `mapstructure:"global_rps"`
	GlobalBurst       int           `mapstructure:"global_burst"`
	PerClientRPS      float64       `mapstructure:"per_client_rps"`
	PerClientBurst    int           `mapstructure:"per_client_burst"`
	ClientIdleTTL     time.Duration `mapstructure:"client_idle_ttl"`
}

// LoggingConfig mirrors internal/logging.Config for viper binding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// SchedulerConfig configures the background tier-evaluation/consolidation loop.
type SchedulerConfig struct {
	Cadence      time.Duration `mapstructure:"cadence"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// HTTPConfig configures the optional operational HTTP surface
// (internal/httpapi): health probe and pool-saturation metrics only.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	CORS    bool   `mapstructure:"cors"`
}

// MathConfig allows overriding the Math Engine's defaults (§4.1/§9).
type MathConfig struct {
	WeightRecency    float64 `mapstructure:"weight_recency"`
	WeightImportance float64 `mapstructure:"weight_importance"`
	WeightRelevance  float64 `mapstructure:"weight_relevance"`
	RecencyLambda    float64 `mapstructure:"recency_lambda"`
}

// DefaultConfig returns the spec-stated defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:                         "postgres://localhost:5432/synapse",
			MaxConns:                    100,
			MinConns:                    20,
			StatementTimeout:            30 * time.Second,
			MaintenanceStatementTimeout: 5 * time.Minute,
			SaturationAlertThreshold:    0.70,
		},
		Embedding: EmbeddingConfig{
			URL:        "http://localhost:11434/api/embeddings",
			Model:      "nomic-embed-text",
			Dimension:  768,
			Timeout:    60 * time.Second,
			MaxRetries: 5,
		},
		Tiers: TiersConfig{
			WorkingCapacity:          1000,
			MigrationCandidateLimit:  100,
		},
		Auth: AuthConfig{},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			GlobalRPS:      100,
			GlobalBurst:    200,
			PerClientRPS:   20,
			PerClientBurst: 40,
			ClientIdleTTL:  10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Scheduler: SchedulerConfig{
			Cadence:       60 * time.Second,
			ShutdownGrace: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9090,
			CORS:    false,
		},
		Math: MathConfig{
			WeightRecency:    mathengine.DefaultWeights.Recency,
			WeightImportance: mathengine.DefaultWeights.Importance,
			WeightRelevance:  mathengine.DefaultWeights.Relevance,
			RecencyLambda:    mathengine.DefaultConfig().RecencyLambda,
		},
	}
}

// Load loads configuration from a YAML file with environment-variable
// overrides and fallback to defaults, then validates.
//
// Search order: ./config.yaml, <configDir>/config.yaml (when configDir is
// non-empty), /etc/synapse/config.yaml. Any SYNAPSE_<SECTION>_<KEY> environment variable
// overrides the corresponding mapstructure key (§6: "environment-supplied").
func Load(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath("/etc/synapse")

	setDefaults(v)

	v.SetEnvPrefix("synapse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("database.statement_timeout", d.Database.StatementTimeout)
	v.SetDefault("database.maintenance_statement_timeout", d.Database.MaintenanceStatementTimeout)
	v.SetDefault("database.saturation_alert_threshold", d.Database.SaturationAlertThreshold)

	v.SetDefault("embedding.url", d.Embedding.URL)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("embedding.max_retries", d.Embedding.MaxRetries)

	v.SetDefault("tiers.working_capacity", d.Tiers.WorkingCapacity)
	v.SetDefault("tiers.migration_candidate_limit", d.Tiers.MigrationCandidateLimit)

	v.SetDefault("auth.signing_secret", d.Auth.SigningSecret)
	v.SetDefault("auth.required_scope", d.Auth.RequiredScope)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.global_rps", d.RateLimit.GlobalRPS)
	v.SetDefault("rate_limit.global_burst", d.RateLimit.GlobalBurst)
	v.SetDefault("rate_limit.per_client_rps", d.RateLimit.PerClientRPS)
	v.SetDefault("rate_limit.per_client_burst", d.RateLimit.PerClientBurst)
	v.SetDefault("rate_limit.client_idle_ttl", d.RateLimit.ClientIdleTTL)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("scheduler.cadence", d.Scheduler.Cadence)
	v.SetDefault("scheduler.shutdown_grace", d.Scheduler.ShutdownGrace)

	v.SetDefault("http.enabled", d.HTTP.Enabled)
	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.cors", d.HTTP.CORS)

	v.SetDefault("math.weight_recency", d.Math.WeightRecency)
	v.SetDefault("math.weight_importance", d.Math.WeightImportance)
	v.SetDefault("math.weight_relevance", d.Math.WeightRelevance)
	v.SetDefault("math.recency_lambda", d.Math.RecencyLambda)
}

// Validate enforces every startup-validated constraint in §6.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Database.MaxConns < 50 {
		return fmt.Errorf("database.max_conns must be >= 50")
	}
	if c.Database.MinConns < 20 {
		return fmt.Errorf("database.min_conns must be >= 20")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns must be <= database.max_conns")
	}
	if c.Database.StatementTimeout <= 0 {
		return fmt.Errorf("database.statement_timeout must be > 0")
	}
	if c.Database.SaturationAlertThreshold <= 0 || c.Database.SaturationAlertThreshold > 1 {
		return fmt.Errorf("database.saturation_alert_threshold must be in (0,1]")
	}

	if c.Embedding.URL == "" {
		return fmt.Errorf("embedding.url is required")
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("embedding.timeout must be > 0")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be > 0")
	}

	if c.Tiers.WorkingCapacity <= 0 {
		return fmt.Errorf("tiers.working_capacity must be > 0")
	}

	// Auth signing secret: required, no default, >= 32 bytes. The engine
	// refuses to start without one (§4.6).
	if len(c.Auth.SigningSecret) < 32 {
		return fmt.Errorf("auth.signing_secret is required and must be >= 32 bytes")
	}
	for thumbprint, cert := range c.Auth.ClientCertificates {
		if cert.ClientID == "" {
			return fmt.Errorf("auth.client_certificates[%s].client_id is required", thumbprint)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json, text")
	}

	if c.Scheduler.Cadence <= 0 {
		return fmt.Errorf("scheduler.cadence must be > 0")
	}

	if c.HTTP.Enabled {
		if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
			return fmt.Errorf("http.port must be between 1 and 65535")
		}
	}

	weights := mathengine.Weights{
		Recency:    c.Math.WeightRecency,
		Importance: c.Math.WeightImportance,
		Relevance:  c.Math.WeightRelevance,
	}
	if !mathengine.ValidateWeights(weights) {
		return fmt.Errorf("math weights must sum to 1 (got %v)", weights)
	}

	return nil
}

// WatchRateLimit watches the config file for changes and invokes onChange
// with the freshly unmarshaled rate_limit section whenever it is saved,
// letting rate limits be retuned without a restart. Uses the same search
// path and env overrides as Load. The viper instance is not returned;
// fsnotify's watch goroutine lives until process exit.
func WatchRateLimit(configDir string, onChange func(RateLimitConfig)) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath("/etc/synapse")

	setDefaults(v)

	v.SetEnvPrefix("synapse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var rl RateLimitConfig
		if err := v.UnmarshalKey("rate_limit", &rl); err != nil {
			return
		}
		onChange(rl)
	})
	v.WatchConfig()
	return nil
}

// MathConfigValue builds a mathengine.Config from the loaded configuration:
// the weights are copied as configured, RecencyLambda falls back to the
// mathengine default when zero, and every other field takes its mathengine
// default.
func (c *Config) MathConfigValue() mathengine.Config {
	cfg := mathengine.DefaultConfig()
	cfg.Weights = mathengine.Weights{
		Recency:    c.Math.WeightRecency,
		Importance: c.Math.WeightImportance,
		Relevance:  c.Math.WeightRelevance,
	}
	if c.Math.RecencyLambda > 0 {
		cfg.RecencyLambda = c.Math.RecencyLambda
	}
	return cfg
}
