package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultTreasuryAddress receives storage purchase proceeds when no address
// is configured.
const DefaultTreasuryAddress = "0x00000000000000000000000000000000000000fe"

// AppConfig carries process-level options resolved from command-line flags.
type AppConfig struct {
	ConfigPath string // Path to the YAML configuration file, may be empty.
}

// Config is the root configuration for the gitledger server. Values are
// layered: built-in defaults, then the YAML file, then environment
// variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Commits  CommitConfig   `yaml:"commits"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host" env:"GITLEDGER_HOST"`
	Port int    `yaml:"port" env:"GITLEDGER_PORT"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"GITLEDGER_DATABASE_DSN"`
}

// RedisConfig holds the event publisher connection settings. An empty Addr
// disables publishing.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"GITLEDGER_REDIS_ADDR"`
	Password string `yaml:"password" env:"GITLEDGER_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"GITLEDGER_REDIS_DB"`
}

// JWTConfig holds session token signing settings.
type JWTConfig struct {
	Secret string        `yaml:"-" env:"GITLEDGER_JWT_SECRET"`
	Expiry time.Duration `yaml:"-" env:"GITLEDGER_JWT_EXPIRY"`
}

// UnmarshalYAML decodes the expiry from a duration string such as "24h".
func (c *JWTConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Secret string `yaml:"secret"`
		Expiry string `yaml:"expiry"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Secret = raw.Secret
	if trimmed := strings.TrimSpace(raw.Expiry); trimmed != "" {
		parsed, err := time.ParseDuration(trimmed)
		if err != nil {
			return fmt.Errorf("config: jwt expiry: %w", err)
		}
		c.Expiry = parsed
	}
	return nil
}

// LogConfig holds logging settings. An empty File logs to stderr only.
type LogConfig struct {
	Level      string `yaml:"level" env:"GITLEDGER_LOG_LEVEL"`
	File       string `yaml:"file" env:"GITLEDGER_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"GITLEDGER_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"GITLEDGER_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"GITLEDGER_LOG_MAX_AGE_DAYS"`
}

// PricingConfig holds the storage price schedule. Purchases are charged in
// whole units: ceil(bytes / BytesPerUnit) * PricePerUnit, never less than
// one unit's price for a non-zero purchase.
type PricingConfig struct {
	BytesPerUnit    int64  `yaml:"bytes_per_unit" env:"GITLEDGER_PRICING_BYTES_PER_UNIT"`
	PricePerUnit    int64  `yaml:"price_per_unit" env:"GITLEDGER_PRICING_PRICE_PER_UNIT"`
	TreasuryAddress string `yaml:"treasury_address" env:"GITLEDGER_PRICING_TREASURY_ADDRESS"`
}

// CommitConfig holds commit creation behavior toggles.
type CommitConfig struct {
	AutoDebit             bool `yaml:"auto_debit" env:"GITLEDGER_COMMITS_AUTO_DEBIT"`
	AllowCrossRepoParents bool `yaml:"allow_cross_repo_parents" env:"GITLEDGER_COMMITS_ALLOW_CROSS_REPO_PARENTS"`
}

// LedgerConfig holds storage accounting behavior toggles.
type LedgerConfig struct {
	AllowDelegatedConsume bool `yaml:"allow_delegated_consume" env:"GITLEDGER_LEDGER_ALLOW_DELEGATED_CONSUME"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8318,
		},
		Database: DatabaseConfig{
			DSN: "gitledger.db",
		},
		JWT: JWTConfig{
			Expiry: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Pricing: PricingConfig{
			BytesPerUnit:    1048576,
			PricePerUnit:    1,
			TreasuryAddress: DefaultTreasuryAddress,
		},
		Commits: CommitConfig{
			AutoDebit: true,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path when
// one is given, and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if trimmed := strings.TrimSpace(path); trimmed != "" {
		data, errRead := os.ReadFile(trimmed)
		if errRead != nil {
			return nil, fmt.Errorf("config: read %s: %w", trimmed, errRead)
		}
		if errYAML := yaml.Unmarshal(data, cfg); errYAML != nil {
			return nil, fmt.Errorf("config: parse %s: %w", trimmed, errYAML)
		}
	}

	if errEnv := env.Parse(cfg); errEnv != nil {
		return nil, fmt.Errorf("config: parse env: %w", errEnv)
	}

	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

// Validate checks invariants the rest of the process relies on.
func (c *Config) Validate() error {
	if c.Pricing.BytesPerUnit <= 0 {
		return fmt.Errorf("config: pricing bytes_per_unit must be positive, got %d", c.Pricing.BytesPerUnit)
	}
	if c.Pricing.PricePerUnit < 0 {
		return fmt.Errorf("config: pricing price_per_unit must not be negative, got %d", c.Pricing.PricePerUnit)
	}
	if strings.TrimSpace(c.Pricing.TreasuryAddress) == "" {
		return fmt.Errorf("config: pricing treasury_address must not be empty")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database dsn must not be empty")
	}
	if c.JWT.Expiry <= 0 {
		return fmt.Errorf("config: jwt expiry must be positive, got %s", c.JWT.Expiry)
	}
	return nil
}

// ResolveConfigPath picks the configuration file path: the explicit flag
// value, then $GITLEDGER_CONFIG, then config.yaml in the working directory
// when it exists. Returns "" when no file should be loaded.
func ResolveConfigPath(explicit string) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed
	}
	if fromEnv := strings.TrimSpace(os.Getenv("GITLEDGER_CONFIG")); fromEnv != "" {
		return fromEnv
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
