// Package config loads service configuration from (in increasing precedence)
// defaults, an optional config.yaml, a .env file and VETO_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	id "veto/pkg/domain"
	vstrings "veto/pkg/platform/strings"
)

// EnvPrefix prefixes every environment variable, e.g. VETO_DATABASE_URL.
const EnvPrefix = "VETO"

// Server captures HTTP server level configuration.
type Server struct {
	Addr               string
	CORSAllowedOrigins []string
	JWTSigningKey      string
	JWTIssuer          string
	AdminToken         string
	ShutdownTimeout    time.Duration
}

// Database selects the persistence backend. An empty URL selects the
// in-memory backend.
type Database struct {
	URL         string
	TxTimeout   time.Duration
	AutoMigrate bool
}

// Signing holds the receipt signing key (base64 Ed25519 seed or private key).
// An empty key makes the server generate an ephemeral one.
type Signing struct {
	PrivateKey string
}

// Tenant names the organization used when a request omits org_id.
type Tenant struct {
	DefaultOrgID   id.OrgID
	DefaultOrgName string
}

// RedisConfig configures the orphan tombstone cache. Empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TombstoneTTL time.Duration
}

// KafkaConfig configures the receipt stream. No brokers disables it.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Log configures the slog handler.
type Log struct {
	Level  string
	Format string
}

// Config is the full service configuration.
type Config struct {
	Server          Server
	Database        Database
	Signing         Signing
	Tenant          Tenant
	Redis           RedisConfig
	Kafka           KafkaConfig
	Log             Log
	ResolveReceipts bool
}

// DefaultOrgID is the tenant seeded at startup when none is configured.
const DefaultOrgID = "00000000-0000-0000-0000-000000000001"

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("tx_timeout", "5s")
	v.SetDefault("auto_migrate", true)
	v.SetDefault("signing_private_key", "")
	v.SetDefault("default_org_id", DefaultOrgID)
	v.SetDefault("default_org_name", "Default Organization")
	v.SetDefault("resolve_receipts", true)
	v.SetDefault("redis_url", "")
	v.SetDefault("redis_pool_size", 10)
	v.SetDefault("redis_min_idle_conns", 2)
	v.SetDefault("redis_dial_timeout", "2s")
	v.SetDefault("redis_read_timeout", "500ms")
	v.SetDefault("redis_write_timeout", "500ms")
	v.SetDefault("orphan_tombstone_ttl", "24h")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "veto.receipts")
	v.SetDefault("kafka_client_id", "veto")
	v.SetDefault("cors_allowed_origins", "http://localhost:3000")
	v.SetDefault("jwt_signing_key", "")
	v.SetDefault("jwt_issuer", "veto")
	v.SetDefault("admin_token", "")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads configuration. configPath is searched for config.yaml; envFiles
// default to ".env". Missing files are not an error.
func Load(configPath string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already present in the environment.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	orgID, err := id.ParseOrgID(v.GetString("default_org_id"))
	if err != nil {
		return nil, fmt.Errorf("default_org_id: %w", err)
	}

	cfg := &Config{
		Server: Server{
			Addr:               v.GetString("addr"),
			CORSAllowedOrigins: stringList(v, "cors_allowed_origins"),
			JWTSigningKey:      v.GetString("jwt_signing_key"),
			JWTIssuer:          v.GetString("jwt_issuer"),
			AdminToken:         v.GetString("admin_token"),
			ShutdownTimeout:    v.GetDuration("shutdown_timeout"),
		},
		Database: Database{
			URL:         v.GetString("database_url"),
			TxTimeout:   v.GetDuration("tx_timeout"),
			AutoMigrate: v.GetBool("auto_migrate"),
		},
		Signing: Signing{PrivateKey: v.GetString("signing_private_key")},
		Tenant: Tenant{
			DefaultOrgID:   orgID,
			DefaultOrgName: strings.TrimSpace(v.GetString("default_org_name")),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis_url"),
			PoolSize:     v.GetInt("redis_pool_size"),
			MinIdleConns: v.GetInt("redis_min_idle_conns"),
			DialTimeout:  v.GetDuration("redis_dial_timeout"),
			ReadTimeout:  v.GetDuration("redis_read_timeout"),
			WriteTimeout: v.GetDuration("redis_write_timeout"),
			TombstoneTTL: v.GetDuration("orphan_tombstone_ttl"),
		},
		Kafka: KafkaConfig{
			Brokers:  stringList(v, "kafka_brokers"),
			Topic:    v.GetString("kafka_topic"),
			ClientID: v.GetString("kafka_client_id"),
		},
		Log: Log{
			Level:  strings.ToLower(v.GetString("log_level")),
			Format: strings.ToLower(v.GetString("log_format")),
		},
		ResolveReceipts: v.GetBool("resolve_receipts"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Database.TxTimeout <= 0 {
		errs = append(errs, errors.New("tx_timeout must be positive"))
	}
	if c.Tenant.DefaultOrgName == "" {
		errs = append(errs, errors.New("default_org_name is required"))
	}
	if c.Redis.URL != "" && c.Redis.TombstoneTTL <= 0 {
		errs = append(errs, errors.New("orphan_tombstone_ttl must be positive when redis is enabled"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka_topic is required when kafka is enabled"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}

// stringList accepts a YAML list or a comma-separated string.
func stringList(v *viper.Viper, key string) []string {
	switch val := v.Get(key).(type) {
	case []any:
		raw := make([]string, 0, len(val))
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
		return vstrings.DedupeAndTrim(raw)
	case []string:
		return vstrings.DedupeAndTrim(val)
	default:
		return vstrings.SplitList(v.GetString(key))
	}
}
