package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for arc-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Redis     RedisConfig     `yaml:"redis"`
	Agent     AgentConfig     `yaml:"agent"`
	Usage     UsageConfig     `yaml:"usage"`
	Datasets  DatasetsConfig  `yaml:"datasets"`

	// SchemaCacheTTL bounds how long a derived table schema is reused.
	SchemaCacheTTL time.Duration `yaml:"schema_cache_ttl" env:"SCHEMA_CACHE_TTL" env-default:"10m"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// Audience, when set, is required in the aud claim of every token.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:""`
}

// DatabaseConfig holds the engine PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"arc"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"arc_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// Warehouse types.
const (
	WarehousePostgres = "postgres"
	WarehouseMSSQL    = "mssql"
)

// WarehouseConfig locates the database holding extracted data tables.
// An empty Host with type postgres reuses the engine database.
type WarehouseConfig struct {
	Type             string        `yaml:"type" env:"WAREHOUSE_TYPE" env-default:"postgres"`
	Host             string        `yaml:"host" env:"WAREHOUSE_HOST" env-default:""`
	Port             int           `yaml:"port" env:"WAREHOUSE_PORT" env-default:"0"`
	User             string        `yaml:"user" env:"WAREHOUSE_USER" env-default:""`
	Password         string        `yaml:"-" env:"WAREHOUSE_PASSWORD"` // Secret - not in YAML
	Database         string        `yaml:"database" env:"WAREHOUSE_DATABASE" env-default:""`
	Schema           string        `yaml:"schema" env:"WAREHOUSE_SCHEMA" env-default:"warehouse"`
	SSLMode          string        `yaml:"ssl_mode" env:"WAREHOUSE_SSLMODE" env-default:"disable"`
	MaxConnections   int32         `yaml:"max_connections" env:"WAREHOUSE_MAX_CONNECTIONS" env-default:"10"`
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"WAREHOUSE_STATEMENT_TIMEOUT" env-default:"30s"`
}

// SharesEngineDatabase reports whether data tables live in the engine database.
func (c *WarehouseConfig) SharesEngineDatabase() bool {
	return c.Type == WarehousePostgres && c.Host == ""
}

// RedisConfig configures the optional conversation thread store.
// An empty Host keeps threads in PostgreSQL.
type RedisConfig struct {
	Host      string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port      int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB        int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string        `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"arc:thread:"`
	ThreadTTL time.Duration `yaml:"thread_ttl" env:"REDIS_THREAD_TTL" env-default:"720h"`
}

// Enabled reports whether Redis is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Agent providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// AgentConfig configures the analysis agent model provider.
type AgentConfig struct {
	Provider    string        `yaml:"provider" env:"AGENT_PROVIDER" env-default:"openai"`
	Endpoint    string        `yaml:"endpoint" env:"AGENT_ENDPOINT" env-default:""`
	Model       string        `yaml:"model" env:"AGENT_MODEL" env-default:"gpt-4o-mini"`
	APIKey      string        `yaml:"-" env:"AGENT_API_KEY"` // Secret - not in YAML
	Temperature float64       `yaml:"temperature" env:"AGENT_TEMPERATURE" env-default:"0.1"`
	MaxTokens   int           `yaml:"max_tokens" env:"AGENT_MAX_TOKENS" env-default:"2048"`
	MaxRetries  int           `yaml:"max_retries" env:"AGENT_MAX_RETRIES" env-default:"2"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"AGENT_RETRY_DELAY" env-default:"500ms"`
	Timeout     time.Duration `yaml:"timeout" env:"AGENT_TIMEOUT" env-default:"60s"`
}

// UsageConfig bounds token consumption per user over a rolling window.
type UsageConfig struct {
	TokenLimit int `yaml:"token_limit" env:"USAGE_TOKEN_LIMIT" env-default:"200000"`
	WindowDays int `yaml:"window_days" env:"USAGE_WINDOW_DAYS" env-default:"30"`
}

// Window returns the rolling window as a duration.
func (c *UsageConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// DatasetsConfig bounds uploaded data tables.
type DatasetsConfig struct {
	RowLimit    int `yaml:"row_limit" env:"DATASET_ROW_LIMIT" env-default:"10000"`
	ColumnLimit int `yaml:"column_limit" env:"DATASET_COLUMN_LIMIT" env-default:"50"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error; environment variables alone can configure
// the service. Secrets (PGPASSWORD, AGENT_API_KEY, ...) come only from the environment.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat config.yaml: %w", err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Warehouse.Host = ResolveHostForDocker(cfg.Warehouse.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Warehouse.Type {
	case WarehousePostgres:
	case WarehouseMSSQL:
		if c.Warehouse.Host == "" {
			return fmt.Errorf("warehouse.host is required for warehouse type %q", c.Warehouse.Type)
		}
	default:
		return fmt.Errorf("unsupported warehouse type %q", c.Warehouse.Type)
	}

	switch c.Agent.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported agent provider %q", c.Agent.Provider)
	}
	if c.Agent.MaxRetries < 0 {
		return fmt.Errorf("agent.max_retries must not be negative")
	}

	if c.Usage.TokenLimit <= 0 {
		return fmt.Errorf("usage.token_limit must be positive")
	}
	if c.Usage.WindowDays <= 0 {
		return fmt.Errorf("usage.window_days must be positive")
	}
	if c.Datasets.RowLimit <= 0 || c.Datasets.ColumnLimit <= 0 {
		return fmt.Errorf("datasets row and column limits must be positive")
	}

	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth.jwks_endpoints is required when verification is enabled")
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ConnectionString returns the driver DSN for the warehouse. Callers check
// SharesEngineDatabase first; this is only meaningful for a separate warehouse.
func (c *WarehouseConfig) ConnectionString() string {
	switch c.Type {
	case WarehouseMSSQL:
		port := c.Port
		if port == 0 {
			port = 1433
		}
		u := &url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(c.User, c.Password),
			Host:   fmt.Sprintf("%s:%d", c.Host, port),
		}
		q := url.Values{}
		if c.Database != "" {
			q.Set("database", c.Database)
		}
		u.RawQuery = q.Encode()
		return u.String()
	default:
		port := c.Port
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, port, c.User, c.Password, c.Database, c.SSLMode,
		)
	}
}
