package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Jobs          JobsConfig          `mapstructure:"jobs"`
	Sweeper       SweeperConfig       `mapstructure:"sweeper"`
	GiftCard      GiftCardConfig      `mapstructure:"giftcard"`
	Invoice       InvoiceConfig       `mapstructure:"invoice"`
	Mail          MailConfig          `mapstructure:"mail"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// GatewayConfig configures the push-payment provider.
type GatewayConfig struct {
	Mock                      bool          `mapstructure:"mock"`
	BaseURL                   string        `mapstructure:"base_url"`
	APIKey                    string        `mapstructure:"api_key"`
	MerchantAlias             string        `mapstructure:"merchant_alias"`
	CallbackURL               string        `mapstructure:"callback_url"`
	CallbackSecret            string        `mapstructure:"callback_secret"`
	SkipSignatureVerification bool          `mapstructure:"skip_signature_verification"`
	Timeout                   time.Duration `mapstructure:"timeout"`
	MaxRetries                int           `mapstructure:"max_retries"`
	RetryDelay                time.Duration `mapstructure:"retry_delay"`
	CircuitBreakerThreshold   int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout     time.Duration `mapstructure:"circuit_breaker_timeout"`
	PaymentExpiry             time.Duration `mapstructure:"payment_expiry"`
	Currency                  string        `mapstructure:"currency"`
}

// JobsConfig configures the notification job queue workers.
type JobsConfig struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BaseBackoff   time.Duration `mapstructure:"base_backoff"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

// SweeperConfig configures expiry of unanswered push payments.
type SweeperConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

type GiftCardConfig struct {
	Validity time.Duration `mapstructure:"validity"`
}

// InvoiceConfig is the issuer block printed on generated invoices.
type InvoiceConfig struct {
	IssuerName      string `mapstructure:"issuer_name"`
	IssuerOrgNumber string `mapstructure:"issuer_org_number"`
	IssuerAddress   string `mapstructure:"issuer_address"`
	BankAccount     string `mapstructure:"bank_account"`
	DueDays         int    `mapstructure:"due_days"`
}

type MailConfig struct {
	Transport string        `mapstructure:"transport"`
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	From      string        `mapstructure:"from"`
	FromName  string        `mapstructure:"from_name"`
	TLSPolicy string        `mapstructure:"tls_policy"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Backend    string           `mapstructure:"backend"`
	Cloudinary CloudinaryConfig `mapstructure:"cloudinary"`
}

type CloudinaryConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Folder    string `mapstructure:"folder"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("STUDIOPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/studiopay")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Env == "" {
		cfg.Env = os.Getenv("ENV")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// IsProduction reports whether production-only checks apply.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	// Gateway
	if !c.Gateway.Mock && c.Gateway.BaseURL == "" {
		errs = append(errs, fmt.Errorf("gateway.base_url is required unless gateway.mock is set"))
	}
	if c.Gateway.Timeout <= 0 || c.Gateway.Timeout > 30*time.Second {
		errs = append(errs, fmt.Errorf("gateway.timeout must be between 0 and 30s"))
	}
	if c.Gateway.CallbackSecret == "" && !c.Gateway.SkipSignatureVerification {
		errs = append(errs, fmt.Errorf("gateway.callback_secret is required unless gateway.skip_signature_verification is explicitly enabled"))
	}
	if c.Gateway.PaymentExpiry <= 0 {
		errs = append(errs, fmt.Errorf("gateway.payment_expiry must be positive"))
	}
	if len(c.Gateway.Currency) != 3 {
		errs = append(errs, fmt.Errorf("gateway.currency must be a 3-letter ISO code"))
	}

	// Jobs
	if c.Jobs.Workers <= 0 {
		errs = append(errs, fmt.Errorf("jobs.workers must be positive"))
	}
	if c.Jobs.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("jobs.batch_size must be positive"))
	}
	if c.Jobs.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("jobs.poll_interval must be positive"))
	}
	if c.Jobs.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("jobs.max_retries must not be negative"))
	}
	if c.Jobs.BaseBackoff <= 0 {
		errs = append(errs, fmt.Errorf("jobs.base_backoff must be positive"))
	}
	if c.Jobs.StaleAfter <= c.Jobs.SendTimeout {
		errs = append(errs, fmt.Errorf("jobs.stale_after must be greater than jobs.send_timeout"))
	}

	if c.Sweeper.Enabled && c.Sweeper.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("sweeper.lock_ttl must be positive"))
	}
	if c.GiftCard.Validity <= 0 {
		errs = append(errs, fmt.Errorf("giftcard.validity must be positive"))
	}

	switch c.Mail.Transport {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			errs = append(errs, fmt.Errorf("mail.host is required for smtp transport"))
		}
		if c.Mail.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("mail.timeout must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.transport must be smtp or log, got %q", c.Mail.Transport))
	}
	if c.Mail.From == "" {
		errs = append(errs, fmt.Errorf("mail.from is required"))
	}

	switch c.Storage.Backend {
	case "postgres":
	case "cloudinary":
		if c.Storage.Cloudinary.CloudName == "" || c.Storage.Cloudinary.APIKey == "" || c.Storage.Cloudinary.APISecret == "" {
			errs = append(errs, fmt.Errorf("storage.cloudinary credentials are required for cloudinary backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be postgres or cloudinary, got %q", c.Storage.Backend))
	}

	// Production environment checks
	if c.IsProduction() {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Gateway.SkipSignatureVerification {
			errs = append(errs, fmt.Errorf("gateway.skip_signature_verification is not allowed in production"))
		}
		if c.Gateway.CallbackSecret == "" {
			errs = append(errs, fmt.Errorf("gateway.callback_secret required in production"))
		}
		if c.Gateway.Mock {
			errs = append(errs, fmt.Errorf("gateway.mock is not allowed in production"))
		}
	}

	// JWT secret length validation
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "studiopay")
	v.SetDefault("database.database", "studiopay")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Gateway defaults
	v.SetDefault("gateway.mock", false)
	v.SetDefault("gateway.timeout", "10s")
	v.SetDefault("gateway.max_retries", 3)
	v.SetDefault("gateway.retry_delay", "500ms")
	v.SetDefault("gateway.circuit_breaker_threshold", 5)
	v.SetDefault("gateway.circuit_breaker_timeout", "30s")
	v.SetDefault("gateway.payment_expiry", "15m")
	v.SetDefault("gateway.currency", "SEK")
	v.SetDefault("gateway.skip_signature_verification", false)

	// Job queue defaults
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.batch_size", 10)
	v.SetDefault("jobs.poll_interval", "5s")
	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("jobs.base_backoff", "30s")
	v.SetDefault("jobs.max_backoff", "6h")
	v.SetDefault("jobs.stale_after", "5m")
	v.SetDefault("jobs.reap_interval", "1m")
	v.SetDefault("jobs.send_timeout", "30s")
	v.SetDefault("jobs.consumer_group", "notification-workers")
	v.SetDefault("jobs.block_duration", "2s")

	// Sweeper defaults
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", "1m")
	v.SetDefault("sweeper.batch_size", 50)
	v.SetDefault("sweeper.lock_ttl", "2m")

	v.SetDefault("giftcard.validity", "8760h")

	v.SetDefault("invoice.due_days", 30)

	// Mail defaults
	v.SetDefault("mail.transport", "log")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@studiopay.local")
	v.SetDefault("mail.from_name", "Studio")
	v.SetDefault("mail.tls_policy", "opportunistic")
	v.SetDefault("mail.timeout", "15s")

	v.SetDefault("storage.backend", "postgres")
	v.SetDefault("storage.cloudinary.folder", "studiopay/documents")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Auth defaults
	v.SetDefault("auth.jwt_expiry", "24h")

	// Instance ID
	v.SetDefault("instance_id", "studiopay-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL returns the URL form used by migrations.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
