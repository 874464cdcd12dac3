package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the SDK and the dispatch relay.
type Config struct {
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Flow          FlowConfig          `mapstructure:"flow"`
	Relay         RelayConfig         `mapstructure:"relay"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

// GatewayConfig holds the GraphQL gateway connection settings.
type GatewayConfig struct {
	URL                     string        `mapstructure:"url"`
	Environment             string        `mapstructure:"environment"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	CreateRetries           uint          `mapstructure:"create_retries"`
	CreateRetryDelay        time.Duration `mapstructure:"create_retry_delay"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	UseLegacyQRCodeMutation bool          `mapstructure:"use_legacy_qr_code_mutation"`
}

// FlowConfig holds payment flow tuning.
type FlowConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ConfirmationDelay  time.Duration `mapstructure:"confirmation_delay"`
	CloseCheckInterval time.Duration `mapstructure:"close_check_interval"`
	PopupWidth         int           `mapstructure:"popup_width"`
	PopupHeight        int           `mapstructure:"popup_height"`
}

// RelayConfig holds the dispatch relay HTTP server settings.
type RelayConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ResultTTL       time.Duration `mapstructure:"result_ttl"`
	LongPollTimeout time.Duration `mapstructure:"long_poll_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration for the relay.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// RedisConfig holds Redis configuration for the relay store.
type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// ObservabilityConfig holds logging and tracing configuration.
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FRAMELINK")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/framelink")

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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields have valid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Gateway.URL == "" {
		errs = append(errs, fmt.Errorf("gateway.url is required"))
	}
	if c.Gateway.Environment != "SANDBOX" && c.Gateway.Environment != "PRODUCTION" {
		errs = append(errs, fmt.Errorf("gateway.environment must be SANDBOX or PRODUCTION, got %q", c.Gateway.Environment))
	}
	if c.Flow.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("flow.poll_interval must be positive"))
	}
	if c.Flow.ConfirmationDelay < 0 {
		errs = append(errs, fmt.Errorf("flow.confirmation_delay must not be negative"))
	}
	if c.Flow.CloseCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("flow.close_check_interval must be positive"))
	}
	if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
		errs = append(errs, fmt.Errorf("relay.port must be between 1 and 65535, got %d", c.Relay.Port))
	}
	if c.Relay.ResultTTL <= 0 {
		errs = append(errs, fmt.Errorf("relay.result_ttl must be positive"))
	}
	if c.Redis.Enabled && c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Gateway defaults
	v.SetDefault("gateway.url", "https://payments.sandbox.example.com/graphql")
	v.SetDefault("gateway.environment", "SANDBOX")
	v.SetDefault("gateway.request_timeout", "10s")
	v.SetDefault("gateway.create_retries", 3)
	v.SetDefault("gateway.create_retry_delay", "500ms")
	v.SetDefault("gateway.circuit_breaker_threshold", 10)
	v.SetDefault("gateway.circuit_breaker_timeout", "30s")
	v.SetDefault("gateway.use_legacy_qr_code_mutation", false)

	// Flow defaults
	v.SetDefault("flow.poll_interval", "1s")
	v.SetDefault("flow.confirmation_delay", "2s")
	v.SetDefault("flow.close_check_interval", "500ms")
	v.SetDefault("flow.popup_width", 400)
	v.SetDefault("flow.popup_height", 570)

	// Relay defaults
	v.SetDefault("relay.port", 8080)
	v.SetDefault("relay.read_timeout", "15s")
	v.SetDefault("relay.write_timeout", "35s")
	v.SetDefault("relay.shutdown_timeout", "30s")
	v.SetDefault("relay.result_ttl", "15m")
	v.SetDefault("relay.long_poll_timeout", "30s")
	v.SetDefault("relay.cors.allowed_origins", []string{"*"})
	v.SetDefault("relay.cors.allow_credentials", false)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Instance ID
	v.SetDefault("instance_id", "framelink-relay-1")
}

// RedisAddr returns the Redis address.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
