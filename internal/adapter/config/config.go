// Package config provides configuration management for the condition
// worker. It supports environment variables, config files (YAML/JSON), and
// defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the condition worker.
type Config struct {
	// Environment is the deployment environment (development, staging, production)
	Environment string `mapstructure:"environment"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// License key material
	License LicenseConfig `mapstructure:"license"`

	// HTTP server configuration (health and metrics only)
	HTTP HTTPConfig `mapstructure:"http"`

	// MQTT configuration for condition events
	MQTT MQTTConfig `mapstructure:"mqtt"`

	// Modbus configuration
	Modbus ModbusConfig `mapstructure:"modbus"`

	// Polling configuration
	Polling PollingConfig `mapstructure:"polling"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LicenseConfig holds the AES key material used to decrypt license blobs.
// The blob itself lives in the database configuration row.
type LicenseConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	IV        string `mapstructure:"iv"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// MQTTConfig holds MQTT client configuration. An empty broker URL disables
// event publishing.
type MQTTConfig struct {
	BrokerURL      string        `mapstructure:"broker_url"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            byte          `mapstructure:"qos"`
	Retain         bool          `mapstructure:"retain"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	TLSCertFile    string        `mapstructure:"tls_cert_file"`
	TLSKeyFile     string        `mapstructure:"tls_key_file"`
	TLSCAFile      string        `mapstructure:"tls_ca_file"`
}

// ModbusConfig holds Modbus gateway pool configuration.
type ModbusConfig struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ConnectAttempts   int           `mapstructure:"connect_attempts"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// PollingConfig holds polling scheduler configuration.
type PollingConfig struct {
	DefaultLogFreqMinutes int           `mapstructure:"default_log_freq_minutes"`
	RetryDelay            time.Duration `mapstructure:"retry_delay"`
	InterSensorDelay      time.Duration `mapstructure:"inter_sensor_delay"`
	CycleYield            time.Duration `mapstructure:"cycle_yield"`
	WatcherInterval       time.Duration `mapstructure:"watcher_interval"`
	DailyCronExpr         string        `mapstructure:"daily_cron_expr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	TimeFormat string `mapstructure:"time_format"`
}

// Load loads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/condition-worker")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, will use defaults and env vars
	}

	v.SetEnvPrefix("WORKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")

	// HTTP
	v.SetDefault("http.port", 9090)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	// MQTT
	v.SetDefault("mqtt.broker_url", "")
	v.SetDefault("mqtt.client_id", "condition-worker")
	v.SetDefault("mqtt.topic_prefix", "machines")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", true)
	v.SetDefault("mqtt.keep_alive", 30*time.Second)
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("mqtt.reconnect_delay", 5*time.Second)
	v.SetDefault("mqtt.publish_timeout", 5*time.Second)

	// Modbus
	v.SetDefault("modbus.request_timeout", 5*time.Second)
	v.SetDefault("modbus.connect_attempts", 5)
	v.SetDefault("modbus.connect_retry_delay", 2*time.Second)

	// Polling
	v.SetDefault("polling.default_log_freq_minutes", 15)
	v.SetDefault("polling.retry_delay", 5*time.Second)
	v.SetDefault("polling.inter_sensor_delay", 50*time.Millisecond)
	v.SetDefault("polling.cycle_yield", 100*time.Millisecond)
	v.SetDefault("polling.watcher_interval", 60*time.Second)
	v.SetDefault("polling.daily_cron_expr", "0 1 * * *")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)
}

// bindEnvVars binds environment variables to config keys.
func bindEnvVars(v *viper.Viper) {
	// Database
	_ = v.BindEnv("database.url", "DATABASE_URL")

	// License
	_ = v.BindEnv("license.secret_key", "LICENSE_SECRET_KEY")
	_ = v.BindEnv("license.iv", "LICENSE_IV")

	// MQTT
	_ = v.BindEnv("mqtt.broker_url", "MQTT_BROKER_URL")
	_ = v.BindEnv("mqtt.username", "MQTT_USERNAME")
	_ = v.BindEnv("mqtt.password", "MQTT_PASSWORD")
	_ = v.BindEnv("mqtt.client_id", "MQTT_CLIENT_ID")

	// General
	_ = v.BindEnv("environment", "ENVIRONMENT")

	// HTTP
	_ = v.BindEnv("http.port", "HTTP_PORT")

	// Logging
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required (DATABASE_URL)")
	}
	if c.License.SecretKey == "" {
		return fmt.Errorf("license secret key is required (LICENSE_SECRET_KEY)")
	}
	if c.License.IV == "" {
		return fmt.Errorf("license IV is required (LICENSE_IV)")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Polling.DefaultLogFreqMinutes <= 0 {
		return fmt.Errorf("default log frequency must be positive")
	}
	if c.Modbus.ConnectAttempts <= 0 {
		return fmt.Errorf("modbus connect attempts must be positive")
	}
	return nil
}
