package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Garmin Connect web API.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Garmin    GarminConfig    `yaml:"garmin"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Database  DatabaseConfig  `yaml:"database"`
	Sync      SyncConfig      `yaml:"sync"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP API server settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	TLS      TLSConfig           `yaml:"tls"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// GarminConfig contains upstream Garmin Connect settings.
type GarminConfig struct {
	// Domain is the Garmin top-level domain: "garmin.com" or "garmin.cn".
	// The China domain is selected by the is_cn flag on login requests;
	// this value is the default for sessions resumed from the token store.
	Domain string `yaml:"domain"`

	// UserAgent is sent on all upstream requests.
	UserAgent string `yaml:"user_agent"`

	// RequestTimeout is the per-request timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// OAuthConsumer optionally pins the OAuth1 consumer credentials.
	// When empty they are fetched from the published consumer endpoint.
	OAuthConsumer OAuthConsumerConfig `yaml:"oauth_consumer"`
}

// OAuthConsumerConfig contains the Garmin OAuth1 consumer key pair.
type OAuthConsumerConfig struct {
	Key    string `yaml:"key"`
	Secret string `yaml:"secret"`
}

// TokensConfig contains Garmin token store settings.
type TokensConfig struct {
	// Path is the token store directory. The GARMINTOKENS environment
	// variable always overrides this value.
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SyncConfig contains background sync worker settings.
type SyncConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between sync runs in minutes.
	Interval int `yaml:"interval"`

	// Lookback is how many recent activities each run pages through.
	Lookback int `yaml:"lookback"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	// PingInterval is how often the server pings clients, in seconds.
	PingInterval int `yaml:"ping_interval"`

	// PongTimeout is how long to wait for a pong before dropping, in seconds.
	PongTimeout int `yaml:"pong_timeout"`

	// MaxMessageSize is the largest accepted client message in bytes.
	MaxMessageSize int `yaml:"max_message_size"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig contains bearer token settings for the wrapper's own API.
// When disabled all endpoints are open, matching the upstream wrapper's
// permissive default.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// PasswordHash is the Argon2id PHC hash of the API password exchanged
	// for a bearer token at /api/v1/auth/token.
	PasswordHash string `yaml:"password_hash"`

	// JWTSecret signs issued bearer tokens (HS256).
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the bearer token lifetime in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GARMINAPI_SECTION_KEY
// (for example GARMINAPI_SERVER_PORT, GARMINAPI_DATABASE_PATH).
// GARMINTOKENS is honoured verbatim for the token store path.
//
// A missing file is not an error: the service runs on defaults plus
// environment, which is how the container image is configured.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be parsed or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parsing config file: %w", unmarshalErr)
		}
	case os.IsNotExist(err):
		// Defaults + environment only
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultTokenPath returns the default Garmin token store location,
// matching the upstream client's ~/.garminconnect convention.
func DefaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".garminconnect"
	}
	return filepath.Join(home, ".garminconnect")
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 120,
				Idle:  60,
			},
		},
		Garmin: GarminConfig{
			Domain:         "garmin.com",
			UserAgent:      "GCM-iOS-5.7.2.1",
			RequestTimeout: 30,
		},
		Tokens: TokensConfig{
			Path: DefaultTokenPath(),
		},
		Database: DatabaseConfig{
			Path:        "./data/garminapi.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Sync: SyncConfig{
			Enabled:  false,
			Interval: 60,
			Lookback: 50,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "garminapi",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30,
			PongTimeout:    60,
			MaxMessageSize: 4096,
		},
		Security: SecurityConfig{
			Auth: AuthConfig{
				Enabled:  false,
				TokenTTL: 60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Token store: GARMINTOKENS is the contract shared with the upstream
	// Python client and the container image. It always wins.
	if v := os.Getenv("GARMINTOKENS"); v != "" {
		cfg.Tokens.Path = v
	}

	// Server
	if v := os.Getenv("GARMINAPI_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GARMINAPI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Garmin
	if v := os.Getenv("GARMINAPI_GARMIN_DOMAIN"); v != "" {
		cfg.Garmin.Domain = v
	}

	// Database
	if v := os.Getenv("GARMINAPI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Sync
	if v := os.Getenv("GARMINAPI_SYNC_ENABLED"); v != "" {
		cfg.Sync.Enabled = parseBool(v)
	}

	// MQTT
	if v := os.Getenv("GARMINAPI_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("GARMINAPI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GARMINAPI_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GARMINAPI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GARMINAPI_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
		cfg.InfluxDB.Enabled = true
	}
	if v := os.Getenv("GARMINAPI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("GARMINAPI_AUTH_PASSWORD_HASH"); v != "" {
		cfg.Security.Auth.PasswordHash = v
		cfg.Security.Auth.Enabled = true
	}
	if v := os.Getenv("GARMINAPI_AUTH_JWT_SECRET"); v != "" {
		cfg.Security.Auth.JWTSecret = v
	}

	// Logging
	if v := os.Getenv("GARMINAPI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// parseBool interprets common truthy strings ("1", "true", "yes", "on").
func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate checks the configuration for invalid or inconsistent values.
//
// Returns:
//   - error: Describing the first invalid setting found, or nil
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls requires cert_file and key_file")
		}
	}

	switch c.Garmin.Domain {
	case "garmin.com", "garmin.cn":
	default:
		return fmt.Errorf("garmin.domain must be garmin.com or garmin.cn, got %q", c.Garmin.Domain)
	}

	if c.Garmin.RequestTimeout <= 0 {
		return fmt.Errorf("garmin.request_timeout must be positive, got %d", c.Garmin.RequestTimeout)
	}

	if c.Tokens.Path == "" {
		return fmt.Errorf("tokens.path is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Sync.Enabled {
		if c.Sync.Interval <= 0 {
			return fmt.Errorf("sync.interval must be positive, got %d", c.Sync.Interval)
		}
		if c.Sync.Lookback <= 0 {
			return fmt.Errorf("sync.lookback must be positive, got %d", c.Sync.Lookback)
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			return fmt.Errorf("mqtt.broker.host is required when MQTT is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS)
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when InfluxDB is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.org and influxdb.bucket are required when InfluxDB is enabled")
		}
	}

	if c.Security.Auth.Enabled {
		if c.Security.Auth.PasswordHash == "" {
			return fmt.Errorf("security.auth.password_hash is required when auth is enabled")
		}
		if c.Security.Auth.JWTSecret == "" {
			return fmt.Errorf("security.auth.jwt_secret is required when auth is enabled")
		}
		if c.Security.Auth.TokenTTL <= 0 {
			return fmt.Errorf("security.auth.token_ttl must be positive, got %d", c.Security.Auth.TokenTTL)
		}
	}

	return nil
}

// GetReadTimeout returns the HTTP read timeout as a time.Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a time.Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a time.Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// GetRequestTimeout returns the upstream Garmin request timeout as a time.Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Garmin.RequestTimeout) * time.Second
}

// GetSyncInterval returns the sync worker interval as a time.Duration.
func (c *Config) GetSyncInterval() time.Duration {
	return time.Duration(c.Sync.Interval) * time.Minute
}
