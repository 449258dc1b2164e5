package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	// MaxMessageBytes bounds WebSocket frames and REST bodies.
	MaxMessageBytes int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ClientBuffer    int      `mapstructure:"client_buffer" yaml:"client_buffer"`
	AdminPassword   string   `mapstructure:"admin_password" yaml:"admin_password"`

	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	JWT       JWTConfig       `mapstructure:"jwt" yaml:"jwt"`
	Geo       GeoConfig       `mapstructure:"geo" yaml:"geo"`
	NATS      NATSConfig      `mapstructure:"nats" yaml:"nats"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver        string `mapstructure:"driver" yaml:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// JWTConfig configures session tokens. PreviousKeys maps retired key ids
// to their secrets; they are accepted for verification only.
type JWTConfig struct {
	Secret       string            `mapstructure:"secret" yaml:"secret"`
	KeyID        string            `mapstructure:"key_id" yaml:"key_id"`
	PreviousKeys map[string]string `mapstructure:"previous_keys" yaml:"previous_keys"`
	TTL          time.Duration     `mapstructure:"ttl" yaml:"ttl"`
	Issuer       string            `mapstructure:"issuer" yaml:"issuer"`
}

// GeoConfig configures IP location lookups. An empty RedisAddr disables
// the shared cache.
type GeoConfig struct {
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// NATSConfig configures the activity feed. An empty URL disables it.
type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// RateLimitConfig bounds inbound chat messages per connection.
type RateLimitConfig struct {
	MessagesPerSecond float64 `mapstructure:"messages_per_second" yaml:"messages_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		MaxMessageBytes:   5 << 20,
		AllowedOrigins:    []string{"http://localhost:3000"},
		ClientBuffer:      64,
		Store: StoreConfig{
			Driver:        "sqlite",
			SQLitePath:    "roomchat.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "roomchat",
		},
		JWT: JWTConfig{
			Secret: "change-me",
			KeyID:  "k1",
			TTL:    time.Hour,
			Issuer: "roomchat",
		},
		Geo: GeoConfig{
			Endpoint: "https://ipapi.co",
			Timeout:  3 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		NATS: NATSConfig{
			SubjectPrefix: "roomchat.activity",
		},
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 5,
			Burst:             10,
		},
	}
}
