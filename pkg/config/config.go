package config

import (
	"fmt"
	"time"

	"socialchat-backend/pkg/env"
)

// Config holds all configuration for the chat service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	JWT       JWTConfig
	Log       LogConfig
	Chat      ChatConfig
	Crypto    CryptoConfig
	Lockout   LockoutConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Environment    string // development, staging, production
	ServiceName    string
	AllowedOrigins []string
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// CassandraConfig holds Cassandra configuration, only used when Chat.MessageStore is "cassandra"
type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Consistency string
	Timeout     time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// ChatConfig holds chat channel configuration
type ChatConfig struct {
	HandshakeTimeout time.Duration
	Fanout           string // local, redis
	MessageStore     string // cockroach, cassandra
}

// CryptoConfig holds the argon2id parameters used to wrap new private keys
type CryptoConfig struct {
	KDFMemoryKiB  uint32
	KDFIterations uint32
	KDFThreads    uint8
}

// LockoutConfig holds private key unlock throttling
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

const (
	FanoutLocal = "local"
	FanoutRedis = "redis"

	MessageStoreCockroach = "cockroach"
	MessageStoreCassandra = "cassandra"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8082),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "chat-service"),
			AllowedOrigins: env.GetSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "socialchat"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Cassandra: CassandraConfig{
			Hosts:       env.GetSlice("CASSANDRA_HOSTS", []string{"localhost"}),
			Keyspace:    env.GetString("CASSANDRA_KEYSPACE", "socialchat"),
			Consistency: env.GetString("CASSANDRA_CONSISTENCY", "QUORUM"),
			Timeout:     env.GetDuration("CASSANDRA_TIMEOUT", 600*time.Millisecond),
		},
		JWT: JWTConfig{
			Secret:            env.GetStringFromFile("JWT_SECRET", ""),
			AccessTokenExpiry: env.GetDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/chat-service.log"),
		},
		Chat: ChatConfig{
			HandshakeTimeout: env.GetDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
			Fanout:           env.GetString("WS_FANOUT", FanoutLocal),
			MessageStore:     env.GetString("MESSAGE_STORE", MessageStoreCockroach),
		},
		Crypto: CryptoConfig{
			KDFMemoryKiB:  uint32(env.GetInt("KEY_KDF_MEMORY_KIB", 64*1024)),
			KDFIterations: uint32(env.GetInt("KEY_KDF_ITERATIONS", 1)),
			KDFThreads:    uint8(env.GetInt("KEY_KDF_THREADS", 4)),
		},
		Lockout: LockoutConfig{
			MaxAttempts: env.GetInt("KEY_LOCKOUT_MAX_ATTEMPTS", 5),
			Duration:    env.GetDuration("KEY_LOCKOUT_DURATION", 15*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}

	switch c.Chat.Fanout {
	case FanoutLocal, FanoutRedis:
	default:
		return fmt.Errorf("WS_FANOUT must be %q or %q, got %q", FanoutLocal, FanoutRedis, c.Chat.Fanout)
	}

	switch c.Chat.MessageStore {
	case MessageStoreCockroach, MessageStoreCassandra:
	default:
		return fmt.Errorf("MESSAGE_STORE must be %q or %q, got %q", MessageStoreCockroach, MessageStoreCassandra, c.Chat.MessageStore)
	}

	if c.Chat.HandshakeTimeout <= 0 {
		return fmt.Errorf("WS_HANDSHAKE_TIMEOUT must be positive")
	}
	if c.Crypto.KDFMemoryKiB == 0 || c.Crypto.KDFIterations == 0 || c.Crypto.KDFThreads == 0 {
		return fmt.Errorf("KEY_KDF_* parameters must be non-zero")
	}
	if c.Lockout.MaxAttempts <= 0 {
		return fmt.Errorf("KEY_LOCKOUT_MAX_ATTEMPTS must be positive")
	}

	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
