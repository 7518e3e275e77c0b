package config

import (
	"fmt"
	"time"

	"ringring-backend/pkg/constants"
	"ringring-backend/pkg/env"
)

// Config holds all configuration for the signaling server
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	MinIO     MinIOConfig
	JWT       JWTConfig
	Identity  IdentityConfig
	Push      PushConfig
	Signaling SignalingConfig
	Log       LogConfig
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

// CassandraConfig holds Cassandra configuration. The call-event journal is
// disabled when Enabled is false.
type CassandraConfig struct {
	Enabled     bool
	Hosts       []string
	Keyspace    string
	Consistency string
	Timeout     time.Duration
}

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string
	Audience          string
	AccessTokenExpiry time.Duration
}

// IdentityConfig selects the external identity provider
type IdentityConfig struct {
	Provider        string // firebase, oidc
	FirebaseProject string
	CredentialsFile string
	OIDCIssuer      string
	OIDCClientID    string
}

// PushConfig holds push notification settings
type PushConfig struct {
	Provider string // mock, fcm, apns
}

// SignalingConfig holds signaling hub settings
type SignalingConfig struct {
	MaxConnections int
	RingTimeout    time.Duration
	SweepInterval  time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8083),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "ringring-signaling"),
			AllowedOrigins: env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4200"}),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "ringring"),
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
			Enabled:     env.GetBool("CASSANDRA_ENABLED", false),
			Hosts:       env.GetStringSlice("CASSANDRA_HOSTS", []string{"localhost"}),
			Keyspace:    env.GetString("CASSANDRA_KEYSPACE", "ringring"),
			Consistency: env.GetString("CASSANDRA_CONSISTENCY", "QUORUM"),
			Timeout:     env.GetDuration("CASSANDRA_TIMEOUT", 600*time.Millisecond),
		},
		MinIO: MinIOConfig{
			Enabled:   env.GetBool("MINIO_ENABLED", false),
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "avatars"),
		},
		JWT: JWTConfig{
			Secret:            env.GetStringFromFile("JWT_SECRET", ""),
			Audience:          env.GetString("JWT_AUDIENCE", "ringring-api"),
			AccessTokenExpiry: env.GetDuration("JWT_ACCESS_EXPIRY", constants.AccessTokenExpiry),
		},
		Identity: IdentityConfig{
			Provider:        env.GetString("IDENTITY_PROVIDER", "firebase"),
			FirebaseProject: env.GetString("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.GetString("FIREBASE_CREDENTIALS_PATH", ""),
			OIDCIssuer:      env.GetString("OIDC_ISSUER", "https://accounts.google.com"),
			OIDCClientID:    env.GetString("OIDC_CLIENT_ID", ""),
		},
		Push: PushConfig{
			Provider: env.GetString("PUSH_PROVIDER", "mock"),
		},
		Signaling: SignalingConfig{
			MaxConnections: env.GetInt("WS_MAX_SIGNALING_CONNECTIONS", 1000),
			RingTimeout:    env.GetDuration("CALL_RING_TIMEOUT", constants.RingTimeout),
			SweepInterval:  env.GetDuration("CALL_RING_SWEEP_INTERVAL", constants.RingSweepInterval),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/ringring.log"),
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

	switch c.Identity.Provider {
	case "firebase":
	case "oidc":
		if c.Identity.OIDCClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID must be set when IDENTITY_PROVIDER=oidc")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.Identity.Provider)
	}

	if c.Signaling.RingTimeout <= 0 {
		return fmt.Errorf("CALL_RING_TIMEOUT must be positive")
	}

	return nil
}

// DSN returns the pgx connection string for the CockroachDB settings
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}
