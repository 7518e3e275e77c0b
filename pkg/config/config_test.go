package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("IDENTITY_PROVIDER", "firebase")
	t.Setenv("PORT", "")
	t.Setenv("CALL_RING_TIMEOUT", "")
	t.Setenv("CASSANDRA_ENABLED", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8083, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Signaling.RingTimeout)
	assert.False(t, cfg.Cassandra.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "production without secret",
			mutate:  func(c *Config) { c.Server.Environment = "production"; c.JWT.Secret = "" },
			wantErr: "JWT_SECRET must be set",
		},
		{
			name:    "production with short secret",
			mutate:  func(c *Config) { c.Server.Environment = "production"; c.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "oidc without client id",
			mutate:  func(c *Config) { c.Identity.Provider = "oidc" },
			wantErr: "OIDC_CLIENT_ID",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Identity.Provider = "saml" },
			wantErr: "unknown IDENTITY_PROVIDER",
		},
		{
			name:    "zero ring timeout",
			mutate:  func(c *Config) { c.Signaling.RingTimeout = 0 },
			wantErr: "CALL_RING_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:    ServerConfig{Environment: "development"},
				Identity:  IdentityConfig{Provider: "firebase"},
				Signaling: SignalingConfig{RingTimeout: time.Second},
			}
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{User: "root", Password: "pw", Host: "db", Port: 26257, Database: "ringring", SSLMode: "disable"}

	assert.Equal(t, "postgres://root:pw@db:26257/ringring?sslmode=disable", d.DSN())
}

func TestLoadClient(t *testing.T) {
	t.Run("derives signaling url", func(t *testing.T) {
		t.Setenv("RINGRING_API_URL", "https://api.example.com/")
		t.Setenv("RINGRING_SIGNALING_URL", "")
		t.Setenv("RINGRING_ID_TOKEN", "token")

		cfg, err := LoadClient()

		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com", cfg.APIURL)
		assert.Equal(t, "wss://api.example.com/v1/calls/ws/signaling", cfg.SignalingURL)
	})

	t.Run("missing token", func(t *testing.T) {
		t.Setenv("RINGRING_API_URL", "http://localhost:8083")
		t.Setenv("RINGRING_ID_TOKEN", "")

		_, err := LoadClient()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "RINGRING_ID_TOKEN")
	})

	t.Run("bad scheme", func(t *testing.T) {
		t.Setenv("RINGRING_API_URL", "ftp://example.com")
		t.Setenv("RINGRING_SIGNALING_URL", "")
		t.Setenv("RINGRING_ID_TOKEN", "token")

		_, err := LoadClient()

		require.Error(t, err)
	})
}
