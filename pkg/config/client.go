package config

import (
	"fmt"
	"net/url"
	"strings"

	"ringring-backend/pkg/env"
)

// ClientConfig holds configuration for the headless call client
type ClientConfig struct {
	APIURL          string
	SignalingURL    string
	IDToken         string
	ICEServers      []string
	TURNUsername    string
	TURNCredential  string
	PreferencesPath string
	Log             LogConfig
}

// LoadClient loads client configuration from environment variables
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIURL:          strings.TrimRight(env.GetString("RINGRING_API_URL", "http://localhost:8083"), "/"),
		SignalingURL:    env.GetString("RINGRING_SIGNALING_URL", ""),
		IDToken:         env.GetStringFromFile("RINGRING_ID_TOKEN", ""),
		ICEServers:      env.GetStringSlice("RINGRING_ICE_SERVERS", []string{"stun:stun.l.google.com:19302"}),
		TURNUsername:    env.GetString("RINGRING_TURN_USERNAME", ""),
		TURNCredential:  env.GetStringFromFile("RINGRING_TURN_CREDENTIAL", ""),
		PreferencesPath: env.GetString("RINGRING_PREFS_PATH", "ringring-prefs.db"),
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "console"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "ringring-client.log"),
		},
	}

	if cfg.SignalingURL == "" {
		derived, err := SignalingURLFor(cfg.APIURL)
		if err != nil {
			return nil, err
		}
		cfg.SignalingURL = derived
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the client configuration
func (c *ClientConfig) Validate() error {
	if c.IDToken == "" {
		return fmt.Errorf("RINGRING_ID_TOKEN must be set")
	}
	if c.PreferencesPath == "" {
		return fmt.Errorf("RINGRING_PREFS_PATH must not be empty")
	}
	return nil
}

// SignalingURLFor derives the signaling WebSocket URL from the REST base URL
func SignalingURLFor(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid RINGRING_API_URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("RINGRING_API_URL must be http or https, got %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/calls/ws/signaling"
	return u.String(), nil
}
