// Package api is the REST client the call client uses for login and lookups.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"ringring-backend/internal/domain"
	"ringring-backend/pkg/constants"
)

var ringNumberPattern = regexp.MustCompile(`^\d{4}-\d{4}$`)

// IsRingNumber reports whether s has the XXXX-XXXX ring number form
func IsRingNumber(s string) bool {
	return ringNumberPattern.MatchString(s)
}

// Error is a non-2xx response from the API
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Session is the result of a login
type Session struct {
	User  domain.UserResponse `json:"user"`
	Token string              `json:"token"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the REST surface of the signaling server
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewClient creates a client for baseURL, e.g. http://localhost:8083
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: constants.DefaultTimeout},
	}
}

// SetToken sets the bearer token for authenticated calls
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login exchanges a Google ID token for an app session
func (c *Client) Login(ctx context.Context, idToken string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/v1/auth/google", map[string]string{"idToken": idToken}, &s); err != nil {
		return nil, err
	}
	c.token = s.Token
	return &s, nil
}

// Logout revokes the current token
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)
}

// LookupRingNumber resolves a ring number to a user
func (c *Client) LookupRingNumber(ctx context.Context, ringNumber string) (*domain.UserResponse, error) {
	var u domain.UserResponse
	if err := c.do(ctx, http.MethodGet, "/v1/users/ring/"+url.PathEscape(ringNumber), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed after %s: %w", method, path, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode %s %s response (%s): %w", method, path, resp.Status, err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &Error{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}
