// Package credential fetches short-lived STT credentials from a trusted backend.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoCredential is returned when the issuer responds without a credential.
var ErrNoCredential = errors.New("credential missing from response")

// Credential is a short-lived token for one STT session.
type Credential struct {
	Value     string    `json:"credential"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the credential is no longer usable at now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Client requests credentials from the issuer endpoint.
type Client struct {
	url string
	c   *http.Client
}

// NewClient creates a Client for the issuer URL.
func NewClient(url string) *Client {
	return &Client{url: url, c: &http.Client{Timeout: 10 * time.Second}}
}

// Fetch issues a POST with no body and decodes {credential, expires_at}.
func (c *Client) Fetch(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, http.NoBody)
	if err != nil {
		return Credential{}, err
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("credential request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Credential{}, fmt.Errorf("credential %s: %s", resp.Status, string(body))
	}

	var out Credential
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credential{}, fmt.Errorf("credential decode: %w", err)
	}
	if out.Value == "" {
		return Credential{}, ErrNoCredential
	}
	if out.Expired(time.Now()) {
		return Credential{}, fmt.Errorf("credential already expired at %s", out.ExpiresAt.Format(time.RFC3339))
	}
	return out, nil
}
