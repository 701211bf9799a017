// Package flags gates the bridge behind a Flipt feature flag.
//
// The gate fails open: any failure to reach or parse the flag service
// resolves to "enabled". A broken flag backend must never take the bot
// down with it.
package flags

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"miabridge/pkg/logger"
)

// CheckTimeout bounds one flag lookup. Flag checks sit on the hot path
// of every message, so they get a short leash.
const CheckTimeout = 5 * time.Second

// Config identifies the flag being evaluated.
type Config struct {
	URL       string
	Namespace string
	FlagKey   string
}

// Client queries the Flipt REST API. Safe for concurrent use; every
// check is a fresh round trip (no caching, no circuit breaker).
type Client struct {
	config     Config
	httpClient *http.Client
	timeout    time.Duration
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		timeout:    CheckTimeout,
	}
}

// flagState is the subset of the Flipt flag resource the gate reads.
// A missing "enabled" field defaults to true.
type flagState struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled"`
}

// IsEnabled reports whether the bridge should answer userID. Fail-open
// policy: transport errors, timeouts, non-200 statuses and decode
// failures all resolve to true, each logged with its cause.
func (c *Client) IsEnabled(ctx context.Context, userID string) bool {
	logger.DebugCF("flags", "Checking feature flag", map[string]any{
		"flag": c.config.FlagKey,
		"user": userID,
	})

	state, err := c.fetchFlag(ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logger.ErrorC("flags", "Flag service timed out")
		case errors.As(err, new(*statusError)):
			logger.ErrorCF("flags", "Flag service returned error status", map[string]any{"error": err.Error()})
		default:
			logger.ErrorCF("flags", "Flag service unreachable", map[string]any{"error": err.Error()})
		}
		logger.WarnC("flags", "Falling back to enabled")
		return true
	}

	enabled := true
	if state.Enabled != nil {
		enabled = *state.Enabled
	}

	logger.InfoCF("flags", "Flag evaluated", map[string]any{
		"flag":    c.config.FlagKey,
		"enabled": enabled,
	})

	return enabled
}

// statusError marks a non-200 answer from the flag service.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("flag service status %d: %s", e.status, e.body)
}

func (c *Client) fetchFlag(ctx context.Context) (*flagState, error) {
	url := fmt.Sprintf("%s/api/v1/namespaces/%s/flags/%s",
		c.config.URL, c.config.Namespace, c.config.FlagKey)

	var state flagState
	if err := c.getJSON(ctx, url, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Health checks the flag service's liveness endpoint. Used by the
// status CLI command, not by the message path.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, c.config.URL+"/health", &struct{}{})
}

// FlagInfo fetches the flag resource for diagnostics.
func (c *Client) FlagInfo(ctx context.Context) (name string, enabled bool, err error) {
	state, err := c.fetchFlag(ctx)
	if err != nil {
		return "", false, err
	}
	enabled = state.Enabled == nil || *state.Enabled
	return state.Name, enabled, nil
}

// Evaluate runs a server-side boolean evaluation for entityID. Unlike
// IsEnabled it propagates errors: it exists for diagnostics, where a
// broken backend should be reported rather than papered over.
func (c *Client) Evaluate(ctx context.Context, entityID string) (enabled bool, reason string, err error) {
	reqBody, err := json.Marshal(map[string]any{
		"namespaceKey": c.config.Namespace,
		"flagKey":      c.config.FlagKey,
		"entityId":     entityID,
		"context":      map[string]string{"user_id": entityID},
	})
	if err != nil {
		return false, "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.URL+"/evaluate/v1/boolean", bytes.NewReader(reqBody))
	if err != nil {
		return false, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("flag evaluation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, "", &statusError{status: resp.StatusCode, body: readSnippet(resp)}
	}

	var result struct {
		Enabled bool   `json:"enabled"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, "", fmt.Errorf("decoding evaluation response: %w", err)
	}
	return result.Enabled, result.Reason, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{status: resp.StatusCode, body: readSnippet(resp)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func readSnippet(resp *http.Response) string {
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	return string(buf[:n])
}
