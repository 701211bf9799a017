package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"miabridge/pkg/logger"
)

// SendTimeout bounds a single webhook round trip. The workflow behind
// the webhook can be slow; one minute matches its worst observed case.
const SendTimeout = 60 * time.Second

// RelayError is the only error type Send returns. Message is safe to
// show to the user; Details carries the raw server body when there is
// one.
type RelayError struct {
	Message string
	Details string
}

func (e *RelayError) Error() string {
	return e.Message
}

// Client posts payloads to the single configured webhook endpoint.
// It owns no retry logic: exactly one attempt per call.
type Client struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient wraps the shared HTTP client for the webhook endpoint.
// The shared client carries no timeout of its own; each call gets a
// per-request deadline instead.
func NewClient(url string, httpClient *http.Client) *Client {
	return &Client{
		url:        url,
		httpClient: httpClient,
		timeout:    SendTimeout,
	}
}

// Send posts the payload and decodes the reply. Every failure mode
// (connection, timeout, non-200, bad JSON) comes back as a *RelayError
// with a user-presentable message; the caller decides how to surface
// it.
func (c *Client) Send(ctx context.Context, p Payload) (Reply, error) {
	body, err := json.Marshal(p)
	if err != nil {
		// Payload is built from plain structs; this does not happen in
		// practice but must still not escape as a raw error.
		logger.ErrorCF("relay", "Payload marshal failed", map[string]any{"error": err.Error()})
		return Reply{}, &RelayError{Message: "Error inesperado: payload inválido"}
	}

	requestID := uuid.New().String()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		logger.ErrorCF("relay", "Request build failed", map[string]any{"error": err.Error()})
		return Reply{}, &RelayError{Message: "Error inesperado: petición inválida"}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.ErrorCF("relay", "Webhook timed out", map[string]any{"request_id": requestID})
			return Reply{}, &RelayError{Message: "El servidor tardó demasiado en responder"}
		}
		logger.ErrorCF("relay", "Webhook connection failed", map[string]any{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return Reply{}, &RelayError{Message: "No se pudo conectar con el servidor"}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.ErrorCF("relay", "Reading webhook response failed", map[string]any{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return Reply{}, &RelayError{Message: "No se pudo leer la respuesta del servidor"}
	}

	if resp.StatusCode != http.StatusOK {
		logger.ErrorCF("relay", "Webhook returned error status", map[string]any{
			"request_id": requestID,
			"status":     resp.StatusCode,
		})
		return Reply{}, &RelayError{
			Message: fmt.Sprintf("Error del servidor: %d", resp.StatusCode),
			Details: string(raw),
		}
	}

	reply, err := DecodeReply(raw)
	if err != nil {
		logger.ErrorCF("relay", "Webhook response is not JSON", map[string]any{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return Reply{}, &RelayError{Message: "Respuesta inválida del servidor"}
	}

	logger.InfoCF("relay", "Webhook reply received", map[string]any{
		"request_id": requestID,
		"user":       p.Username,
	})

	return reply, nil
}
