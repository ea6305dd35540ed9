// Package gateops drives the physical gate and the telephony bridge:
// opening the vehicular door, hanging up, and transferring calls to the
// human operator.
package gateops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/porteroai/portero/pkg/logging"
)

var bridgeTracer = otel.Tracer("portero.internal.gateops.bridge")

// BridgeClient talks to the on-premise gate bridge over HTTP. The
// bridge confirms hardware actuation synchronously; a non-2xx response
// means the gate did not move.
type BridgeClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewBridgeClient builds a client for the gate bridge API.
func NewBridgeClient(baseURL, token string, logger *logging.Logger) *BridgeClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &BridgeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 3 * time.Second,
		},
		logger: logger,
	}
}

// OpenGate actuates the vehicular gate. The call returns only after the
// bridge acknowledges the relay fired.
func (c *BridgeClient) OpenGate(ctx context.Context, reason string) error {
	return c.post(ctx, "/v1/gate/open", map[string]string{"reason": reason})
}

// HangUp terminates the intercom call.
func (c *BridgeClient) HangUp(ctx context.Context, reason string) error {
	return c.post(ctx, "/v1/call/hangup", map[string]string{"reason": reason})
}

// Transfer connects the intercom call to the given destination.
func (c *BridgeClient) Transfer(ctx context.Context, destination, reason string) error {
	return c.post(ctx, "/v1/call/transfer", map[string]string{
		"destination": destination,
		"reason":      reason,
	})
}

func (c *BridgeClient) post(ctx context.Context, path string, payload map[string]string) error {
	if c.baseURL == "" {
		return errors.New("gateops: bridge url missing")
	}
	ctx, span := bridgeTracer.Start(ctx, "gateops.bridge"+strings.ReplaceAll(path, "/", "."))
	defer span.End()
	span.SetAttributes(attribute.String("portero.bridge.path", path))

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateops: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateops: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("bridge call failed", "path", path, "error", err)
		return fmt.Errorf("gateops: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("gateops: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
		span.RecordError(err)
		c.logger.Error("bridge call rejected", "path", path, "status", resp.StatusCode)
		return err
	}
	return nil
}
