// Package messaging talks WhatsApp: outbound authorization requests to
// residents and the inbound webhook that carries their replies.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/porteroai/portero/internal/conversation"
	"github.com/porteroai/portero/internal/directory"
	"github.com/porteroai/portero/pkg/logging"
)

var sendTracer = otel.Tracer("portero.internal.messaging.whatsapp_send")

// WhatsAppSender posts authorization requests through a WhatsApp
// Business gateway.
type WhatsAppSender struct {
	gatewayURL string
	apiKey     string
	senderID   string
	condo      string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewWhatsAppSender builds a sender for the WhatsApp gateway API.
func NewWhatsAppSender(gatewayURL, apiKey, senderID, condominium string, logger *logging.Logger) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppSender{
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		apiKey:     apiKey,
		senderID:   senderID,
		condo:      condominium,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// SendAuthorizationRequest messages the resident asking whether to let
// the visitor in, retrying transient failures.
func (s *WhatsAppSender) SendAuthorizationRequest(ctx context.Context, req conversation.NotifyRequest) error {
	if s.gatewayURL == "" {
		return errors.New("messaging: whatsapp gateway url missing")
	}
	phone := directory.NormalizePhone(req.Phone)
	if phone == "" {
		return errors.New("messaging: resident phone required")
	}

	ctx, span := sendTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("portero.to", phone),
		attribute.String("portero.apartment", req.Apartment),
	)

	payload := map[string]interface{}{
		"from": s.senderID,
		"to":   phone,
		"text": AuthorizationMessage(s.condo, req),
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("messaging: marshal whatsapp payload: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL+"/v1/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.logger.Info("whatsapp authorization request sent", "to", phone, "apartment", req.Apartment)
				return nil
			}
			var errorBody map[string]interface{}
			if len(body) > 0 && json.Unmarshal(body, &errorBody) == nil {
				lastErr = fmt.Errorf("whatsapp send failed: status %d, body: %v", resp.StatusCode, errorBody)
			} else {
				lastErr = fmt.Errorf("whatsapp send failed: status %d", resp.StatusCode)
			}
			// Client errors will not heal on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				break
			}
		}

		if attempt < 3 {
			time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		s.logger.Error("failed to send whatsapp authorization request", "error", lastErr, "to", phone)
	}
	return lastErr
}

// AuthorizationMessage renders the resident-facing request with the
// visitor details the doorman collected.
func AuthorizationMessage(condominium string, req conversation.NotifyRequest) string {
	var b strings.Builder
	if condominium != "" {
		fmt.Fprintf(&b, "Portería %s.\n", condominium)
	} else {
		b.WriteString("Portería.\n")
	}
	fmt.Fprintf(&b, "%s solicita ingresar a su apartamento %s.", req.VisitorName, req.Apartment)
	if req.Cedula != "" {
		fmt.Fprintf(&b, " Cédula: %s.", req.Cedula)
	}
	if req.Plate != "" {
		fmt.Fprintf(&b, " Placa: %s.", req.Plate)
	}
	if req.Purpose != "" {
		fmt.Fprintf(&b, " Motivo: %s.", req.Purpose)
	}
	b.WriteString("\n\nResponda SI para autorizar, NO para negar, o escriba un mensaje para el visitante.")
	return b.String()
}
