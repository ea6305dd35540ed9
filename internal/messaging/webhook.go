package messaging

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/porteroai/portero/internal/authorization"
	"github.com/porteroai/portero/internal/directory"
	"github.com/porteroai/portero/internal/observability/metrics"
	"github.com/porteroai/portero/pkg/logging"
)

var webhookTracer = otel.Tracer("portero.internal.messaging.webhook")

// InboundMessage is the gateway's delivery payload for a resident reply.
type InboundMessage struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Text      string `json:"text"`
}

// WebhookHandler receives resident replies from the WhatsApp gateway and
// resolves the matching pending authorization.
type WebhookHandler struct {
	secret  string
	store   authorization.Store
	logger  *logging.Logger
	metrics *metrics.DoormanMetrics
	now     func() time.Time
}

// NewWebhookHandler wires the inbound webhook. An empty secret disables
// verification, for local runs only.
func NewWebhookHandler(secret string, store authorization.Store, logger *logging.Logger) *WebhookHandler {
	if store == nil {
		panic("messaging: authorization store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret: secret,
		store:  store,
		logger: logger.WithComponent("whatsapp_webhook"),
		now:    time.Now,
	}
}

// WithMetrics attaches Prometheus counters.
func (h *WebhookHandler) WithMetrics(dm *metrics.DoormanMetrics) *WebhookHandler {
	h.metrics = dm
	return h
}

// Inbound handles POST /webhooks/whatsapp requests. Replies that land
// after resolution or expiry are acknowledged, never retried: the
// gateway's redelivery would change nothing.
func (h *WebhookHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	ctx, span := webhookTracer.Start(r.Context(), "messaging.whatsapp.inbound")
	defer span.End()

	if h.secret != "" {
		token := r.Header.Get("X-Webhook-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
			h.logger.Warn("webhook token mismatch")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(errors.New("webhook token mismatch"))
			return
		}
	}

	var msg InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	key := directory.NormalizePhone(msg.From)
	if key == "" || strings.TrimSpace(msg.Text) == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("portero.webhook.message_id", msg.MessageID),
		attribute.String("portero.webhook.from", key),
	)

	status, custom := InterpretReply(msg.Text)
	err := h.store.UpdateStatus(ctx, key, status, custom)
	result := "applied"
	switch {
	case err == nil:
	case errors.Is(err, authorization.ErrNotFound):
		result = "no_pending"
	case errors.Is(err, authorization.ErrAlreadyResolved):
		result = "already_resolved"
	default:
		h.logger.Error("webhook status update failed", "error", err, "key", key)
		span.RecordError(err)
		h.observe("error", start)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("resident reply processed", "key", key, "status", string(status), "result", result)
	h.observe(result, start)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"result": result,
		"status": string(status),
	})
}

func (h *WebhookHandler) observe(result string, start time.Time) {
	h.metrics.ObserveReply(result)
	h.metrics.ObserveWebhookLatency(result, h.now().Sub(start).Seconds())
}
