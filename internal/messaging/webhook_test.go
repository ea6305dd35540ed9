package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porteroai/portero/internal/authorization"
	"github.com/porteroai/portero/pkg/logging"
)

func TestInterpretReply(t *testing.T) {
	cases := []struct {
		text   string
		status authorization.Status
		custom string
	}{
		{"si", authorization.StatusAuthorized, ""},
		{"Sí", authorization.StatusAuthorized, ""},
		{"  SI!  ", authorization.StatusAuthorized, ""},
		{"dale", authorization.StatusAuthorized, ""},
		{"autorizo", authorization.StatusAuthorized, ""},
		{"1", authorization.StatusAuthorized, ""},
		{"no", authorization.StatusDenied, ""},
		{"NO.", authorization.StatusDenied, ""},
		{"2", authorization.StatusDenied, ""},
		{"que espere 5 minutos", authorization.StatusCustomMessage, "que espere 5 minutos"},
		{"no lo conozco, pregúntele qué necesita", authorization.StatusCustomMessage, "no lo conozco, pregúntele qué necesita"},
	}
	for _, tc := range cases {
		status, custom := InterpretReply(tc.text)
		assert.Equal(t, tc.status, status, "text %q", tc.text)
		assert.Equal(t, tc.custom, custom, "text %q", tc.text)
	}
}

func newWebhookFixture(t *testing.T) (*WebhookHandler, *authorization.MemoryStore) {
	t.Helper()
	store := authorization.NewMemoryStore(30 * time.Minute)
	h := NewWebhookHandler("s3cret", store, logging.New("error"))
	return h, store
}

func postReply(t *testing.T, h *WebhookHandler, token string, msg InboundMessage) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(body))
	if token != "" {
		r.Header.Set("X-Webhook-Token", token)
	}
	w := httptest.NewRecorder()
	h.Inbound(w, r)
	return w
}

func TestWebhook_AuthorizedReplyResolvesPending(t *testing.T) {
	h, store := newWebhookFixture(t)
	_, err := store.Create(context.Background(), authorization.CreateRequest{Key: "573001112233", Apartment: "15", VisitorName: "Carlos Ruiz"})
	require.NoError(t, err)

	w := postReply(t, h, "s3cret", InboundMessage{From: "+57 300 111 2233", Text: "si"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "applied", resp["result"])
	assert.Equal(t, string(authorization.StatusAuthorized), resp["status"])

	rec, err := store.Get(context.Background(), "573001112233")
	require.NoError(t, err)
	assert.Equal(t, authorization.StatusAuthorized, rec.Status)
	assert.NotNil(t, rec.RespondedAt)
}

func TestWebhook_CustomMessagePreservesText(t *testing.T) {
	h, store := newWebhookFixture(t)
	_, err := store.Create(context.Background(), authorization.CreateRequest{Key: "573001112233", Apartment: "15", VisitorName: "Carlos Ruiz"})
	require.NoError(t, err)

	w := postReply(t, h, "s3cret", InboundMessage{From: "3001112233", Text: "Que espere cinco minutos"})
	require.Equal(t, http.StatusOK, w.Code)

	rec, err := store.Get(context.Background(), "573001112233")
	require.NoError(t, err)
	assert.Equal(t, authorization.StatusCustomMessage, rec.Status)
	assert.Equal(t, "Que espere cinco minutos", rec.CustomMessage)
}

func TestWebhook_SecondReplyIsAcknowledgedNotApplied(t *testing.T) {
	h, store := newWebhookFixture(t)
	_, err := store.Create(context.Background(), authorization.CreateRequest{Key: "573001112233", Apartment: "15", VisitorName: "Carlos Ruiz"})
	require.NoError(t, err)

	w := postReply(t, h, "s3cret", InboundMessage{From: "3001112233", Text: "no"})
	require.Equal(t, http.StatusOK, w.Code)

	w = postReply(t, h, "s3cret", InboundMessage{From: "3001112233", Text: "si"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "already_resolved", resp["result"])

	rec, err := store.Get(context.Background(), "573001112233")
	require.NoError(t, err)
	assert.Equal(t, authorization.StatusDenied, rec.Status, "first reply must win")
}

func TestWebhook_NoPendingRecord(t *testing.T) {
	h, _ := newWebhookFixture(t)
	w := postReply(t, h, "s3cret", InboundMessage{From: "3009998877", Text: "si"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "no_pending", resp["result"])
}

func TestWebhook_RejectsBadToken(t *testing.T) {
	h, _ := newWebhookFixture(t)
	w := postReply(t, h, "wrong", InboundMessage{From: "3001112233", Text: "si"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook_RejectsEmptyPayload(t *testing.T) {
	h, _ := newWebhookFixture(t)
	w := postReply(t, h, "s3cret", InboundMessage{From: "", Text: "si"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWhatsAppSender_PostsToGateway(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(srv.URL, "key-123", "whatsapp:portero", "Torres del Parque", logging.New("error"))
	err := sender.SendAuthorizationRequest(context.Background(), notifyFixture())
	require.NoError(t, err)

	assert.Equal(t, "Bearer key-123", auth)
	assert.Equal(t, "573001112233", got["to"])
	assert.Contains(t, got["text"], "Carlos Ruiz")
	assert.Contains(t, got["text"], "apartamento 15")
	assert.Contains(t, got["text"], "Responda SI")
}

func TestWhatsAppSender_ClientErrorDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":"unknown recipient"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(srv.URL, "key-123", "whatsapp:portero", "", logging.New("error"))
	err := sender.SendAuthorizationRequest(context.Background(), notifyFixture())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWhatsAppSender_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(srv.URL, "key-123", "whatsapp:portero", "", logging.New("error"))
	err := sender.SendAuthorizationRequest(context.Background(), notifyFixture())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
