package conversation

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

	"github.com/porteroai/portero/internal/audit"
	"github.com/porteroai/portero/internal/authorization"
	"github.com/porteroai/portero/internal/directory"
	"github.com/porteroai/portero/pkg/logging"
)

func newTestHandler(t *testing.T) (*Handler, *fakeGateway, *authorization.MemoryStore, *audit.MemoryStore) {
	t.Helper()
	dir := directory.NewMemoryRepository()
	dir.Add(directory.Resident{FullName: "Deisy Colorado", Apartment: "15", Phone: "3001112233"})

	store := authorization.NewMemoryStore(30 * time.Minute)
	gateway := &fakeGateway{}
	cfg := DefaultMachineConfig()
	cfg.OpenGateBackoff = 0

	machine := NewMachine(dir, store, gateway, cfg, logging.New("error"))
	recorder := audit.NewMemoryStore()
	h := NewHandler(machine, NewMemorySessionStore(), recorder, logging.New("error"))
	return h, gateway, store, recorder
}

func postTurn(t *testing.T, h *Handler, req TurnRequest) TurnResponse {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/conversation/turn", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.Turn(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandler_NewSessionAssignsID(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	resp := postTurn(t, h, TurnRequest{})
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, StateIdentifyVisitor, resp.State)
	assert.NotEmpty(t, resp.Reply)
}

func TestHandler_SessionPersistsAcrossTurns(t *testing.T) {
	h, gateway, store, _ := newTestHandler(t)

	resp := postTurn(t, h, TurnRequest{})
	id := resp.SessionID

	resp = postTurn(t, h, TurnRequest{SessionID: id, Utterance: "Carlos Ruiz"})
	assert.Equal(t, StateResolveResident, resp.State)

	resp = postTurn(t, h, TurnRequest{SessionID: id, Utterance: "Deisy Colorado"})
	assert.Equal(t, StateNotifyResident, resp.State)

	resp = postTurn(t, h, TurnRequest{SessionID: id})
	assert.Equal(t, StateAwaitingResident, resp.State)
	assert.Len(t, gateway.notifyCalls, 1)

	rec, err := store.Get(context.Background(), directory.NormalizePhone("3001112233"))
	require.NoError(t, err)
	assert.Equal(t, authorization.StatusPending, rec.Status)
}

func TestHandler_TerminalOutcomeIsAudited(t *testing.T) {
	h, _, store, recorder := newTestHandler(t)

	resp := postTurn(t, h, TurnRequest{})
	id := resp.SessionID
	postTurn(t, h, TurnRequest{SessionID: id, Utterance: "Carlos Ruiz"})
	postTurn(t, h, TurnRequest{SessionID: id, Utterance: "Deisy Colorado"})
	postTurn(t, h, TurnRequest{SessionID: id})

	require.NoError(t, store.UpdateStatus(context.Background(), directory.NormalizePhone("3001112233"), authorization.StatusAuthorized, ""))

	resp = postTurn(t, h, TurnRequest{SessionID: id})
	assert.Equal(t, StateGateOpened, resp.State)

	resp = postTurn(t, h, TurnRequest{SessionID: id})
	assert.Equal(t, StateEnded, resp.State)
	assert.Equal(t, OutcomeGateOpened, resp.Outcome)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].SessionID)
	assert.Equal(t, OutcomeGateOpened, events[0].Outcome)
	assert.Equal(t, "Carlos Ruiz", events[0].VisitorName)
	assert.Equal(t, "15", events[0].Apartment)

	// Replaying a turn on the ended session must not audit twice.
	postTurn(t, h, TurnRequest{SessionID: id})
	assert.Len(t, recorder.Events(), 1)
}

func TestHandler_HangupRecordsAbandoned(t *testing.T) {
	h, _, _, recorder := newTestHandler(t)

	resp := postTurn(t, h, TurnRequest{})
	resp = postTurn(t, h, TurnRequest{SessionID: resp.SessionID, Hangup: true})
	assert.Equal(t, StateEnded, resp.State)
	assert.Equal(t, OutcomeAbandoned, resp.Outcome)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, OutcomeAbandoned, events[0].Outcome)
}

func TestHandler_RejectsMalformedBody(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	r := httptest.NewRequest(http.MethodPost, "/conversation/turn", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	h.Turn(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_TranscriptAccumulates(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	resp := postTurn(t, h, TurnRequest{})
	id := resp.SessionID
	postTurn(t, h, TurnRequest{SessionID: id, Utterance: "Carlos Ruiz"})

	entries, err := h.sessions.Transcript(context.Background(), id)
	require.NoError(t, err)
	// Greeting turn yields one doorman line; second turn both roles.
	require.Len(t, entries, 3)
	assert.Equal(t, "doorman", entries[0].Role)
	assert.Equal(t, "visitor", entries[1].Role)
	assert.Equal(t, "Carlos Ruiz", entries[1].Text)
}
