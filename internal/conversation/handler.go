package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/porteroai/portero/internal/audit"
	"github.com/porteroai/portero/pkg/logging"
)

var turnTracer = otel.Tracer("portero.internal.conversation")

// TurnRequest is the body of POST /conversation/turn. An empty
// session_id starts a new session.
type TurnRequest struct {
	SessionID string   `json:"session_id"`
	Utterance string   `json:"utterance"`
	Visitor   *Visitor `json:"visitor,omitempty"`
	Hangup    bool     `json:"hangup,omitempty"`
}

// TurnResponse carries the doorman's reply back to the voice transport.
type TurnResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	State     State  `json:"state"`
	Tool      string `json:"tool,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

// Handler serves the turn endpoint.
type Handler struct {
	machine  *Machine
	sessions SessionStore
	audit    audit.Recorder
	logger   *logging.Logger
	now      Clock
}

// NewHandler wires the turn endpoint. The audit recorder may be nil.
func NewHandler(machine *Machine, sessions SessionStore, recorder audit.Recorder, logger *logging.Logger) *Handler {
	if machine == nil {
		panic("conversation: machine cannot be nil")
	}
	if sessions == nil {
		panic("conversation: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		machine:  machine,
		sessions: sessions,
		audit:    recorder,
		logger:   logger.WithComponent("turn_handler"),
		now:      time.Now,
	}
}

// Turn handles POST /conversation/turn requests.
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	ctx, span := turnTracer.Start(r.Context(), "conversation.turn")
	defer span.End()

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	var sess *Session
	if req.SessionID != "" {
		loaded, err := h.sessions.Get(ctx, req.SessionID)
		if err != nil {
			h.logger.Error("session load failed", "error", err, "session_id", req.SessionID)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			span.RecordError(err)
			return
		}
		sess = loaded
	}
	if sess == nil {
		sess = NewSession(uuid.NewString(), h.now())
	}
	span.SetAttributes(
		attribute.String("portero.session_id", sess.ID),
		attribute.String("portero.state", string(sess.State)),
	)

	wasTerminal := sess.Terminal()

	out, err := h.machine.Next(ctx, sess, TurnInput{Utterance: req.Utterance, Visitor: req.Visitor, Hangup: req.Hangup})
	if err != nil {
		h.logger.Error("turn failed", "error", err, "session_id", sess.ID)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}

	if err := h.sessions.Save(ctx, sess); err != nil {
		h.logger.Error("session save failed", "error", err, "session_id", sess.ID)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}

	if req.Utterance != "" {
		h.appendTranscript(ctx, sess.ID, TranscriptEntry{Role: "visitor", Text: req.Utterance, Timestamp: h.now().UTC()})
	}
	h.appendTranscript(ctx, sess.ID, TranscriptEntry{Role: "doorman", Text: out.Reply, Timestamp: h.now().UTC()})

	if !wasTerminal && sess.State == StateEnded {
		h.recordOutcome(ctx, sess)
	}

	resp := TurnResponse{
		SessionID: sess.ID,
		Reply:     out.Reply,
		State:     out.State,
		Tool:      out.Tool,
		Outcome:   sess.Outcome,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("encode turn response failed", "error", err)
	}
}

func (h *Handler) appendTranscript(ctx context.Context, id string, entry TranscriptEntry) {
	if err := h.sessions.AppendTranscript(ctx, id, entry); err != nil {
		h.logger.Warn("transcript append failed", "error", err, "session_id", id)
	}
}

// recordOutcome writes the audit row for a finished session. Audit
// failures are logged, never surfaced to the caller.
func (h *Handler) recordOutcome(ctx context.Context, sess *Session) {
	if h.audit == nil {
		return
	}
	err := h.audit.Record(ctx, audit.AccessEvent{
		SessionID:    sess.ID,
		VisitorName:  sess.Visitor.Name,
		Cedula:       sess.Visitor.Cedula,
		Plate:        sess.Visitor.Plate,
		ResidentID:   sess.ResolvedResidentID,
		ResidentName: sess.ResolvedResidentName,
		Apartment:    sess.ResolvedApartment,
		Outcome:      sess.Outcome,
		Reason:       sess.EscalationReason,
		StartedAt:    sess.StartedAt,
		EndedAt:      h.now().UTC(),
	})
	if err != nil {
		h.logger.Error("audit record failed", "error", err, "session_id", sess.ID)
	}
}
