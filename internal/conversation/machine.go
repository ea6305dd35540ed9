package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/porteroai/portero/internal/authorization"
	"github.com/porteroai/portero/internal/directory"
	"github.com/porteroai/portero/internal/observability/metrics"
	"github.com/porteroai/portero/internal/resolver"
	"github.com/porteroai/portero/pkg/logging"
)

// Clock exists so tests can drive wait bands and expiry deterministically.
type Clock func() time.Time

const maxClarifyAttempts = 2

// MachineConfig tunes the per-session policies. EscalationThreshold is
// the in-call timer; the store's TTL is configured separately and the
// two must not be conflated.
type MachineConfig struct {
	EscalationThreshold time.Duration
	OpenGateRetries     int
	OpenGateBackoff     time.Duration
	OperatorRef         string
	Resolver            resolver.Options
}

// DefaultMachineConfig mirrors the production environment defaults.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		EscalationThreshold: 120 * time.Second,
		OpenGateRetries:     2,
		OpenGateBackoff:     2 * time.Second,
		OperatorRef:         "porteria",
		Resolver:            resolver.DefaultOptions(),
	}
}

// TurnInput is what the voice platform hands us each turn. Visitor
// carries entities the platform's speech layer already extracted
// (cedula, plate, purpose); they merge into the session as they arrive.
type TurnInput struct {
	Utterance string
	Visitor   *Visitor
	// Hangup is set when the caller dropped; the turn becomes cleanup.
	Hangup bool
}

// TurnOutput is the single utterance plus state name that crosses back
// into the voice transport.
type TurnOutput struct {
	Reply string `json:"reply"`
	State State  `json:"state"`
	// Tool names the capability invoked this turn, if any.
	Tool string `json:"tool,omitempty"`
}

// Machine drives one access attempt per session, one synchronous turn at
// a time. It never blocks waiting for the resident: awaiting_resident is
// re-entered on every poll turn and the voice platform supplies the
// cadence.
type Machine struct {
	directory directory.Repository
	store     authorization.Store
	tools     ToolGateway
	cfg       MachineConfig
	now       Clock
	logger    *logging.Logger
	metrics   *metrics.DoormanMetrics
}

// NewMachine wires the orchestrator. All collaborators are required
// except metrics.
func NewMachine(dir directory.Repository, store authorization.Store, tools ToolGateway, cfg MachineConfig, logger *logging.Logger) *Machine {
	if dir == nil {
		panic("conversation: directory cannot be nil")
	}
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if tools == nil {
		panic("conversation: tool gateway cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = DefaultMachineConfig().EscalationThreshold
	}
	if cfg.OperatorRef == "" {
		cfg.OperatorRef = DefaultMachineConfig().OperatorRef
	}
	return &Machine{
		directory: dir,
		store:     store,
		tools:     tools,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.WithComponent("orchestrator"),
	}
}

// WithClock overrides the time source for tests.
func (m *Machine) WithClock(now Clock) *Machine {
	m.now = now
	return m
}

// WithMetrics attaches Prometheus counters.
func (m *Machine) WithMetrics(dm *metrics.DoormanMetrics) *Machine {
	m.metrics = dm
	return m
}

// Next advances the session by one turn. At most one tool call is issued
// per turn; every return carries a concrete visitor-facing reply.
func (m *Machine) Next(ctx context.Context, s *Session, in TurnInput) (*TurnOutput, error) {
	if s == nil {
		return nil, errors.New("conversation: nil session")
	}

	if in.Visitor != nil {
		mergeVisitor(&s.Visitor, *in.Visitor)
	}

	var out *TurnOutput
	switch {
	case in.Hangup && !s.Terminal():
		out = m.abandon(ctx, s)
	case s.Terminal():
		out = &TurnOutput{Reply: promptGoodbye, State: StateEnded}
	default:
		out = m.step(ctx, s, in)
	}

	m.metrics.ObserveTurn(string(out.State))
	return out, nil
}

func (m *Machine) step(ctx context.Context, s *Session, in TurnInput) *TurnOutput {
	switch s.State {
	case StateStart:
		s.transition(StateIdentifyVisitor, m.now())
		return &TurnOutput{Reply: promptGreeting, State: s.State}

	case StateIdentifyVisitor:
		if utterance := strings.TrimSpace(in.Utterance); utterance != "" && s.Visitor.Name == "" {
			s.Visitor.Name = utterance
		}
		if s.Visitor.Name == "" {
			return &TurnOutput{Reply: promptGreeting, State: s.State}
		}
		s.transition(StateResolveResident, m.now())
		return &TurnOutput{Reply: promptAskWho, State: s.State}

	case StateResolveResident, StateClarifyIdentity:
		return m.resolveTurn(ctx, s, in.Utterance)

	case StateNotifyResident:
		return m.notifyTurn(ctx, s)

	case StateAwaitingResident:
		return m.pollTurn(ctx, s)

	case StateEscalating:
		return m.escalateTurn(ctx, s)

	case StateGateOpened:
		return m.endTurn(ctx, s, OutcomeGateOpened)
	case StateDenied:
		return m.endTurn(ctx, s, OutcomeDenied)
	case StateTransferred:
		return m.endTurn(ctx, s, OutcomeTransferred)
	}

	m.logger.Error("session in unknown state", "session_id", s.ID, "state", s.State)
	return m.escalate(s, "unknown_state")
}

// resolveTurn folds the utterance into the running query and tries the
// directory. Ambiguity and misses become clarifying questions, never
// hard errors.
func (m *Machine) resolveTurn(ctx context.Context, s *Session, utterance string) *TurnOutput {
	utterance = strings.TrimSpace(utterance)
	if apt := extractApartment(utterance); apt != "" {
		return m.resolveByApartment(ctx, s, apt)
	}
	if utterance != "" {
		if s.ResidentQuery == "" || s.State == StateResolveResident {
			s.ResidentQuery = utterance
		} else {
			// Clarifying info accumulates: "Juan" + "Pérez del 202".
			s.ResidentQuery = s.ResidentQuery + " " + utterance
		}
	}
	if s.ResidentQuery == "" {
		return &TurnOutput{Reply: promptAskWho, State: s.State}
	}

	residents, err := m.directory.List(ctx)
	if err != nil {
		m.logger.Error("directory list failed", "error", err, "session_id", s.ID)
		return m.escalate(s, "directory_unavailable")
	}

	result := resolver.Resolve(residents, s.ResidentQuery, m.cfg.Resolver)
	switch result.Outcome {
	case resolver.OutcomeMatch:
		return m.resolved(s, result.Candidates[0].Resident)
	case resolver.OutcomeAmbiguous:
		return m.clarify(s, promptAskSurname)
	default:
		return m.clarify(s, promptAskApartment)
	}
}

func (m *Machine) resolveByApartment(ctx context.Context, s *Session, apartment string) *TurnOutput {
	residents, err := m.directory.GetByApartment(ctx, apartment)
	if err != nil {
		m.logger.Error("apartment lookup failed", "error", err, "session_id", s.ID, "apartment", apartment)
		return m.escalate(s, "directory_unavailable")
	}
	switch {
	case len(residents) == 0:
		return m.clarify(s, promptApartmentUnknown)
	case len(residents) == 1:
		return m.resolved(s, residents[0])
	}
	// Several residents in the apartment: a name, if we have one,
	// settles it; otherwise ask for one.
	if s.ResidentQuery != "" {
		result := resolver.Resolve(residents, s.ResidentQuery, m.cfg.Resolver)
		if result.Outcome == resolver.OutcomeMatch {
			return m.resolved(s, result.Candidates[0].Resident)
		}
	}
	return m.clarify(s, promptAskResidentName)
}

// clarify asks one more question, or denies once the attempts run out.
func (m *Machine) clarify(s *Session, question string) *TurnOutput {
	s.ClarifyAttempts++
	if s.ClarifyAttempts > maxClarifyAttempts {
		s.transition(StateDenied, m.now())
		return &TurnOutput{Reply: promptDenied, State: s.State}
	}
	s.transition(StateClarifyIdentity, m.now())
	return &TurnOutput{Reply: question, State: s.State}
}

func (m *Machine) resolved(s *Session, res directory.Resident) *TurnOutput {
	if res.Blacklisted {
		m.logger.Warn("visit to blacklisted resident denied", "session_id", s.ID, "resident_id", res.ID)
		s.transition(StateDenied, m.now())
		return &TurnOutput{Reply: promptDenied, State: s.State}
	}
	s.ResolvedResidentID = res.ID.String()
	s.ResolvedResidentName = res.FullName
	s.ResolvedApartment = res.Apartment
	s.ResolvedPhone = res.Phone
	s.transition(StateNotifyResident, m.now())
	return &TurnOutput{Reply: promptResolved(res.FullName), State: s.State}
}

// notifyTurn creates the pending authorization and dispatches the
// notification. One immediate retry on failure, then escalate.
func (m *Machine) notifyTurn(ctx context.Context, s *Session) *TurnOutput {
	key := directory.NormalizePhone(s.ResolvedPhone)
	if key == "" {
		m.logger.Error("resolved resident has no usable phone", "session_id", s.ID)
		return m.escalate(s, "resident_unreachable")
	}

	_, err := m.store.Create(ctx, authorization.CreateRequest{
		Key:         key,
		Apartment:   s.ResolvedApartment,
		VisitorName: s.Visitor.Name,
		Cedula:      s.Visitor.Cedula,
	})
	if err != nil && !errors.Is(err, authorization.ErrAlreadyPending) {
		m.logger.Error("pending authorization create failed", "error", err, "session_id", s.ID)
		return m.escalate(s, "store_unavailable")
	}
	// ErrAlreadyPending: an earlier notification for this resident is
	// still live; reuse it rather than spamming a duplicate.
	reused := errors.Is(err, authorization.ErrAlreadyPending)

	if !reused {
		req := NotifyRequest{
			ResidentName: s.ResolvedResidentName,
			Phone:        s.ResolvedPhone,
			Apartment:    s.ResolvedApartment,
			VisitorName:  s.Visitor.Name,
			Cedula:       s.Visitor.Cedula,
			Plate:        s.Visitor.Plate,
			Purpose:      s.Visitor.Purpose,
		}
		result := m.tools.Notify(ctx, req)
		if !result.Dispatched {
			result = m.tools.Notify(ctx, req)
		}
		m.metrics.ObserveToolCall("notify", result.Dispatched)
		if !result.Dispatched {
			reason := "notification_failure"
			if result.Failure != nil {
				m.logger.Error("notify failed after retry", "reason", result.Failure.Reason, "session_id", s.ID)
			}
			s.PendingAuthKey = key
			return m.escalate(s, reason)
		}
	}

	s.PendingAuthKey = key
	s.transition(StateAwaitingResident, m.now())
	return &TurnOutput{Reply: promptWaitContacting, State: s.State, Tool: "notify"}
}

// pollTurn re-reads the store and either keeps the caller informed or
// acts on the resident's decision.
func (m *Machine) pollTurn(ctx context.Context, s *Session) *TurnOutput {
	if s.PendingAuthKey == "" {
		return m.escalate(s, "authorization_missing")
	}
	check, err := m.store.CheckStatus(ctx, s.PendingAuthKey)
	if errors.Is(err, authorization.ErrNotFound) {
		return m.escalate(s, "authorization_missing")
	}
	if err != nil {
		m.logger.Error("status check failed", "error", err, "session_id", s.ID)
		return m.escalate(s, "store_unavailable")
	}

	switch check.Status {
	case authorization.StatusAuthorized:
		return m.openGate(ctx, s)

	case authorization.StatusDenied:
		s.transition(StateDenied, m.now())
		return &TurnOutput{Reply: promptDenied, State: s.State}

	case authorization.StatusCustomMessage:
		return m.relayCustomMessage(ctx, s, check.CustomMessage)

	case authorization.StatusExpired:
		return m.escalate(s, "authorization_expired")
	}

	if check.Elapsed > m.cfg.EscalationThreshold {
		return m.escalate(s, "resident_timeout")
	}
	return &TurnOutput{Reply: waitPrompt(check.Elapsed), State: s.State}
}

// openGate confirms the gate actually opened before telling the visitor
// so; on exhausted retries it escalates rather than claiming success.
func (m *Machine) openGate(ctx context.Context, s *Session) *TurnOutput {
	reason := fmt.Sprintf("authorized by resident %s", s.ResolvedApartment)
	result := m.tools.OpenGate(ctx, reason)
	for attempt := 0; !result.Opened && attempt < m.cfg.OpenGateRetries; attempt++ {
		if m.cfg.OpenGateBackoff > 0 {
			time.Sleep(m.cfg.OpenGateBackoff)
		}
		result = m.tools.OpenGate(ctx, reason)
	}
	m.metrics.ObserveToolCall("open_gate", result.Opened)
	if !result.Opened {
		if result.Failure != nil {
			m.logger.Error("gate failed to open after retries", "reason", result.Failure.Reason, "session_id", s.ID)
		}
		return m.escalate(s, "gate_failure")
	}
	s.transition(StateGateOpened, m.now())
	return &TurnOutput{Reply: promptGateOpened, State: s.State, Tool: "open_gate"}
}

// relayCustomMessage passes the resident's words to the visitor and
// re-arms a fresh pending record; the resolved one stays immutable.
func (m *Machine) relayCustomMessage(ctx context.Context, s *Session, message string) *TurnOutput {
	s.transition(StateDeliverCustomMessage, m.now())
	if _, err := m.store.Create(ctx, authorization.CreateRequest{
		Key:         s.PendingAuthKey,
		Apartment:   s.ResolvedApartment,
		VisitorName: s.Visitor.Name,
		Cedula:      s.Visitor.Cedula,
	}); err != nil && !errors.Is(err, authorization.ErrAlreadyPending) {
		m.logger.Error("re-arm after custom message failed", "error", err, "session_id", s.ID)
		return m.escalate(s, "store_unavailable")
	}
	s.transition(StateAwaitingResident, m.now())
	return &TurnOutput{Reply: promptCustomMessage(message), State: s.State}
}

// escalateTurn hands the call to the human operator, failing closed to a
// denial when the operator is unreachable.
func (m *Machine) escalateTurn(ctx context.Context, s *Session) *TurnOutput {
	result := m.tools.Transfer(ctx, m.cfg.OperatorRef, s.EscalationReason)
	m.metrics.ObserveToolCall("transfer", result.OK)
	if !result.OK {
		if result.Failure != nil {
			m.logger.Error("operator transfer failed", "reason", result.Failure.Reason, "session_id", s.ID)
		}
		s.transition(StateDenied, m.now())
		return &TurnOutput{Reply: promptDenied, State: s.State, Tool: "transfer"}
	}
	s.transition(StateTransferred, m.now())
	return &TurnOutput{Reply: promptTransfer, State: s.State, Tool: "transfer"}
}

// endTurn hangs up and closes the session. Hang-up is always attempted,
// and only once, on the way to ended.
func (m *Machine) endTurn(ctx context.Context, s *Session, outcome string) *TurnOutput {
	s.Outcome = outcome
	result := m.tools.HangUp(ctx, outcome)
	m.metrics.ObserveToolCall("hang_up", result.OK)
	if !result.OK && result.Failure != nil {
		m.logger.Warn("hang-up failed", "reason", result.Failure.Reason, "session_id", s.ID)
	}
	m.metrics.ObserveOutcome(outcome)
	s.transition(StateEnded, m.now())
	return &TurnOutput{Reply: promptGoodbye, State: s.State, Tool: "hang_up"}
}

// abandon handles the caller dropping mid-conversation. The pending
// authorization, if any, is left to resolve or expire on its own: a
// webhook may still be in flight. A hang-up after the decision keeps
// the decided outcome.
func (m *Machine) abandon(ctx context.Context, s *Session) *TurnOutput {
	outcome := OutcomeAbandoned
	switch s.State {
	case StateGateOpened:
		outcome = OutcomeGateOpened
	case StateDenied:
		outcome = OutcomeDenied
	case StateTransferred:
		outcome = OutcomeTransferred
	}
	return m.endTurn(ctx, s, outcome)
}

// escalate records the reason and moves to escalating; the transfer
// itself happens on the next turn.
func (m *Machine) escalate(s *Session, reason string) *TurnOutput {
	s.EscalationReason = reason
	s.transition(StateEscalating, m.now())
	return &TurnOutput{Reply: promptEscalating, State: s.State}
}

// mergeVisitor folds newly extracted entities into the session without
// erasing anything already captured.
func mergeVisitor(dst *Visitor, src Visitor) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Cedula != "" {
		dst.Cedula = src.Cedula
	}
	if src.Plate != "" {
		dst.Plate = src.Plate
	}
	if src.Purpose != "" {
		dst.Purpose = src.Purpose
	}
}

// extractApartment pulls an apartment number out of an utterance like
// "apartamento 502" or "el 15". Returns "" when the utterance reads as a
// name.
func extractApartment(utterance string) string {
	var digits strings.Builder
	letters := 0
	for _, r := range utterance {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case unicode.IsLetter(r):
			letters++
		}
	}
	// Long letter runs mean the caller said a name, not an apartment.
	if letters > len("apartamento") {
		return ""
	}
	d := digits.String()
	if d == "" || len(d) > 5 {
		return ""
	}
	return d
}
