package gateops

import (
	"context"

	"github.com/porteroai/portero/internal/conversation"
	"github.com/porteroai/portero/pkg/logging"
)

// Notifier dispatches an authorization request to the resident.
type Notifier interface {
	SendAuthorizationRequest(ctx context.Context, req conversation.NotifyRequest) error
}

// Bridge is the hardware side of the gateway.
type Bridge interface {
	OpenGate(ctx context.Context, reason string) error
	HangUp(ctx context.Context, reason string) error
	Transfer(ctx context.Context, destination, reason string) error
}

// Gateway binds the messaging channel and the gate bridge into the tool
// surface the orchestrator invokes.
type Gateway struct {
	notifier Notifier
	bridge   Bridge
	logger   *logging.Logger
}

// NewGateway wires the tool gateway.
func NewGateway(notifier Notifier, bridge Bridge, logger *logging.Logger) *Gateway {
	if notifier == nil {
		panic("gateops: notifier cannot be nil")
	}
	if bridge == nil {
		panic("gateops: bridge cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{notifier: notifier, bridge: bridge, logger: logger.WithComponent("tool_gateway")}
}

func (g *Gateway) Notify(ctx context.Context, req conversation.NotifyRequest) conversation.NotifyResult {
	if err := g.notifier.SendAuthorizationRequest(ctx, req); err != nil {
		return conversation.NotifyResult{Failure: &conversation.ToolFailure{Reason: err.Error()}}
	}
	return conversation.NotifyResult{Dispatched: true}
}

func (g *Gateway) OpenGate(ctx context.Context, reason string) conversation.GateResult {
	if err := g.bridge.OpenGate(ctx, reason); err != nil {
		return conversation.GateResult{Failure: &conversation.ToolFailure{Reason: err.Error()}}
	}
	return conversation.GateResult{Opened: true}
}

func (g *Gateway) HangUp(ctx context.Context, reason string) conversation.HangUpResult {
	if err := g.bridge.HangUp(ctx, reason); err != nil {
		return conversation.HangUpResult{Failure: &conversation.ToolFailure{Reason: err.Error()}}
	}
	return conversation.HangUpResult{OK: true}
}

func (g *Gateway) Transfer(ctx context.Context, destination, reason string) conversation.TransferResult {
	if err := g.bridge.Transfer(ctx, destination, reason); err != nil {
		return conversation.TransferResult{Failure: &conversation.ToolFailure{Reason: err.Error()}}
	}
	return conversation.TransferResult{OK: true}
}

var _ conversation.ToolGateway = (*Gateway)(nil)
