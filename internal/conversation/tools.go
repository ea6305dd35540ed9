package conversation

import "context"

// ToolFailure is the error arm of every tool result. A timeout at the
// transport is reported here, never as an open-ended wait.
type ToolFailure struct {
	Reason string `json:"reason"`
}

// NotifyRequest carries what the resident sees in the notification.
type NotifyRequest struct {
	ResidentName string
	Phone        string
	Apartment    string
	VisitorName  string
	Cedula       string
	Plate        string
	Purpose      string
}

// NotifyResult reports whether the notification was dispatched.
type NotifyResult struct {
	Dispatched bool
	Failure    *ToolFailure
}

// GateResult reports whether the gate confirmed opening.
type GateResult struct {
	Opened  bool
	Failure *ToolFailure
}

// HangUpResult reports whether the call teardown succeeded.
type HangUpResult struct {
	OK      bool
	Failure *ToolFailure
}

// TransferResult reports whether the operator transfer connected.
type TransferResult struct {
	OK      bool
	Failure *ToolFailure
}

// ToolGateway is the orchestrator's only reach into the outside world:
// four bounded, fallible remote calls. Concrete transports live in
// internal/messaging (notify) and internal/gateops (the rest).
type ToolGateway interface {
	Notify(ctx context.Context, req NotifyRequest) NotifyResult
	OpenGate(ctx context.Context, reason string) GateResult
	HangUp(ctx context.Context, reason string) HangUpResult
	Transfer(ctx context.Context, operatorRef, reason string) TransferResult
}
