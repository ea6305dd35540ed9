// Package authorization holds the pending-authorization store: the single
// shared mutable resource between the WhatsApp reply webhook (writer) and
// the conversation orchestrator (poller). Per-key atomicity and monotonic
// status transitions are enforced by the backend, not by callers.
package authorization

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle of a pending authorization. Once a record
// leaves StatusPending it never returns.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAuthorized    Status = "authorized"
	StatusDenied        Status = "denied"
	StatusCustomMessage Status = "custom_message"
	StatusExpired       Status = "expired"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s != StatusPending
}

var (
	// ErrAlreadyPending means a live record exists for the key; the caller
	// must reuse it or wait, never silently overwrite.
	ErrAlreadyPending = errors.New("authorization: already pending")
	// ErrAlreadyResolved means the record left pending before this update;
	// late or duplicate replies observe it instead of clobbering the outcome.
	ErrAlreadyResolved = errors.New("authorization: already resolved")
	// ErrNotFound means no record exists for the key.
	ErrNotFound = errors.New("authorization: not found")
)

// PendingAuth is one outstanding resident notification, keyed by the
// resident's normalized phone number.
type PendingAuth struct {
	Key           string     `json:"key"`
	Apartment     string     `json:"apartment"`
	VisitorName   string     `json:"visitor_name"`
	Cedula        string     `json:"cedula"`
	Status        Status     `json:"status"`
	CustomMessage string     `json:"custom_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// CreateRequest carries the fields recorded when a resident is notified.
type CreateRequest struct {
	Key         string
	Apartment   string
	VisitorName string
	Cedula      string
}

// StatusCheck is the polling view consumed by the orchestrator.
type StatusCheck struct {
	Status        Status
	CustomMessage string
	Elapsed       time.Duration
}

// Store is the pending-authorization contract. Create and UpdateStatus
// are mutually exclusive per key; Get never observes a partial record.
type Store interface {
	Create(ctx context.Context, req CreateRequest) (*PendingAuth, error)
	Get(ctx context.Context, key string) (*PendingAuth, error)
	UpdateStatus(ctx context.Context, key string, status Status, customMessage string) error
	CheckStatus(ctx context.Context, key string) (*StatusCheck, error)
	Expire(ctx context.Context, key string) error
}
