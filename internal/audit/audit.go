// Package audit persists the append-only record of access attempts.
// Events are written once at session end and never updated.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccessEvent is one completed access attempt.
type AccessEvent struct {
	ID           uuid.UUID `json:"id"`
	SessionID    string    `json:"session_id"`
	VisitorName  string    `json:"visitor_name"`
	Cedula       string    `json:"cedula,omitempty"`
	Plate        string    `json:"plate,omitempty"`
	ResidentID   string    `json:"resident_id,omitempty"`
	ResidentName string    `json:"resident_name,omitempty"`
	Apartment    string    `json:"apartment,omitempty"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

// Recorder appends access events to durable storage.
type Recorder interface {
	Record(ctx context.Context, event AccessEvent) error
	ListByApartment(ctx context.Context, apartment string, limit int) ([]AccessEvent, error)
}
