package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPgStore_Record(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)
	residentID := uuid.NewString()

	mock.ExpectExec("INSERT INTO access_events").
		WithArgs(pgxmock.AnyArg(), "call-1", "Carlos Ruiz", "1094567890", "",
			residentID, "Deisy Colorado", "15",
			"gate_opened", "", started, ended).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPgStore(mock)
	err = store.Record(context.Background(), AccessEvent{
		SessionID:    "call-1",
		VisitorName:  "Carlos Ruiz",
		Cedula:       "1094567890",
		ResidentID:   residentID,
		ResidentName: "Deisy Colorado",
		Apartment:    "15",
		Outcome:      "gate_opened",
		StartedAt:    started,
		EndedAt:      ended,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPgStore_RecordNullResident(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	// A denied visitor may never have resolved a resident; the column
	// goes NULL rather than an empty UUID.
	mock.ExpectExec("INSERT INTO access_events").
		WithArgs(pgxmock.AnyArg(), "call-2", "Carlos Ruiz", "", "",
			nil, "", "",
			"denied", "directory_unavailable", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPgStore(mock)
	err = store.Record(context.Background(), AccessEvent{
		SessionID:   "call-2",
		VisitorName: "Carlos Ruiz",
		Outcome:     "denied",
		Reason:      "directory_unavailable",
		StartedAt:   time.Now(),
		EndedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPgStore_ListByApartment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	ended := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM access_events").
		WithArgs("15", 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "session_id", "visitor_name", "cedula", "plate",
			"resident_id", "resident_name", "apartment",
			"outcome", "reason", "started_at", "ended_at",
		}).AddRow(uuid.New(), "call-1", "Carlos Ruiz", "", "",
			"", "Deisy Colorado", "15",
			"gate_opened", "", ended.Add(-time.Minute), ended))

	store := NewPgStore(mock)
	events, err := store.ListByApartment(context.Background(), "15", 10)
	if err != nil {
		t.Fatalf("ListByApartment: %v", err)
	}
	if len(events) != 1 || events[0].Outcome != "gate_opened" {
		t.Errorf("unexpected events: %+v", events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	for _, apt := range []string{"15", "15", "101"} {
		if err := store.Record(context.Background(), AccessEvent{Apartment: apt, Outcome: "denied"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	events, err := store.ListByApartment(context.Background(), "15", 1)
	if err != nil {
		t.Fatalf("ListByApartment: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("limit not honored: got %d", len(events))
	}
	if got := store.Events(); len(got) != 3 {
		t.Errorf("Events: got %d, want 3", len(got))
	}
}
