package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/porteroai/portero/internal/phonetics"
)

// Repository serves the resident directory. List returns residents in
// creation order; the resolver relies on that order for deterministic
// tie-breaks.
type Repository interface {
	List(ctx context.Context) ([]Resident, error)
	GetByApartment(ctx context.Context, apartment string) ([]Resident, error)
}

// PgxPool is the subset of pgxpool.Pool the repository needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgRepository reads residents from Postgres.
type PgRepository struct {
	pool PgxPool
}

// NewPgRepository creates a Postgres-backed resident repository.
func NewPgRepository(pool PgxPool) *PgRepository {
	if pool == nil {
		return nil
	}
	return &PgRepository{pool: pool}
}

const residentColumns = `id, full_name, apartment, phone, blacklisted, phonetic_codes, created_at`

// List returns all residents ordered by creation.
func (r *PgRepository) List(ctx context.Context) ([]Resident, error) {
	query := `
		SELECT ` + residentColumns + `
		FROM residents
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("directory: list residents: %w", err)
	}
	defer rows.Close()
	return scanResidents(rows)
}

// GetByApartment returns residents registered to an apartment.
func (r *PgRepository) GetByApartment(ctx context.Context, apartment string) ([]Resident, error) {
	query := `
		SELECT ` + residentColumns + `
		FROM residents
		WHERE apartment = $1
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, strings.TrimSpace(apartment))
	if err != nil {
		return nil, fmt.Errorf("directory: residents by apartment: %w", err)
	}
	defer rows.Close()
	return scanResidents(rows)
}

// Upsert writes a resident, recomputing phonetic codes from the name.
func (r *PgRepository) Upsert(ctx context.Context, res Resident) (uuid.UUID, error) {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	codes, err := json.Marshal(phonetics.EncodeName(res.FullName))
	if err != nil {
		return uuid.Nil, fmt.Errorf("directory: marshal phonetic codes: %w", err)
	}
	query := `
		INSERT INTO residents (id, full_name, apartment, phone, blacklisted, phonetic_codes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
			apartment = EXCLUDED.apartment,
			phone = EXCLUDED.phone,
			blacklisted = EXCLUDED.blacklisted,
			phonetic_codes = EXCLUDED.phonetic_codes,
			updated_at = now()
	`
	_, err = r.pool.Exec(ctx, query, res.ID, res.FullName, strings.TrimSpace(res.Apartment), NormalizePhone(res.Phone), res.Blacklisted, codes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("directory: upsert resident: %w", err)
	}
	return res.ID, nil
}

func scanResidents(rows pgx.Rows) ([]Resident, error) {
	var out []Resident
	for rows.Next() {
		var res Resident
		var codes []byte
		if err := rows.Scan(&res.ID, &res.FullName, &res.Apartment, &res.Phone, &res.Blacklisted, &codes, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("directory: scan resident: %w", err)
		}
		if len(codes) > 0 {
			if err := json.Unmarshal(codes, &res.PhoneticCodes); err != nil {
				return nil, fmt.Errorf("directory: decode phonetic codes: %w", err)
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// MemoryRepository is an in-memory directory for tests and single-binary
// development. Insertion order is preserved.
type MemoryRepository struct {
	mu        sync.RWMutex
	residents []Resident
}

// NewMemoryRepository creates an empty in-memory directory.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Add appends a resident, filling in ID, codes and creation time.
func (m *MemoryRepository) Add(res Resident) Resident {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	if len(res.PhoneticCodes) == 0 {
		res.PhoneticCodes = phonetics.EncodeName(res.FullName)
	}
	res.Phone = NormalizePhone(res.Phone)
	m.residents = append(m.residents, res)
	return res
}

// List returns residents in insertion order.
func (m *MemoryRepository) List(ctx context.Context) ([]Resident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Resident, len(m.residents))
	copy(out, m.residents)
	return out, nil
}

// GetByApartment returns residents registered to an apartment.
func (m *MemoryRepository) GetByApartment(ctx context.Context, apartment string) ([]Resident, error) {
	apartment = strings.TrimSpace(apartment)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Resident
	for _, res := range m.residents {
		if res.Apartment == apartment {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ Repository = (*PgRepository)(nil)
var _ Repository = (*MemoryRepository)(nil)
