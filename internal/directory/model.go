package directory

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/porteroai/portero/internal/phonetics"
)

// Resident is a read-only directory entry. PhoneticCodes are precomputed
// from the name tokens when the record is written so Resolve stays pure.
type Resident struct {
	ID            uuid.UUID `json:"id"`
	FullName      string    `json:"full_name"`
	Apartment     string    `json:"apartment"`
	Phone         string    `json:"phone"`
	Blacklisted   bool      `json:"blacklisted"`
	PhoneticCodes []string  `json:"phonetic_codes"`
	CreatedAt     time.Time `json:"created_at"`
}

// NormalizedName returns the accent-stripped lowercase full name.
func (r Resident) NormalizedName() string {
	return phonetics.NormalizeFull(r.FullName)
}

// NameTokens returns the normalized name split into tokens.
func (r Resident) NameTokens() []string {
	return phonetics.NormalizeName(r.FullName)
}

// Codes returns the precomputed phonetic codes, recomputing them when the
// record predates precomputation.
func (r Resident) Codes() []string {
	if len(r.PhoneticCodes) > 0 {
		return r.PhoneticCodes
	}
	return phonetics.EncodeName(r.FullName)
}

// NormalizePhone strips formatting and normalizes 10-digit numbers to the
// country-prefixed form used as the pending-authorization key.
func NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 10 {
		return "57" + d
	}
	return d
}
