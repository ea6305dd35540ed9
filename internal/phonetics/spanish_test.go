package phonetics

import (
	"reflect"
	"testing"
)

func TestEncode_CollapsesEquivalentSpellings(t *testing.T) {
	pairs := []struct {
		a, b string
	}{
		{"Deisy", "Daisy"},
		{"Deisy", "Deci"},
		{"Vargas", "Bargas"},
		{"Pérez", "Peres"},
		{"Zapata", "Sapata"},
		{"Quintero", "Kintero"},
		{"Hernández", "Ernandes"},
		{"Villa", "Biya"},
		{"Chávez", "Chaves"},
		{"Cecilia", "Sesilia"},
	}

	for _, tt := range pairs {
		codeA, codeB := Encode(tt.a), Encode(tt.b)
		if codeA == "" || codeA != codeB {
			t.Errorf("Encode(%q)=%q, Encode(%q)=%q; want equal non-empty codes",
				tt.a, codeA, tt.b, codeB)
		}
	}
}

func TestEncode_DistinguishesDifferentNames(t *testing.T) {
	pairs := []struct {
		a, b string
	}{
		{"Juan", "Pedro"},
		{"Colorado", "Castaño"},
		{"Maria", "Marta"},
	}

	for _, tt := range pairs {
		if Encode(tt.a) == Encode(tt.b) {
			t.Errorf("Encode(%q) == Encode(%q) == %q; want different codes",
				tt.a, tt.b, Encode(tt.a))
		}
	}
}

func TestEncode_Deterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		if got := Encode("Deisy Colorado"); got != Encode("Deisy Colorado") {
			t.Fatalf("Encode not deterministic: %q", got)
		}
	}
}

func TestEncode_Rules(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"h", ""},
		{"Ana", "an"},
		{"Eva", "ab"},
		{"Juan", "jn"},
		{"Colorado", "klrd"},
		{"Yolanda", "ylnd"},
	}

	for _, tt := range tests {
		if got := Encode(tt.in); got != tt.want {
			t.Errorf("Encode(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"  Deisy   Colorado ", []string{"deisy", "colorado"}},
		{"José Pérez", []string{"jose", "perez"}},
		{"Muñoz", []string{"muñoz"}},
		{"O'Brien-López", []string{"obrienlopez"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := NormalizeName(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("NormalizeName(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeFull(t *testing.T) {
	if got := NormalizeFull("  José  PÉREZ "); got != "jose perez" {
		t.Errorf("NormalizeFull: got %q", got)
	}
}

func TestEncodeName(t *testing.T) {
	got := EncodeName("Deisy Colorado")
	if len(got) != 2 {
		t.Fatalf("EncodeName: got %v, want two codes", got)
	}
	if got[0] != Encode("Daisy") {
		t.Errorf("first code %q should match Encode(Daisy)=%q", got[0], Encode("Daisy"))
	}
}
