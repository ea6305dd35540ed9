// Package phonetics encodes Spanish names into short phonetic codes so
// that speech-to-text spellings of the same sound compare equal. The
// encoding collapses the transcription ambiguities we see from the voice
// bridge: b/v, c/s/z seseo, qu/k, silent h, ll/y, and vowel drift
// ("Deisy" vs "Daisy" vs "Deci").
package phonetics

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lowercases, strips accents, collapses whitespace and
// splits a spoken name into tokens. The output feeds both exact-match
// comparison and per-token encoding.
func NormalizeName(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	s = norm.NFC.String(s)
	// ñ must survive accent stripping as a distinct sound.
	s = strings.ReplaceAll(s, "ñ", "\x00")
	if out, _, err := transform.String(stripAccents, s); err == nil {
		s = out
	}
	s = strings.ReplaceAll(s, "\x00", "ñ")

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || r == ' ' || r == 'ñ' {
			b.WriteRune(r)
		} else if unicode.IsSpace(r) {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// NormalizeFull returns the normalized name joined back into a single
// comparable string.
func NormalizeFull(s string) string {
	return strings.Join(NormalizeName(s), " ")
}

// Encode maps a single name token to its phonetic code. The code is a
// short deterministic string, not a hash: two spellings of the same
// sound produce the same code.
//
// Rules, in application order:
//   - lowercase, accents stripped, ñ → "ny"
//   - ll → y, qu → k, h dropped
//   - b/v → b, z → s, c → s before e/i and k otherwise
//   - consecutive duplicates collapsed
//   - vowels after the first position dropped; a leading vowel is
//     normalized to "a" (y counts as a vowel except word-initially)
func Encode(token string) string {
	tokens := NormalizeName(token)
	if len(tokens) == 0 {
		return ""
	}
	word := tokens[0]

	word = strings.ReplaceAll(word, "ñ", "ny")
	word = strings.ReplaceAll(word, "ll", "y")
	word = strings.ReplaceAll(word, "qu", "k")
	word = strings.ReplaceAll(word, "h", "")
	if word == "" {
		return ""
	}

	runesIn := []rune(word)
	mapped := make([]rune, 0, len(runesIn))
	for i, r := range runesIn {
		switch r {
		case 'b', 'v':
			mapped = append(mapped, 'b')
		case 'z':
			mapped = append(mapped, 's')
		case 'c':
			if i+1 < len(runesIn) && (runesIn[i+1] == 'e' || runesIn[i+1] == 'i') {
				mapped = append(mapped, 's')
			} else {
				mapped = append(mapped, 'k')
			}
		case 'w':
			mapped = append(mapped, 'u')
		default:
			mapped = append(mapped, r)
		}
	}

	// Collapse doubled letters.
	collapsed := make([]rune, 0, len(mapped))
	for _, r := range mapped {
		if len(collapsed) > 0 && collapsed[len(collapsed)-1] == r {
			continue
		}
		collapsed = append(collapsed, r)
	}

	// Keep the first sound, drop vowels everywhere else.
	out := make([]rune, 0, len(collapsed))
	for i, r := range collapsed {
		if i == 0 {
			if isVowel(r, true) {
				out = append(out, 'a')
			} else {
				out = append(out, r)
			}
			continue
		}
		if isVowel(r, false) {
			continue
		}
		if out[len(out)-1] == r {
			// Dropping a vowel can bring equal consonants together.
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// EncodeName encodes every token of a full name.
func EncodeName(s string) []string {
	tokens := NormalizeName(s)
	codes := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if code := Encode(tok); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// isVowel reports whether r reads as a vowel. y is vocalic except at the
// start of a word ("Yolanda" keeps its consonant y).
func isVowel(r rune, wordInitial bool) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	case 'y':
		return !wordInitial
	}
	return false
}
