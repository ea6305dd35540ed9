// Package resolver maps a noisy, speech-derived visitor query to resident
// directory entries. Resolution is a pure function of the directory
// snapshot and the query: same inputs, same ranked output.
package resolver

import (
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/porteroai/portero/internal/directory"
	"github.com/porteroai/portero/internal/phonetics"
)

// MatchKind records which strategy produced a candidate.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchPhonetic MatchKind = "phonetic"
	MatchFuzzy    MatchKind = "fuzzy"
)

// Outcome is the resolver's verdict for a query.
type Outcome string

const (
	OutcomeMatch     Outcome = "match"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeNotFound  Outcome = "not_found"
)

// Candidate is one scored directory entry.
type Candidate struct {
	Resident directory.Resident
	Kind     MatchKind
	Score    float64
}

// Result carries the outcome plus the ranked candidates. On
// OutcomeMatch, Candidates[0] is the resolved resident; on
// OutcomeAmbiguous the slice holds the contenders the caller should
// disambiguate between.
type Result struct {
	Outcome    Outcome
	Candidates []Candidate
}

// Options tune the fuzzy strategy.
type Options struct {
	// Threshold is the minimum fuzzy score to consider a candidate.
	Threshold float64
	// AmbiguityWindow treats top scores within this distance as a tie.
	AmbiguityWindow float64
}

// DefaultOptions match the production configuration defaults.
func DefaultOptions() Options {
	return Options{Threshold: 0.6, AmbiguityWindow: 0.05}
}

const phoneticScore = 0.85

var kindPriority = map[MatchKind]int{MatchExact: 0, MatchPhonetic: 1, MatchFuzzy: 2}

// Resolve runs the three strategies in order (exact, phonetic, fuzzy)
// and stops at the first that yields candidates. A single winner is a
// match; multiple contenders within the ambiguity window, or a bare
// first-name query hitting several residents, is ambiguous.
func Resolve(residents []directory.Resident, query string, opts Options) Result {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultOptions().Threshold
	}
	if opts.AmbiguityWindow <= 0 {
		opts.AmbiguityWindow = DefaultOptions().AmbiguityWindow
	}

	queryTokens := phonetics.NormalizeName(query)
	if len(queryTokens) == 0 {
		return Result{Outcome: OutcomeNotFound}
	}
	queryFull := phonetics.NormalizeFull(query)
	queryCodes := make([]string, 0, len(queryTokens))
	for _, tok := range queryTokens {
		queryCodes = append(queryCodes, phonetics.Encode(tok))
	}
	singleToken := len(queryTokens) == 1

	if cands := exactCandidates(residents, queryFull); len(cands) > 0 {
		return verdict(cands, singleToken, opts.AmbiguityWindow)
	}
	if cands := phoneticCandidates(residents, queryCodes); len(cands) > 0 {
		return verdict(cands, singleToken, opts.AmbiguityWindow)
	}
	if cands := fuzzyCandidates(residents, queryTokens, queryCodes, opts.Threshold); len(cands) > 0 {
		return verdict(cands, singleToken, opts.AmbiguityWindow)
	}
	return Result{Outcome: OutcomeNotFound}
}

func exactCandidates(residents []directory.Resident, queryFull string) []Candidate {
	var out []Candidate
	for _, res := range residents {
		if res.NormalizedName() == queryFull {
			out = append(out, Candidate{Resident: res, Kind: MatchExact, Score: 1.0})
		}
	}
	return out
}

// phoneticCandidates keeps residents whose codes cover every query code.
func phoneticCandidates(residents []directory.Resident, queryCodes []string) []Candidate {
	var out []Candidate
	for _, res := range residents {
		if codesCover(res.Codes(), queryCodes) {
			out = append(out, Candidate{Resident: res, Kind: MatchPhonetic, Score: phoneticScore})
		}
	}
	return out
}

// codesCover reports whether every query code is matched by a distinct
// candidate code.
func codesCover(candidate []string, query []string) bool {
	if len(query) == 0 || len(query) > len(candidate) {
		return false
	}
	used := make([]bool, len(candidate))
	for _, qc := range query {
		if qc == "" {
			return false
		}
		found := false
		for i, cc := range candidate {
			if !used[i] && cc == qc {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// fuzzyCandidates scores each resident as a weighted mix of token edit
// similarity and near-phonetic agreement.
func fuzzyCandidates(residents []directory.Resident, queryTokens, queryCodes []string, threshold float64) []Candidate {
	var out []Candidate
	for _, res := range residents {
		tokens := res.NameTokens()
		codes := res.Codes()
		if len(tokens) == 0 {
			continue
		}

		var ratioSum, codeHits float64
		for i, qt := range queryTokens {
			best := 0.0
			for _, ct := range tokens {
				if r := similarity(qt, ct); r > best {
					best = r
				}
			}
			ratioSum += best

			if queryCodes[i] != "" {
				for _, cc := range codes {
					if levenshtein.ComputeDistance(queryCodes[i], cc) <= 1 {
						codeHits++
						break
					}
				}
			}
		}

		n := float64(len(queryTokens))
		score := 0.7*(ratioSum/n) + 0.3*(codeHits/n)
		if score >= threshold {
			out = append(out, Candidate{Resident: res, Kind: MatchFuzzy, Score: score})
		}
	}
	return out
}

// similarity is a normalized edit-distance ratio in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= longest {
		return 0
	}
	return 1.0 - float64(dist)/float64(longest)
}

// verdict ranks candidates and applies the ambiguity policy.
func verdict(cands []Candidate, singleToken bool, window float64) Result {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return kindPriority[cands[i].Kind] < kindPriority[cands[j].Kind]
	})

	if len(cands) == 1 {
		return Result{Outcome: OutcomeMatch, Candidates: cands}
	}
	// A bare first name that touches several residents is never
	// auto-selected, whatever the score gap.
	if singleToken {
		return Result{Outcome: OutcomeAmbiguous, Candidates: cands}
	}
	if cands[0].Score-cands[1].Score <= window {
		return Result{Outcome: OutcomeAmbiguous, Candidates: cands}
	}
	return Result{Outcome: OutcomeMatch, Candidates: cands}
}
