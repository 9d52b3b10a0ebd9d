package analysis

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"call-assist-service/internal/models"
)

// Note categories.
const (
	CategoryInformation = "information"
	CategoryProblems    = "problems"
	CategoryRequests    = "requests"
	CategoryConcerns    = "concerns"
)

// NoteLimits caps how many new notes one dispatch may add per category.
type NoteLimits struct {
	Information int
	Problems    int
	Requests    int
	Concerns    int
}

// DefaultNoteLimits allows two information items and one of each other category.
func DefaultNoteLimits() NoteLimits {
	return NoteLimits{Information: 2, Problems: 1, Requests: 1, Concerns: 1}
}

// NoteMerger deduplicates candidate notes against existing ones.
//
// Two notes are duplicates when their normalized forms are equal, or when one
// contains the other and the shorter is at least MinLength long. Containment is
// aggressive and can suppress a distinct short note ("billing" vs "billing issue");
// MinLength is the knob for that tradeoff.
type NoteMerger struct {
	Limits    NoteLimits
	MinLength int
	Prefixes  []string
}

// NewNoteMerger creates a merger. Prefixes are compared after normalization.
func NewNoteMerger(limits NoteLimits, minLength int, prefixes []string) *NoteMerger {
	m := &NoteMerger{Limits: limits, MinLength: minLength}
	for _, p := range prefixes {
		if p = m.collapse(p); p != "" {
			m.Prefixes = append(m.Prefixes, p)
		}
	}
	return m
}

// collapse lowercases and folds whitespace. Casers carry state, so one is made per call.
func (m *NoteMerger) collapse(s string) string {
	return strings.Join(strings.Fields(cases.Lower(language.Und).String(s)), " ")
}

// Normalize lowercases, collapses whitespace, and strips one boilerplate prefix
// and trailing punctuation.
func (m *NoteMerger) Normalize(s string) string {
	n := m.collapse(s)
	for _, p := range m.Prefixes {
		if strings.HasPrefix(n, p) {
			n = strings.TrimSpace(n[len(p):])
			break
		}
	}
	return strings.TrimRight(n, ".!,;: ")
}

func (m *NoteMerger) duplicate(norm string, existing []string) bool {
	for _, e := range existing {
		if norm == e {
			return true
		}
		short, long := norm, e
		if len(short) > len(long) {
			short, long = long, short
		}
		if len(short) >= m.MinLength && strings.Contains(long, short) {
			return true
		}
	}
	return false
}

// MergeStats counts accepted and rejected candidates by category.
type MergeStats struct {
	Added      map[string]int
	Duplicates map[string]int
}

// Merge returns existing plus the accepted candidates, appended verbatim.
// existing is not modified.
func (m *NoteMerger) Merge(existing, candidates models.Notes) (models.Notes, MergeStats) {
	out := existing.Clone()
	stats := MergeStats{Added: map[string]int{}, Duplicates: map[string]int{}}

	seen := make([]string, 0, len(existing.All()))
	for _, n := range existing.All() {
		seen = append(seen, m.Normalize(n))
	}

	add := func(category string, dst *[]string, items []string, limit int) {
		added := 0
		for _, item := range items {
			if added >= limit {
				break
			}
			norm := m.Normalize(item)
			if norm == "" {
				continue
			}
			if m.duplicate(norm, seen) {
				stats.Duplicates[category]++
				continue
			}
			*dst = append(*dst, strings.TrimSpace(item))
			seen = append(seen, norm)
			added++
		}
		stats.Added[category] = added
	}

	add(CategoryInformation, &out.Information, candidates.Information, m.Limits.Information)
	add(CategoryProblems, &out.Problems, candidates.Problems, m.Limits.Problems)
	add(CategoryRequests, &out.Requests, candidates.Requests, m.Limits.Requests)
	add(CategoryConcerns, &out.Concerns, candidates.Concerns, m.Limits.Concerns)
	return out, stats
}

// ReplaceList returns a copy of next. Coaching and solutions are replaced wholesale.
func ReplaceList(next []string) []string {
	out := make([]string, 0, len(next))
	for _, s := range next {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
