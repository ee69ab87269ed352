// Package search provides a simple, deterministic, concurrency-safe in-memory
// matcher over serviced objects. It backs the second-chance organization
// lookup: when the exact substring search finds nothing, the matcher ranks
// objects by token overlap so word reordering and extra words still resolve
// ("офис акме на ленина" → «Акме», ул. Ленина). It is intentionally small and
// dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable, read-only matcher after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// object's token set: score = |Q ∩ O| / |Q ∪ O|, where an object's tokens are
// drawn from its name, address, and description.
package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cleanops/go-intake-backend/internal/domain"
)

// Match is a ranked object with its similarity score.
type Match struct {
	Object domain.CleaningObject
	Score  float64
}

// Matcher is the minimal interface implemented by all object matchers.
type Matcher interface {
	TopK(query string, k int) []Match
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	minScore  float64
}

func defaultConfig() config {
	return config{
		stopwords: nil,
		minScore:  0.2,
	}
}

// WithStopwords drops the given words (case-insensitive) from both object and
// query token sets. Useful for fillers like "офис", "ооо", "бц".
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMinScore sets the similarity floor below which objects are not reported.
// Values outside (0, 1] are ignored.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s > 0 && s <= 1 {
			c.minScore = s
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type entry struct {
	object domain.CleaningObject
	tokens map[string]struct{}
	tLen   int
}

type matcher struct {
	cfg     config
	entries []entry
}

// NewMatcher builds a Matcher over the given objects. Objects whose name,
// address, and description yield no tokens are skipped.
func NewMatcher(objects []domain.CleaningObject, opts ...Option) Matcher {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	entries := make([]entry, 0, len(objects))
	for _, obj := range objects {
		text := strings.TrimSpace(normalizeWhitespace(
			obj.Name + " " + obj.Address + " " + obj.Description))
		toks := tokenize(text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		entries = append(entries, entry{object: obj, tokens: toks, tLen: len(toks)})
	}
	return &matcher{cfg: cfg, entries: entries}
}

// TopK returns up to k best-matching objects by Jaccard similarity, filtered
// by the configured minimum score.
func (m *matcher) TopK(q string, k int) []Match {
	if len(m.entries) == 0 {
		return nil
	}
	if strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, m.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	buf := make([]Match, 0, min(k*4, len(m.entries)))
	for _, e := range m.entries {
		over := overlap(qTokens, e.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + e.tLen - over)
		if union <= 0 {
			continue
		}
		score := float64(over) / union
		if score < m.cfg.minScore {
			continue
		}
		buf = append(buf, Match{Object: e.object, Score: score})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		if buf[a].Object.Name != buf[b].Object.Name {
			return buf[a].Object.Name < buf[b].Object.Name
		}
		return buf[a].Object.ID < buf[b].Object.ID
	})

	if k > len(buf) {
		k = len(buf)
	}
	return buf[:k]
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
