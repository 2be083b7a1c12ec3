// Package dedup flags near-duplicate entries by title and content overlap.
//
// Every measure here is symmetric, so Compare(a, b) and Compare(b, a) always
// agree on Duplicate. Matching is heuristic: it neither promises to catch
// every duplicate nor to avoid false positives.
package dedup

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kalambet/loratk/internal/storage"
)

const (
	DefaultTitleThreshold   = 0.8
	DefaultContentThreshold = 0.85
)

// Normalize lowercases s and collapses runs of whitespace to a single space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tokens returns the set of lowercased letter/digit runs in s.
func Tokens(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard is |a∩b| / |a∪b|, or 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Match describes how an entry compares against another one.
type Match struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	TitleSimilarity   float64 `json:"title_similarity"`
	ContentSimilarity float64 `json:"content_similarity"`
	Duplicate         bool    `json:"duplicate"`
	Reason            string  `json:"reason,omitempty"`
}

// Similarity is the stronger of the two measures, used to rank matches.
func (m Match) Similarity() float64 {
	return max(m.TitleSimilarity, m.ContentSimilarity)
}

// Checker holds the configurable thresholds.
type Checker struct {
	TitleThreshold   float64
	ContentThreshold float64
}

// NewChecker returns a Checker, falling back to the defaults for
// thresholds outside (0,1].
func NewChecker(titleThreshold, contentThreshold float64) *Checker {
	if titleThreshold <= 0 || titleThreshold > 1 {
		titleThreshold = DefaultTitleThreshold
	}
	if contentThreshold <= 0 || contentThreshold > 1 {
		contentThreshold = DefaultContentThreshold
	}
	return &Checker{TitleThreshold: titleThreshold, ContentThreshold: contentThreshold}
}

// fingerprint caches the normalized pieces of one entry.
type fingerprint struct {
	entry   storage.Entry
	title   string
	titleT  map[string]struct{}
	content map[string]struct{}
}

func newFingerprint(e storage.Entry) fingerprint {
	return fingerprint{
		entry:   e,
		title:   Normalize(e.Title),
		titleT:  Tokens(e.Title),
		content: Tokens(e.Content),
	}
}

func (c *Checker) compare(a, b fingerprint) Match {
	m := Match{
		ID:                b.entry.ID,
		Title:             b.entry.Title,
		TitleSimilarity:   Jaccard(a.titleT, b.titleT),
		ContentSimilarity: Jaccard(a.content, b.content),
	}
	switch {
	case a.title != "" && a.title == b.title:
		m.Duplicate, m.Reason = true, "same title"
	case m.TitleSimilarity >= c.TitleThreshold:
		m.Duplicate, m.Reason = true, "similar title"
	case m.ContentSimilarity >= c.ContentThreshold:
		m.Duplicate, m.Reason = true, "similar content"
	}
	return m
}

// Compare measures b against a. The returned Match carries b's ID.
func (c *Checker) Compare(a, b storage.Entry) Match {
	return c.compare(newFingerprint(a), newFingerprint(b))
}

// IsDuplicate reports whether a and b look like the same document.
func (c *Checker) IsDuplicate(a, b storage.Entry) bool {
	return c.Compare(a, b).Duplicate
}

// FindDuplicate returns the strongest duplicate of candidate in existing.
// Entries sharing the candidate's non-empty ID are ignored.
func (c *Checker) FindDuplicate(candidate storage.Entry, existing []storage.Entry) (Match, bool) {
	cf := newFingerprint(candidate)
	var best Match
	found := false
	for _, e := range existing {
		if candidate.ID != "" && e.ID == candidate.ID {
			continue
		}
		m := c.compare(cf, newFingerprint(e))
		if !m.Duplicate {
			continue
		}
		if !found || m.Similarity() > best.Similarity() {
			best, found = m, true
		}
	}
	return best, found
}

// Pair is one duplicate pair found by Scan.
type Pair struct {
	A     storage.Entry `json:"a"`
	B     storage.Entry `json:"b"`
	Match Match         `json:"match"`
}

// Scan compares every pair in entries and returns the duplicates in input order.
func (c *Checker) Scan(entries []storage.Entry) []Pair {
	prints := make([]fingerprint, len(entries))
	for i, e := range entries {
		prints[i] = newFingerprint(e)
	}

	var pairs []Pair
	for i := 0; i < len(prints); i++ {
		for j := i + 1; j < len(prints); j++ {
			m := c.compare(prints[i], prints[j])
			if m.Duplicate {
				pairs = append(pairs, Pair{A: entries[i], B: entries[j], Match: m})
			}
		}
	}
	return pairs
}

// SimilarTitles returns entries whose title token overlap with title is at
// least threshold, best first, capped at limit (<= 0 means 5).
func SimilarTitles(title string, entries []storage.Entry, threshold float64, limit int) []Match {
	if limit <= 0 {
		limit = 5
	}
	want := Tokens(title)
	if len(want) == 0 {
		return nil
	}

	var matches []Match
	for _, e := range entries {
		sim := Jaccard(want, Tokens(e.Title))
		if sim >= threshold && sim > 0 {
			matches = append(matches, Match{ID: e.ID, Title: e.Title, TitleSimilarity: sim, Duplicate: true, Reason: "similar title"})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].TitleSimilarity > matches[j].TitleSimilarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
