package main

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// RecentTranscripts remembers the last few transcript lines so that
// near-duplicates, common when consecutive chunks overlap a phrase, are
// printed once.
type RecentTranscripts struct {
	mu        sync.Mutex
	lines     []string
	head      int
	size      int
	threshold float64
}

// NewRecentTranscripts keeps up to capacity lines. Lines whose similarity to
// a kept line reaches threshold (0 to 1) count as duplicates.
func NewRecentTranscripts(capacity int, threshold float64) *RecentTranscripts {
	if capacity <= 0 {
		capacity = 1
	}
	return &RecentTranscripts{
		lines:     make([]string, capacity),
		threshold: threshold,
	}
}

// Seen reports whether text duplicates a recent line. New lines are
// remembered.
func (r *RecentTranscripts) Seen(text string) bool {
	norm := normalize(text)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.size; i++ {
		if similarity(norm, r.lines[i]) >= r.threshold {
			return true
		}
	}

	r.lines[r.head] = norm
	r.head = (r.head + 1) % len(r.lines)
	if r.size < len(r.lines) {
		r.size++
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// similarity is 1 minus the edit distance over the longer length, counted in
// runes so CJK text is not weighted by its UTF-8 width.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
