// Package medterm provides clinical vocabulary lookup for transcript tagging.
package medterm

import (
	"slices"
	"sort"
	"strings"
)

// Index reports whether a normalized word is a known clinical term.
type Index interface {
	IsTerm(normalized string) bool
}

// Normalize lowercases word and keeps only [a-z0-9-].
func Normalize(word string) string {
	var b strings.Builder
	b.Grow(len(word))
	for _, r := range strings.ToLower(word) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tagger is an Index that also recognizes multi-word terms.
type Tagger interface {
	Index
	Tag(normalized []string) []bool
}

// Tag flags each normalized token that belongs to a known term. Indexes that
// are not Taggers are consulted one word at a time.
func Tag(index Index, normalized []string) []bool {
	if tagger, ok := index.(Tagger); ok {
		return tagger.Tag(normalized)
	}
	flags := make([]bool, len(normalized))
	for i, word := range normalized {
		flags[i] = index.IsTerm(word)
	}
	return flags
}

// Set is an in-memory Tagger. Single-word entries match on their own;
// multi-word entries match only as a full token sequence, so the words inside
// them ("of" in "shortness of breath") are not terms by themselves.
type Set struct {
	terms   map[string]struct{}
	phrases map[string][][]string
}

func NewSet(entries ...string) *Set {
	s := &Set{terms: make(map[string]struct{}, len(entries)), phrases: make(map[string][][]string)}
	s.Add(entries...)
	return s
}

// Add inserts entries into the set.
func (s *Set) Add(entries ...string) {
	for _, entry := range entries {
		var tokens []string
		for _, field := range strings.Fields(entry) {
			if n := Normalize(field); n != "" {
				tokens = append(tokens, n)
			}
		}
		switch len(tokens) {
		case 0:
		case 1:
			s.terms[tokens[0]] = struct{}{}
		default:
			if !s.hasPhrase(tokens) {
				s.phrases[tokens[0]] = append(s.phrases[tokens[0]], tokens)
			}
		}
	}
}

func (s *Set) hasPhrase(tokens []string) bool {
	for _, p := range s.phrases[tokens[0]] {
		if slices.Equal(p, tokens) {
			return true
		}
	}
	return false
}

func (s *Set) IsTerm(normalized string) bool {
	if s == nil || normalized == "" {
		return false
	}
	_, ok := s.terms[normalized]
	return ok
}

func (s *Set) Tag(normalized []string) []bool {
	flags := make([]bool, len(normalized))
	if s == nil {
		return flags
	}
	for i, word := range normalized {
		if s.IsTerm(word) {
			flags[i] = true
		}
		for _, phrase := range s.phrases[word] {
			end := i + len(phrase)
			if end > len(normalized) || !slices.Equal(normalized[i:end], phrase) {
				continue
			}
			for k := i; k < end; k++ {
				flags[k] = true
			}
		}
	}
	return flags
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	n := len(s.terms)
	for _, group := range s.phrases {
		n += len(group)
	}
	return n
}

// Terms returns the set contents in sorted order, multi-word entries joined
// by single spaces.
func (s *Set) Terms() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, s.Len())
	for term := range s.terms {
		out = append(out, term)
	}
	for _, group := range s.phrases {
		for _, phrase := range group {
			out = append(out, strings.Join(phrase, " "))
		}
	}
	sort.Strings(out)
	return out
}

// Empty is an Index that matches nothing.
type Empty struct{}

func (Empty) IsTerm(string) bool { return false }
