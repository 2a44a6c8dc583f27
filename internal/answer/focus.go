package answer

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/MrWong99/nara/pkg/content"
)

// DefaultFocusFallback is the number of leading units used when no unit
// matches the question.
const DefaultFocusFallback = 12

// neighbourWindow is how many units on each side of a match are kept.
const neighbourWindow = 1

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all am an and any are as at be because
		been before being below between both but by can could did do does doing
		down during each few for from further had has have having he her here hers
		herself him himself his how i if in into is it its itself just me more
		most my myself no nor not now of off on once only or other our ours
		ourselves out over own same she should so some such than that the their
		theirs them themselves then there these they this those through to too
		under until up very was we were what when where which while who whom why
		will with would you your yours yourself yourselves tell explain mean
		means happen happened happening going does say said talk talking book
		chapter author narrator right now here please hey nara`) {
		stopWords[w] = struct{}{}
	}
}

// Keywords returns the distinct lower-case content words of text in
// first-seen order.
func Keywords(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range tokenize(text) {
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// SelectFocused returns the units that share at least one keyword with
// question, each with its immediate neighbours, in document order and without
// duplicates. Matches are taken in order of keyword overlap (earlier units
// first on ties) until the formatted selection would exceed budget tokens; a
// budget <= 0 keeps every match. When nothing matches it returns the leading
// units up to fallbackK (default [DefaultFocusFallback] when fallbackK <= 0),
// under the same budget.
func SelectFocused(units []content.TranscriptUnit, question string, fallbackK, budget int) []content.TranscriptUnit {
	if fallbackK <= 0 {
		fallbackK = DefaultFocusFallback
	}

	keywords := Keywords(question)
	type match struct{ idx, score int }
	var matches []match
	for i, u := range units {
		if n := overlap(u.Text, keywords); n > 0 {
			matches = append(matches, match{i, n})
		}
	}

	sel := newSelection(units, budget)
	if len(matches) == 0 {
		for i := range min(fallbackK, len(units)) {
			if !sel.add(i) {
				break
			}
		}
		return sel.units()
	}

	slices.SortStableFunc(matches, func(a, b match) int { return cmp.Compare(b.score, a.score) })
	for _, m := range matches {
		if !sel.add(m.idx) {
			continue
		}
		for j := max(0, m.idx-neighbourWindow); j <= min(len(units)-1, m.idx+neighbourWindow); j++ {
			sel.add(j)
		}
		if sel.full() {
			break
		}
	}
	return sel.units()
}

// selection accumulates unit indices under a token budget.
type selection struct {
	all    []content.TranscriptUnit
	keep   []bool
	budget int
	used   int
}

func newSelection(units []content.TranscriptUnit, budget int) *selection {
	return &selection{all: units, keep: make([]bool, len(units)), budget: budget}
}

// add keeps unit i if it fits. It reports whether i is kept afterwards.
func (s *selection) add(i int) bool {
	if s.keep[i] {
		return true
	}
	// The trailing newline makes per-unit costs sum to at least the estimate
	// of the joined text.
	cost := EstimateTokens(FormatUnits(s.all[i:i+1]) + "\n")
	if s.budget > 0 && s.used+cost > s.budget {
		return false
	}
	s.keep[i] = true
	s.used += cost
	return true
}

func (s *selection) full() bool { return s.budget > 0 && s.used >= s.budget }

func (s *selection) units() []content.TranscriptUnit {
	out := make([]content.TranscriptUnit, 0, len(s.all))
	for i, u := range s.all {
		if s.keep[i] {
			out = append(out, u)
		}
	}
	return out
}

// overlap counts the distinct keywords that occur in text.
func overlap(text string, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	words := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		words[tok] = struct{}{}
	}
	n := 0
	for _, k := range keywords {
		if _, ok := words[k]; ok {
			n++
		}
	}
	return n
}
