package wake

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Strategy scores how well transcript matches phrase, in [0, 1]. Strategies
// receive already normalised strings.
type Strategy func(phrase, transcript string, table SubstitutionTable) float64

// SubstitutionTable maps commonly misrecognised words to the word the
// listener most likely said. Keys and values are lower case.
type SubstitutionTable map[string]string

// DefaultSubstitutions returns the built-in table for "hey nara".
func DefaultSubstitutions() SubstitutionTable {
	return SubstitutionTable{
		"hay":    "hey",
		"hei":    "hey",
		"he":     "hey",
		"a":      "hey",
		"nora":   "nara",
		"norah":  "nara",
		"narrow": "nara",
		"sarah":  "nara",
		"laura":  "nara",
		"nada":   "nara",
		"tiara":  "nara",
		"nyra":   "nara",
		"narra":  "nara",
	}
}

const (
	editDistancePenalty = 0.3
	substitutionScore   = 0.8
	partialPrefixScore  = 0.8
	partialSubstrScore  = 0.6
	partialMinimum      = 0.6
	minPartialWordLen   = 3
)

// Strategies lists every scoring strategy in evaluation order.
var Strategies = []Strategy{
	func(p, t string, _ SubstitutionTable) float64 { return ExactMatch(p, t) },
	func(p, t string, _ SubstitutionTable) float64 { return EditDistanceMatch(p, t) },
	SubstitutionMatch,
	func(p, t string, _ SubstitutionTable) float64 { return PartialWordMatch(p, t) },
}

// Normalize lower-cases s, replaces punctuation with spaces and collapses
// whitespace. Apostrophes are dropped so "what's" stays one word.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Score returns the wake-phrase confidence for transcript: the best strategy
// score scaled by the STT confidence. A zero sttConfidence means the provider
// did not report one and counts as 1.
func Score(phrase, transcript string, sttConfidence float64, table SubstitutionTable) float64 {
	p, t := Normalize(phrase), Normalize(transcript)
	if p == "" || t == "" {
		return 0
	}
	best := 0.0
	for _, s := range Strategies {
		best = max(best, s(p, t, table))
		if best >= 1 {
			break
		}
	}
	if sttConfidence <= 0 {
		sttConfidence = 1
	}
	return best * min(sttConfidence, 1)
}

// ExactMatch returns 1 if phrase appears in transcript as a contiguous word
// sequence, otherwise 0.
func ExactMatch(phrase, transcript string) float64 {
	if containsWords(strings.Fields(transcript), strings.Fields(phrase)) {
		return 1
	}
	return 0
}

// EditDistanceMatch returns the normalised Levenshtein similarity between
// phrase and the best-matching window of transcript words, minus 0.3 and
// floored at zero.
func EditDistanceMatch(phrase, transcript string) float64 {
	pw := strings.Fields(phrase)
	best := 0.0
	for _, w := range windows(strings.Fields(transcript), len(pw)) {
		best = max(best, similarity(phrase, strings.Join(w, " ")))
	}
	return max(0, best-editDistancePenalty)
}

// SubstitutionMatch applies table to both strings and returns 0.8 when the
// substituted phrase appears in the substituted transcript.
func SubstitutionMatch(phrase, transcript string, table SubstitutionTable) float64 {
	if len(table) == 0 {
		return 0
	}
	p := strings.Fields(substitute(phrase, table))
	t := strings.Fields(substitute(transcript, table))
	if containsWords(t, p) {
		return substitutionScore
	}
	return 0
}

// PartialWordMatch scores each phrase word against its best transcript word
// (exact 1.0, shared three-letter prefix 0.8, substring 0.6) and averages the
// results. Averages below 0.6 count as no match.
func PartialWordMatch(phrase, transcript string) float64 {
	pw := strings.Fields(phrase)
	tw := strings.Fields(transcript)
	if len(pw) == 0 || len(tw) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range pw {
		best := 0.0
		for _, t := range tw {
			best = max(best, wordScore(p, t))
		}
		total += best
	}
	avg := total / float64(len(pw))
	if avg < partialMinimum {
		return 0
	}
	return avg
}

func wordScore(p, t string) float64 {
	if p == t {
		return 1
	}
	if utf8.RuneCountInString(p) < minPartialWordLen || utf8.RuneCountInString(t) < minPartialWordLen {
		return 0
	}
	if prefix(p, minPartialWordLen) == prefix(t, minPartialWordLen) {
		return partialPrefixScore
	}
	if strings.Contains(p, t) || strings.Contains(t, p) {
		return partialSubstrScore
	}
	return 0
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return s
	}
	return string(r[:n])
}

func similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

func substitute(s string, table SubstitutionTable) string {
	words := strings.Fields(s)
	for i, w := range words {
		if r, ok := table[w]; ok {
			words[i] = r
		}
	}
	return strings.Join(words, " ")
}

// containsWords reports whether needle occurs in haystack as a contiguous run.
func containsWords(haystack, needle []string) bool {
	return indexWords(haystack, needle) >= 0
}

func indexWords(haystack, needle []string) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, w := range needle {
			if haystack[i+j] != w {
				continue outer
			}
		}
		return i
	}
	return -1
}

// windows returns every run of n consecutive words. Shorter inputs yield the
// input itself.
func windows(words []string, n int) [][]string {
	if len(words) == 0 {
		return nil
	}
	if n <= 0 || len(words) <= n {
		return [][]string{words}
	}
	out := make([][]string, 0, len(words)-n+1)
	for i := 0; i+n <= len(words); i++ {
		out = append(out, words[i:i+n])
	}
	return out
}
