package interaction

import (
	"regexp"
	"strings"
)

var (
	citationMarkRe = regexp.MustCompile(`\[(?:t=)?\d{1,4}:\d{2}\]|\[p(?:ara)?\s*\d+\]`)
	codeFenceRe    = regexp.MustCompile("(?m)^\\s*```.*$")
	imageRe        = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkRe         = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	ruleRe         = regexp.MustCompile(`(?m)^\s*(?:[-*_]\s*){3,}$`)
	headingRe      = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	quoteRe        = regexp.MustCompile(`(?m)^\s*>\s?`)
	bulletRe       = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
	emphasisRe     = regexp.MustCompile(`\*+|~~|` + "`+")
	underOpenRe    = regexp.MustCompile(`(^|\s)_+(\S)`)
	underCloseRe   = regexp.MustCompile(`(\S)_+(\s|$|[.,!?;:])`)
	spaceBeforeRe  = regexp.MustCompile(`\s+([.,!?;:])`)
	multiSpaceRe   = regexp.MustCompile(`\s{2,}`)
)

// StripMarkdown turns answer markdown into plain text suitable for a speech
// synthesiser. Citation markers, headings, list bullets, emphasis, links and
// code fences are removed. Each non-empty line becomes a sentence.
func StripMarkdown(md string) string {
	s := citationMarkRe.ReplaceAllString(md, "")
	s = codeFenceRe.ReplaceAllString(s, "")
	s = imageRe.ReplaceAllString(s, "$1")
	s = linkRe.ReplaceAllString(s, "$1")
	s = ruleRe.ReplaceAllString(s, "")
	s = headingRe.ReplaceAllString(s, "")
	s = quoteRe.ReplaceAllString(s, "")
	s = bulletRe.ReplaceAllString(s, "")
	s = emphasisRe.ReplaceAllString(s, "")
	s = underOpenRe.ReplaceAllString(s, "$1$2")
	s = underCloseRe.ReplaceAllString(s, "$1$2")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.ContainsAny(line[len(line)-1:], ".!?:;,") {
			line += "."
		}
		lines = append(lines, line)
	}
	s = strings.Join(lines, " ")
	s = spaceBeforeRe.ReplaceAllString(s, "$1")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SplitSentences splits text at '.', '!' or '?' followed by whitespace. The
// terminator stays with its sentence; trailing text without one is returned as
// the last element.
func SplitSentences(text string) []string {
	var out []string
	rest := strings.TrimSpace(text)
	for rest != "" {
		idx := sentenceBoundary(rest)
		if idx < 0 {
			out = append(out, rest)
			break
		}
		out = append(out, strings.TrimSpace(rest[:idx+1]))
		rest = strings.TrimSpace(rest[idx+1:])
	}
	return out
}

// sentenceBoundary returns the index of the first '.', '!' or '?' that is
// immediately followed by whitespace, or -1.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}
