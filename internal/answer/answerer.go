package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/nara/pkg/provider/llm"
)

// CitationType is the kind of passage a citation points at.
type CitationType string

const (
	CitationPara CitationType = "para"
	CitationTime CitationType = "time"
)

// Citation is one normalised reference: "[p12]" or "[t=05:30]".
type Citation struct {
	Type CitationType `json:"type"`
	Ref  string       `json:"ref"`
}

// Source records which parsing path produced a [Parsed].
type Source string

const (
	// SourceStructured means the model returned the requested JSON object.
	SourceStructured Source = "structured"

	// SourceExtracted means the reply was prose and citations were pattern
	// matched.
	SourceExtracted Source = "extracted"
)

// Parsed is the model reply reduced to markdown plus citations.
type Parsed struct {
	Markdown  string
	Citations []Citation
	Source    Source
}

const (
	defaultAnswerTemperature = 0.3
	defaultAnswerMaxTokens   = 800
)

// Answerer makes the single model call for a question.
type Answerer struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// AnswererOption configures an [Answerer].
type AnswererOption func(*Answerer)

// WithTemperature sets the sampling temperature. Default 0.3.
func WithTemperature(t float64) AnswererOption {
	return func(a *Answerer) { a.temperature = t }
}

// WithMaxTokens caps the answer length. Default 800.
func WithMaxTokens(n int) AnswererOption {
	return func(a *Answerer) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// NewAnswerer creates an Answerer backed by p.
func NewAnswerer(p llm.Provider, opts ...AnswererOption) *Answerer {
	a := &Answerer{llm: p, temperature: defaultAnswerTemperature, maxTokens: defaultAnswerMaxTokens}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Answer calls the model once with p and parses the reply. JSON output is
// requested when the provider supports it. Model errors are returned
// unchanged apart from wrapping; there is no fallback answer at this level.
func (a *Answerer) Answer(ctx context.Context, p Prompt) (Parsed, error) {
	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: p.SystemPrompt,
		Messages:     p.Messages,
		Temperature:  a.temperature,
		MaxTokens:    a.maxTokens,
		JSONObject:   a.llm.Capabilities().SupportsJSONMode,
	})
	if err != nil {
		return Parsed{}, fmt.Errorf("answer: model: %w", err)
	}
	if resp == nil {
		return Parsed{}, errors.New("answer: model: empty response")
	}
	parsed := Parse(resp.Content)
	if parsed.Markdown == "" {
		if parsed.Source == SourceStructured {
			return Parsed{}, errors.New("answer: model: structured reply without answer_markdown")
		}
		return Parsed{}, errors.New("answer: model: empty answer")
	}
	return parsed, nil
}

var (
	jsonFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

	// citationRe matches [t=MM:SS], bare [MM:SS], [pN] and [paraN].
	citationRe = regexp.MustCompile(`\[(?:t=)?(\d{1,4}:\d{2})\]|\[p(?:ara)?\s*(\d+)\]`)
)

type structuredReply struct {
	AnswerMarkdown string `json:"answer_markdown"`
	Citations      []struct {
		Type string          `json:"type"`
		Ref  json.RawMessage `json:"ref"`
	} `json:"citations"`
}

// Parse turns raw model output into a [Parsed]. A JSON object (optionally in
// a ```json fence) is [SourceStructured], with empty Markdown when
// answer_markdown is missing or blank; anything else is treated as prose and
// citations are extracted from the text ([SourceExtracted]). Bare [MM:SS] and
// [paraN] markers are rewritten to [t=MM:SS] and [pN] in the markdown and the
// refs. Citations are deduplicated in first-seen order.
func Parse(raw string) Parsed {
	body := strings.TrimSpace(raw)
	if m := jsonFenceRe.FindStringSubmatch(body); m != nil {
		body = m[1]
	}

	var sr structuredReply
	if strings.HasPrefix(body, "{") && json.Unmarshal([]byte(body), &sr) == nil {
		md, fromText := normalizeCitations(sr.AnswerMarkdown)
		var cites []Citation
		for _, c := range sr.Citations {
			if nc, ok := normalizeCitation(c.Type, c.Ref); ok {
				cites = append(cites, nc)
			}
		}
		return Parsed{
			Markdown:  strings.TrimSpace(md),
			Citations: dedupe(append(cites, fromText...)),
			Source:    SourceStructured,
		}
	}

	md, cites := normalizeCitations(raw)
	return Parsed{
		Markdown:  strings.TrimSpace(md),
		Citations: dedupe(cites),
		Source:    SourceExtracted,
	}
}

// ExtractCitations returns the normalised citations found in text.
func ExtractCitations(text string) []Citation {
	_, cites := normalizeCitations(text)
	return dedupe(cites)
}

// normalizeCitations rewrites every citation marker in text to its canonical
// form and returns the rewritten text with the citations in order.
func normalizeCitations(text string) (string, []Citation) {
	var cites []Citation
	out := citationRe.ReplaceAllStringFunc(text, func(m string) string {
		c := canonical(citationRe.FindStringSubmatch(m))
		cites = append(cites, c)
		return c.Ref
	})
	return out, cites
}

func canonical(sub []string) Citation {
	if sub[1] != "" {
		return Citation{Type: CitationTime, Ref: "[t=" + sub[1] + "]"}
	}
	return Citation{Type: CitationPara, Ref: "[p" + sub[2] + "]"}
}

// normalizeCitation accepts the loose shapes models produce for a JSON
// citation: the ref may be "[p3]", "p3", "3", 3, "05:30" or "[t=05:30]", and
// the type may be missing.
func normalizeCitation(typ string, rawRef json.RawMessage) (Citation, bool) {
	var ref string
	if err := json.Unmarshal(rawRef, &ref); err != nil {
		var n json.Number
		if err := json.Unmarshal(rawRef, &n); err != nil {
			return Citation{}, false
		}
		ref = n.String()
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Citation{}, false
	}

	if sub := citationRe.FindStringSubmatch(ref); sub != nil {
		return canonical(sub), true
	}
	bare := strings.Trim(ref, "[]")
	t := CitationType(strings.ToLower(typ))
	if t == CitationTime || (t != CitationPara && strings.Contains(bare, ":")) {
		bare = strings.TrimPrefix(bare, "t=")
		if _, ok := ParseTimestamp(bare); ok {
			return Citation{Type: CitationTime, Ref: "[t=" + bare + "]"}, true
		}
		return Citation{}, false
	}
	bare = strings.TrimPrefix(strings.TrimPrefix(bare, "para"), "p")
	if sub := citationRe.FindStringSubmatch("[p" + bare + "]"); sub != nil {
		return canonical(sub), true
	}
	return Citation{}, false
}

func dedupe(cites []Citation) []Citation {
	if len(cites) == 0 {
		return nil
	}
	seen := make(map[Citation]struct{}, len(cites))
	out := make([]Citation, 0, len(cites))
	for _, c := range cites {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
