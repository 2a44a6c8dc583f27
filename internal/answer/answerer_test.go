package answer_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/nara/internal/answer"
	"github.com/MrWong99/nara/pkg/provider/llm"
	llmmock "github.com/MrWong99/nara/pkg/provider/llm/mock"
	"github.com/MrWong99/nara/pkg/types"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantSource answer.Source
		wantMD     string
		wantCites  []answer.Citation
	}{
		{
			name:       "normalised time citation is idempotent",
			raw:        "Thom arrives here [t=02:45].",
			wantSource: answer.SourceExtracted,
			wantMD:     "Thom arrives here [t=02:45].",
			wantCites:  []answer.Citation{{Type: answer.CitationTime, Ref: "[t=02:45]"}},
		},
		{
			name:       "bare timestamp normalised",
			raw:        "See [8:00] for the fight.",
			wantSource: answer.SourceExtracted,
			wantMD:     "See [t=8:00] for the fight.",
			wantCites:  []answer.Citation{{Type: answer.CitationTime, Ref: "[t=8:00]"}},
		},
		{
			name:       "paragraph forms deduplicated",
			raw:        "Rand runs [para3]. He hides [p3] and waits [p 7].",
			wantSource: answer.SourceExtracted,
			wantMD:     "Rand runs [p3]. He hides [p3] and waits [p7].",
			wantCites: []answer.Citation{
				{Type: answer.CitationPara, Ref: "[p3]"},
				{Type: answer.CitationPara, Ref: "[p7]"},
			},
		},
		{
			name:       "long audiobook timestamp",
			raw:        "It happens at [t=125:10].",
			wantSource: answer.SourceExtracted,
			wantMD:     "It happens at [t=125:10].",
			wantCites:  []answer.Citation{{Type: answer.CitationTime, Ref: "[t=125:10]"}},
		},
		{
			name:       "timestamp past a thousand minutes",
			raw:        "The Waygate opens [t=1016:40].",
			wantSource: answer.SourceExtracted,
			wantMD:     "The Waygate opens [t=1016:40].",
			wantCites:  []answer.Citation{{Type: answer.CitationTime, Ref: "[t=1016:40]"}},
		},
		{
			name:       "no citations",
			raw:        "  I cannot tell yet.  ",
			wantSource: answer.SourceExtracted,
			wantMD:     "I cannot tell yet.",
		},
		{
			name:       "structured reply",
			raw:        `{"answer_markdown": "Thom is a **gleeman** [p2].", "citations": [{"type": "para", "ref": "[p2]"}, {"type": "time", "ref": "30:50"}]}`,
			wantSource: answer.SourceStructured,
			wantMD:     "Thom is a **gleeman** [p2].",
			wantCites: []answer.Citation{
				{Type: answer.CitationPara, Ref: "[p2]"},
				{Type: answer.CitationTime, Ref: "[t=30:50]"},
			},
		},
		{
			name:       "structured in fence with loose refs",
			raw:        "```json\n{\"answer_markdown\": \"At [31:00] Thom juggles.\", \"citations\": [{\"type\": \"para\", \"ref\": 2}, {\"ref\": \"p9\"}]}\n```",
			wantSource: answer.SourceStructured,
			wantMD:     "At [t=31:00] Thom juggles.",
			wantCites: []answer.Citation{
				{Type: answer.CitationPara, Ref: "[p2]"},
				{Type: answer.CitationPara, Ref: "[p9]"},
				{Type: answer.CitationTime, Ref: "[t=31:00]"},
			},
		},
		{
			name:       "json without answer stays structured",
			raw:        `{"answer_markdown": "", "citations": []}`,
			wantSource: answer.SourceStructured,
			wantMD:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := answer.Parse(tt.raw)
			if got.Source != tt.wantSource {
				t.Errorf("Source = %s, want %s", got.Source, tt.wantSource)
			}
			if got.Markdown != tt.wantMD {
				t.Errorf("Markdown = %q, want %q", got.Markdown, tt.wantMD)
			}
			if !slices.Equal(got.Citations, tt.wantCites) {
				t.Errorf("Citations = %v, want %v", got.Citations, tt.wantCites)
			}
		})
	}
}

func TestExtractCitations(t *testing.T) {
	t.Parallel()

	got := answer.ExtractCitations("[8:00] then [t=8:00] then [p1]")
	want := []answer.Citation{
		{Type: answer.CitationTime, Ref: "[t=8:00]"},
		{Type: answer.CitationPara, Ref: "[p1]"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("ExtractCitations = %v, want %v", got, want)
	}
}

func TestAnswerer_Answer(t *testing.T) {
	t.Parallel()

	model := &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: `{"answer_markdown": "A gleeman [p2].", "citations": []}`},
		ModelCapabilities: types.ModelCapabilities{ContextWindow: 128_000, SupportsJSONMode: true},
	}
	a := answer.NewAnswerer(model, answer.WithMaxTokens(300), answer.WithTemperature(0.1))
	prompt := answer.Prompt{
		SystemPrompt: "rules",
		Messages:     []types.Message{{Role: "user", Content: "Who is Thom?"}},
	}

	got, err := a.Answer(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Source != answer.SourceStructured || got.Markdown != "A gleeman [p2]." {
		t.Errorf("Answer = %+v", got)
	}

	calls := model.Calls()
	if len(calls) != 1 {
		t.Fatalf("model called %d times, want 1", len(calls))
	}
	req := calls[0].Req
	if !req.JSONObject {
		t.Error("JSON mode not requested from a provider that supports it")
	}
	if req.MaxTokens != 300 || req.Temperature != 0.1 || req.SystemPrompt != "rules" {
		t.Errorf("request = %+v", req)
	}
}

func TestAnswerer_NoJSONModeWhenUnsupported(t *testing.T) {
	t.Parallel()

	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Prose [p1]."}}
	got, err := answer.NewAnswerer(model).Answer(context.Background(), answer.Prompt{})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Source != answer.SourceExtracted {
		t.Errorf("Source = %s, want extracted", got.Source)
	}
	if model.Calls()[0].Req.JSONObject {
		t.Error("JSON mode requested from a provider without support")
	}
}

func TestAnswerer_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream 500")
	_, err := answer.NewAnswerer(&llmmock.Provider{CompleteErr: boom}).Answer(context.Background(), answer.Prompt{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if err != nil && !strings.HasPrefix(err.Error(), "answer: model") {
		t.Errorf("err = %q, want stage prefix", err)
	}

	empty := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "   "}}
	if _, err := answer.NewAnswerer(empty).Answer(context.Background(), answer.Prompt{}); err == nil {
		t.Error("expected error for empty model output")
	}

	blank := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"answer_markdown": " ", "citations": [{"ref": "p1"}]}`}}
	if _, err := answer.NewAnswerer(blank).Answer(context.Background(), answer.Prompt{}); err == nil {
		t.Error("expected error for structured reply with blank answer_markdown")
	}

	if _, err := answer.NewAnswerer(&llmmock.Provider{}).Answer(context.Background(), answer.Prompt{}); err == nil {
		t.Error("expected error for nil response")
	}
}
