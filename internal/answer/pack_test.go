package answer_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/nara/internal/answer"
	"github.com/MrWong99/nara/pkg/content"
)

func TestPack(t *testing.T) {
	t.Parallel()

	p := answer.Pack(answer.PackInput{
		Book:      content.Book{Title: "Zero to One", Author: "Peter Thiel"},
		Chapter:   content.Chapter{Index: 1, Title: "Party Like It's 1999"},
		Allowed:   1,
		Mode:      answer.ModeFull,
		Content:   "[p1] [t=30:00] Dot-com mania.",
		Summaries: []content.ChapterSummary{{ChapterIndex: 0, Text: "Contrarian questions."}},
		Question:  "  What does he mean by zero to one?  ",
	})

	for _, want := range []string{
		"Zero to One by Peter Thiel",
		"Current chapter: 2 (Party Like It's 1999)",
		"only the content below",
		"after chapter 2",
		"[p12]",
		"[t=05:30]",
		`"answer_markdown"`,
		"## Earlier chapters (summaries)\nChapter 1: Contrarian questions.",
		"## Current chapter transcript\n[p1] [t=30:00] Dot-com mania.",
	} {
		if !strings.Contains(p.SystemPrompt, want) {
			t.Errorf("system prompt missing %q:\n%s", want, p.SystemPrompt)
		}
	}
	if len(p.Messages) != 1 || p.Messages[0].Role != "user" || p.Messages[0].Content != "What does he mean by zero to one?" {
		t.Errorf("Messages = %+v", p.Messages)
	}
}

func TestPack_SectionLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode answer.Mode
		want string
	}{
		{answer.ModeCompressed, "## Current chapter (condensed)"},
		{answer.ModeFocused, "## Current chapter (relevant excerpts)"},
		{answer.ModeFull, "## Current chapter transcript"},
	}
	for _, tt := range tests {
		p := answer.Pack(answer.PackInput{Mode: tt.mode, Content: "x", Question: "q"})
		if !strings.Contains(p.SystemPrompt, tt.want) {
			t.Errorf("mode %s: prompt missing %q", tt.mode, tt.want)
		}
		if strings.Contains(p.SystemPrompt, "Earlier chapters") {
			t.Errorf("mode %s: summaries section without summaries", tt.mode)
		}
		if !strings.Contains(p.SystemPrompt, "(untitled)") {
			t.Errorf("mode %s: missing untitled placeholder", tt.mode)
		}
	}
}
