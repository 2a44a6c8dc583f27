package answer

import (
	"fmt"
	"strings"

	"github.com/MrWong99/nara/pkg/content"
	"github.com/MrWong99/nara/pkg/types"
)

// Prompt is the assembled model input.
type Prompt struct {
	SystemPrompt string
	Messages     []types.Message
}

// PackInput is everything [Pack] needs.
type PackInput struct {
	Book    content.Book
	Chapter content.Chapter

	// Allowed is the highest chapter the answer may draw on.
	Allowed int

	// Mode is the strategy that produced Content.
	Mode Mode

	// Content is the chapter text as formatted units or a compressed summary.
	Content string

	Summaries []content.ChapterSummary
	Question  string
}

// Pack builds the system prompt and message list. The prompt restricts the
// model to Content, asks for [pN] and [t=MM:SS] citations and a JSON reply,
// and forbids references beyond the allowed chapter.
func Pack(in PackInput) Prompt {
	var b strings.Builder

	b.WriteString("You are Nara, a spoiler-safe companion for an audiobook listener.\n")
	fmt.Fprintf(&b, "Book: %s", orUntitled(in.Book.Title))
	if in.Book.Author != "" {
		fmt.Fprintf(&b, " by %s", in.Book.Author)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Current chapter: %d", in.Chapter.Index+1)
	if in.Chapter.Title != "" {
		fmt.Fprintf(&b, " (%s)", in.Chapter.Title)
	}
	b.WriteString("\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Answer using only the content below. If it does not contain the answer, say you cannot tell yet.\n")
	fmt.Fprintf(&b, "- Never mention, hint at or speculate about anything after chapter %d. The listener has not heard it.\n", in.Allowed+1)
	b.WriteString("- Cite the passages you rely on with their paragraph ids like [p12] or timestamps like [t=05:30].\n")
	b.WriteString("- Keep the answer short enough to be read aloud in under thirty seconds.\n")
	b.WriteString(`- Reply with a JSON object: {"answer_markdown": "...", "citations": [{"type": "para" or "time", "ref": "[p12]" or "[t=05:30]"}]}`)
	b.WriteString("\n")

	if len(in.Summaries) > 0 {
		b.WriteString("\n## Earlier chapters (summaries)\n")
		for _, s := range in.Summaries {
			fmt.Fprintf(&b, "Chapter %d: %s\n", s.ChapterIndex+1, strings.TrimSpace(s.Text))
		}
	}

	switch in.Mode {
	case ModeCompressed:
		b.WriteString("\n## Current chapter (condensed)\n")
	case ModeFocused:
		b.WriteString("\n## Current chapter (relevant excerpts)\n")
	default:
		b.WriteString("\n## Current chapter transcript\n")
	}
	b.WriteString(in.Content)
	b.WriteString("\n")

	return Prompt{
		SystemPrompt: b.String(),
		Messages:     []types.Message{{Role: "user", Content: strings.TrimSpace(in.Question)}},
	}
}

func orUntitled(title string) string {
	if title == "" {
		return "(untitled)"
	}
	return title
}
