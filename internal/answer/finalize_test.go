package answer_test

import (
	"testing"

	"github.com/MrWong99/nara/internal/answer"
	"github.com/MrWong99/nara/pkg/content"
)

func loadedChapterOne() *answer.Loaded {
	return &answer.Loaded{
		Book:    content.Book{ID: "b", Title: "Book"},
		Chapter: content.Chapter{Index: 1, StartSeconds: 1800, EndSeconds: 3900},
		Units: []content.TranscriptUnit{
			{ChapterIndex: 1, Ordinal: 1, StartSeconds: 1800, EndSeconds: 1850, Text: "one"},
			{ChapterIndex: 1, Ordinal: 2, StartSeconds: 1850, EndSeconds: 1900, Text: "two"},
			{ChapterIndex: 1, Ordinal: 3, Text: "untimed"},
		},
	}
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	para := func(ref string) answer.Citation { return answer.Citation{Type: answer.CitationPara, Ref: ref} }
	tm := func(ref string) answer.Citation { return answer.Citation{Type: answer.CitationTime, Ref: ref} }

	tests := []struct {
		name  string
		cites []answer.Citation
		want  *answer.PlaybackHint
	}{
		{"time in range", []answer.Citation{tm("[t=30:50]")}, &answer.PlaybackHint{ChapterIndex: 1, StartSeconds: 1850}},
		{"time beats earlier para", []answer.Citation{para("[p1]"), tm("[t=40:00]")}, &answer.PlaybackHint{ChapterIndex: 1, StartSeconds: 2400}},
		{"time past the hour", []answer.Citation{tm("[t=64:59]")}, &answer.PlaybackHint{ChapterIndex: 1, StartSeconds: 3899}},
		{"out of range time falls back to para", []answer.Citation{tm("[t=05:00]"), para("[p2]")}, &answer.PlaybackHint{ChapterIndex: 1, StartSeconds: 1850}},
		{"untimed para", []answer.Citation{para("[p3]")}, nil},
		{"unknown para", []answer.Citation{para("[p42]")}, nil},
		{"out of range only", []answer.Citation{tm("[t=99:00]")}, nil},
		{"no citations", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := answer.Finalize(answer.Parsed{Citations: tt.cites}, loadedChapterOne(), 1)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Finalize = %+v, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("Finalize = nil, want %+v", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("Finalize = %+v, want %+v", *got, *tt.want)
			}
		})
	}

	if got := answer.Finalize(answer.Parsed{Citations: []answer.Citation{tm("[t=30:50]")}}, nil, 1); got != nil {
		t.Errorf("Finalize with nil chapter = %+v, want nil", *got)
	}
}

func TestFinalize_LateChapterOfLongBook(t *testing.T) {
	t.Parallel()

	late := &answer.Loaded{
		Book:    content.Book{ID: "b", Title: "Book"},
		Chapter: content.Chapter{Index: 40, StartSeconds: 60_000, EndSeconds: 63_000},
		Units: []content.TranscriptUnit{
			{ChapterIndex: 40, Ordinal: 4, StartSeconds: 61_000, EndSeconds: 61_030, Text: "The Waygate opens."},
		},
	}
	text := answer.FormatUnits(late.Units)
	if text != "[p4] [t=1016:40] The Waygate opens." {
		t.Fatalf("FormatUnits = %q", text)
	}

	parsed := answer.Parse("Through the Waygate [t=1016:40].")
	got := answer.Finalize(parsed, late, 40)
	want := answer.PlaybackHint{ChapterIndex: 40, StartSeconds: 61_000}
	if got == nil || *got != want {
		t.Errorf("Finalize = %+v, want %+v", got, want)
	}
}

func TestTimestamps(t *testing.T) {
	t.Parallel()

	if got := answer.FormatTimestamp(4000); got != "66:40" {
		t.Errorf("FormatTimestamp(4000) = %q, want 66:40", got)
	}
	if got := answer.FormatTimestamp(65.9); got != "01:05" {
		t.Errorf("FormatTimestamp(65.9) = %q, want 01:05", got)
	}

	tests := []struct {
		ref  string
		want float64
		ok   bool
	}{
		{"[t=02:45]", 165, true},
		{"[t=8:00]", 480, true},
		{"66:40", 4000, true},
		{"[t=1:5]", 0, false},
		{"[t=01:75]", 0, false},
		{"[p3]", 0, false},
	}
	for _, tt := range tests {
		got, ok := answer.ParseTimestamp(tt.ref)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %v, %v; want %v, %v", tt.ref, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	t.Parallel()

	got := answer.FormatUnits(loadedChapterOne().Units)
	want := "[p1] [t=30:00] one\n[p2] [t=30:50] two\n[p3] untimed"
	if got != want {
		t.Errorf("FormatUnits =\n%s\nwant\n%s", got, want)
	}
}
