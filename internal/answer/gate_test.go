package answer_test

import (
	"testing"

	"github.com/MrWong99/nara/internal/answer"
	"github.com/MrWong99/nara/pkg/content"
)

func TestResolveAllowedChapter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		playback, progress int
		want               int
	}{
		{"listener skipped ahead", 7, 3, 3},
		{"listener rewound", 2, 5, 2},
		{"in sync", 4, 4, 4},
		{"first chapter", 0, 9, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := answer.ResolveAllowedChapter(content.PlaybackContext{
				PlaybackChapter: tt.playback,
				ProgressChapter: tt.progress,
			})
			if got != tt.want {
				t.Errorf("ResolveAllowedChapter(%d, %d) = %d, want %d", tt.playback, tt.progress, got, tt.want)
			}
		})
	}
}
