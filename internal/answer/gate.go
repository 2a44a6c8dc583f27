package answer

import "github.com/MrWong99/nara/pkg/content"

// ResolveAllowedChapter returns the highest chapter the pipeline may read for
// pc: the lower of the chapter currently playing and the listener's furthest
// legitimate progress. It is pure and must be called once per question.
func ResolveAllowedChapter(pc content.PlaybackContext) int {
	return min(pc.PlaybackChapter, pc.ProgressChapter)
}
