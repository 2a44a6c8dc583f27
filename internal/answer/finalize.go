package answer

import "strconv"

// PlaybackHint is a position the listener can jump to from a citation.
type PlaybackHint struct {
	ChapterIndex int
	StartSeconds float64
}

// Finalize resolves the first usable citation in parsed to a playback hint.
// A time citation wins if it falls within the allowed chapter's bounds;
// otherwise the first paragraph citation naming a timed unit yields that
// unit's start. It returns nil when nothing resolves.
func Finalize(parsed Parsed, loaded *Loaded, allowed int) *PlaybackHint {
	if loaded == nil {
		return nil
	}
	for _, c := range parsed.Citations {
		if c.Type != CitationTime {
			continue
		}
		secs, ok := ParseTimestamp(c.Ref)
		if ok && loaded.Chapter.Contains(secs) {
			return &PlaybackHint{ChapterIndex: allowed, StartSeconds: secs}
		}
	}
	for _, c := range parsed.Citations {
		if c.Type != CitationPara {
			continue
		}
		ordinal, ok := paraOrdinal(c.Ref)
		if !ok {
			continue
		}
		if u, found := loaded.Unit(ordinal); found && u.Timed() {
			return &PlaybackHint{ChapterIndex: allowed, StartSeconds: u.StartSeconds}
		}
	}
	return nil
}

func paraOrdinal(ref string) (int, bool) {
	sub := citationRe.FindStringSubmatch(ref)
	if sub == nil || sub[2] == "" {
		return 0, false
	}
	n, err := strconv.Atoi(sub[2])
	return n, err == nil
}
