package answer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MrWong99/nara/pkg/content"
)

// FormatTimestamp renders seconds as MM:SS on the audiobook timeline. Minutes
// are not wrapped at 60, so 4000s is "66:40".
func FormatTimestamp(seconds float64) string {
	total := max(0, int(math.Floor(seconds)))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// ParseTimestamp parses an MM:SS reference, with or without the "[t=" ... "]"
// wrapper, into seconds.
func ParseTimestamp(ref string) (float64, bool) {
	s := strings.TrimSpace(ref)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimPrefix(s, "t=")
	mm, ss, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 {
		return 0, false
	}
	sec, err := strconv.Atoi(ss)
	if err != nil || sec < 0 || sec > 59 || len(ss) != 2 {
		return 0, false
	}
	return float64(m*60 + sec), true
}

// FormatUnits renders units one per line with their citation markers, e.g.
// "[p3] [t=12:05] The wind blew ...". Untimed units carry only the paragraph
// marker.
func FormatUnits(units []content.TranscriptUnit) string {
	var b strings.Builder
	for i, u := range units {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[p%d] ", u.Ordinal)
		if u.Timed() {
			fmt.Fprintf(&b, "[t=%s] ", FormatTimestamp(u.StartSeconds))
		}
		b.WriteString(strings.TrimSpace(u.Text))
	}
	return b.String()
}
