package answer

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// Mode is a content-inclusion strategy.
type Mode string

const (
	// ModeAuto lets [DecideMode] choose from the token estimate.
	ModeAuto Mode = "auto"

	// ModeFull sends the whole chapter transcript.
	ModeFull Mode = "full"

	// ModeCompressed sends an LLM-written summary of the chapter.
	ModeCompressed Mode = "compressed"

	// ModeFocused sends only units that overlap the question.
	ModeFocused Mode = "focused"
)

// ParseMode validates a mode name. The empty string is [ModeAuto].
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeFull, ModeCompressed, ModeFocused:
		return m, nil
	default:
		return "", fmt.Errorf("answer: unknown mode %q", s)
	}
}

const (
	// FullTokenLimit is the largest chapter sent verbatim.
	FullTokenLimit = 50_000

	// CompressTokenLimit is the largest chapter worth compressing. Anything
	// larger goes to focused selection.
	CompressTokenLimit = 100_000

	// DefaultReserveTokens is kept free for the system prompt and the answer.
	DefaultReserveTokens = 20_000

	tokensPerRune = 0.25
)

// EstimateTokens returns ceil(runes × 0.25). It is monotonic in the input
// length, which is all the planner relies on.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) * tokensPerRune))
}

// Plan is the planner input.
type Plan struct {
	// UnitTokens is the estimated size of the chapter transcript.
	UnitTokens int

	// Budget is the context window left after the reserve.
	Budget int

	// Hint overrides the decision unless it is [ModeAuto] or empty.
	Hint Mode
}

// DecideMode picks the content-inclusion strategy for p.
func DecideMode(p Plan) Mode {
	if p.Hint != "" && p.Hint != ModeAuto {
		return p.Hint
	}
	switch {
	case p.UnitTokens <= FullTokenLimit && p.UnitTokens <= p.Budget:
		return ModeFull
	case p.UnitTokens <= CompressTokenLimit:
		return ModeCompressed
	default:
		return ModeFocused
	}
}

// BudgetFor returns the content budget for a model context window.
func BudgetFor(contextWindow, reserve int) int {
	return max(0, contextWindow-reserve)
}
