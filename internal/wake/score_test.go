package wake_test

import (
	"testing"

	"github.com/MrWong99/nara/internal/wake"
)

func TestScore(t *testing.T) {
	t.Parallel()

	table := wake.DefaultSubstitutions()
	tests := []struct {
		name       string
		transcript string
		confidence float64
		wantMin    float64
		wantMax    float64
	}{
		{name: "exact phrase", transcript: "hey nara", wantMin: 1, wantMax: 1},
		{name: "exact with question", transcript: "Hey Nara, who is Rand?", wantMin: 1, wantMax: 1},
		{name: "scaled by stt confidence", transcript: "hey nara", confidence: 0.8, wantMin: 0.8, wantMax: 0.8},
		{name: "near miss", transcript: "hey narrow", wantMin: 0.01, wantMax: 0.99},
		{name: "unrelated", transcript: "what time is it", wantMin: 0, wantMax: 0},
		{name: "empty", transcript: "", wantMin: 0, wantMax: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := wake.Score("hey nara", tt.transcript, tt.confidence, table)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Score(%q) = %v, want in [%v, %v]", tt.transcript, got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Hey, Nara!", "hey nara"},
		{"  what's   up?  ", "whats up"},
		{"chapter-12", "chapter 12"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := wake.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExactMatch(t *testing.T) {
	t.Parallel()

	if got := wake.ExactMatch("hey nara", "okay hey nara who"); got != 1 {
		t.Errorf("contiguous phrase = %v, want 1", got)
	}
	if got := wake.ExactMatch("hey nara", "hey there nara"); got != 0 {
		t.Errorf("split phrase = %v, want 0", got)
	}
	if got := wake.ExactMatch("hey nara", "heynara"); got != 0 {
		t.Errorf("glued words = %v, want 0", got)
	}
}

func TestEditDistanceMatch(t *testing.T) {
	t.Parallel()

	// One substitution in eight characters: 1 - 1/8 - 0.3.
	got := wake.EditDistanceMatch("hey nara", "hey nora")
	if got < 0.57 || got > 0.58 {
		t.Errorf("hey nora = %v, want ~0.575", got)
	}
	if got := wake.EditDistanceMatch("hey nara", "what time is it"); got != 0 {
		t.Errorf("unrelated = %v, want 0", got)
	}
	if got := wake.EditDistanceMatch("hey nara", "so hey nara"); got != 0.7 {
		t.Errorf("best window = %v, want 0.7", got)
	}
}

func TestSubstitutionMatch(t *testing.T) {
	t.Parallel()

	table := wake.DefaultSubstitutions()
	tests := []struct {
		transcript string
		want       float64
	}{
		{"hay nora", 0.8},
		{"hey narrow what happened", 0.8},
		{"hey there", 0},
	}
	for _, tt := range tests {
		if got := wake.SubstitutionMatch("hey nara", tt.transcript, table); got != tt.want {
			t.Errorf("SubstitutionMatch(%q) = %v, want %v", tt.transcript, got, tt.want)
		}
	}
	if got := wake.SubstitutionMatch("hey nara", "hay nora", nil); got != 0 {
		t.Errorf("nil table = %v, want 0", got)
	}
}

func TestPartialWordMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transcript string
		want       float64
	}{
		{"hey nara", 1},
		{"hey narrow", 0.9},  // exact + prefix
		{"hey there", 0},     // 0.5 is below the floor
		{"heya naraya", 0.8}, // prefix + prefix
		{"what time is it", 0},
	}
	for _, tt := range tests {
		got := wake.PartialWordMatch("hey nara", tt.transcript)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("PartialWordMatch(%q) = %v, want %v", tt.transcript, got, tt.want)
		}
	}
}
