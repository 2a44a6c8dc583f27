// Package types defines the shared types used across Nara packages.
//
// These types are the lingua franca between providers, the answering pipeline
// and the interaction orchestrator. Each package defines its own domain types;
// only data structures that cross package boundaries live here to avoid
// circular imports.
package types

import "time"

// Role identifies who produced a transcribed utterance.
type Role string

const (
	// RoleListener marks speech from the person listening to the audiobook.
	RoleListener Role = "listener"

	// RoleSystem marks Nara's own spoken output picked up by the recognizer.
	// System utterances are never treated as commands.
	RoleSystem Role = "system"
)

// Transcript is a single utterance event from an STT provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Role distinguishes listener speech from the system's own playback.
	// An empty Role is treated as RoleListener.
	Role Role
}

// FromListener reports whether t was spoken by the listener.
func (t Transcript) FromListener() bool {
	return t.Role == "" || t.Role == RoleListener
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to improve recognition of the wake phrase and uncommon proper nouns.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Nara").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// VoiceProfile describes the TTS voice used for spoken answers.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the provider can be asked for a JSON object response.
	SupportsJSONMode bool
}
