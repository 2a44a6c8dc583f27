package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeChanged is true if the wake sensitivity, debounce or substitution
	// table changed.
	WakeChanged bool
	NewWake     WakeConfig

	MutedChanged bool
	NewMuted     bool

	ModeHintChanged bool
	NewModeHint     string
}

// Any reports whether anything hot-reloadable changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.WakeChanged || d.MutedChanged || d.ModeHintChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if wakeChanged(old.Voice.Wake, new.Voice.Wake) {
		d.WakeChanged = true
		d.NewWake = new.Voice.Wake
	}

	if old.Voice.Muted != new.Voice.Muted {
		d.MutedChanged = true
		d.NewMuted = new.Voice.Muted
	}

	if old.Answering.ModeHint != new.Answering.ModeHint {
		d.ModeHintChanged = true
		d.NewModeHint = new.Answering.ModeHint
	}

	return d
}

// wakeChanged compares the hot-reloadable wake fields. Phrase and command
// timeout need a restart and are ignored.
func wakeChanged(old, new WakeConfig) bool {
	return old.Sensitivity != new.Sensitivity ||
		old.Debounce != new.Debounce ||
		!maps.Equal(old.Substitutions, new.Substitutions)
}
