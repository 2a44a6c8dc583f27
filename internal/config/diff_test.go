package config_test

import (
	"testing"
	"time"

	"github.com/MrWong99/nara/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.LogLevel = config.LogInfo
	cfg.Voice.Wake = config.WakeConfig{
		Phrase:        "hey nara",
		Sensitivity:   0.7,
		Debounce:      2 * time.Second,
		Substitutions: map[string]string{"nora": "nara"},
	}
	cfg.Answering.ModeHint = "auto"
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	if d := config.Diff(cfg, baseConfig()); d.Any() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("diff = %+v", d)
				}
			},
		},
		{
			name:   "wake sensitivity",
			mutate: func(c *config.Config) { c.Voice.Wake.Sensitivity = 0.8 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.WakeChanged || d.NewWake.Sensitivity != 0.8 {
					t.Errorf("diff = %+v", d)
				}
			},
		},
		{
			name:   "wake substitutions",
			mutate: func(c *config.Config) { c.Voice.Wake.Substitutions = map[string]string{"nora": "nara", "tiara": "nara"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.WakeChanged || len(d.NewWake.Substitutions) != 2 {
					t.Errorf("diff = %+v", d)
				}
			},
		},
		{
			name:   "wake phrase needs restart",
			mutate: func(c *config.Config) { c.Voice.Wake.Phrase = "ok nara" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if d.Any() {
					t.Errorf("phrase change reported as hot-reloadable: %+v", d)
				}
			},
		},
		{
			name:   "muted",
			mutate: func(c *config.Config) { c.Voice.Muted = true },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.MutedChanged || !d.NewMuted || d.WakeChanged {
					t.Errorf("diff = %+v", d)
				}
			},
		},
		{
			name:   "mode hint",
			mutate: func(c *config.Config) { c.Answering.ModeHint = "focused" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.ModeHintChanged || d.NewModeHint != "focused" {
					t.Errorf("diff = %+v", d)
				}
			},
		},
		{
			name: "several",
			mutate: func(c *config.Config) {
				c.Server.LogLevel = config.LogWarn
				c.Voice.Wake.Debounce = time.Second
				c.Voice.Muted = true
			},
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || !d.WakeChanged || !d.MutedChanged || d.ModeHintChanged {
					t.Errorf("diff = %+v", d)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next := baseConfig()
			tt.mutate(next)
			tt.check(t, config.Diff(baseConfig(), next))
		})
	}
}
