package config_test

import (
	"testing"

	"github.com/Maratmain/ai-hr/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Interview: config.InterviewConfig{
			SLA:                      config.SLAConfig{BackchannelMS: 500, TurnMS: 5000, SafetyMS: 300},
			LLM:                      config.LLMConfig{MaxTokens: 96, Temperature: 0.7},
			BackchannelMinIntervalMS: 2000,
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, cfg)
	if d.Any() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	updated := baseConfig()
	updated.Server.LogLevel = config.LogDebug

	d := config.Diff(old, updated)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_SLAChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	updated := baseConfig()
	updated.Interview.SLA.TurnMS = 3000

	d := config.Diff(old, updated)
	if !d.SLAChanged {
		t.Error("expected SLAChanged=true")
	}
	if d.NewSLA.TurnMS != 3000 {
		t.Errorf("expected NewSLA.TurnMS=3000, got %d", d.NewSLA.TurnMS)
	}
	if d.LLMLimitsChanged {
		t.Error("LLM limits did not change")
	}
}

func TestDiff_LLMLimitsChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	updated := baseConfig()
	updated.Interview.LLM.MaxTokens = 128

	d := config.Diff(old, updated)
	if !d.LLMLimitsChanged {
		t.Error("expected LLMLimitsChanged=true")
	}
	if d.NewLLMLimits.MaxTokens != 128 {
		t.Errorf("expected NewLLMLimits.MaxTokens=128, got %d", d.NewLLMLimits.MaxTokens)
	}
}

func TestDiff_BackchannelIntervalChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	updated := baseConfig()
	updated.Interview.BackchannelMinIntervalMS = 1000

	d := config.Diff(old, updated)
	if !d.BackchannelIntervalChanged {
		t.Error("expected BackchannelIntervalChanged=true")
	}
	if d.NewBackchannelIntervalMS != 1000 {
		t.Errorf("expected NewBackchannelIntervalMS=1000, got %d", d.NewBackchannelIntervalMS)
	}
}
