package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// listener changes require a restart and are deliberately absent.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SLAChanged is true when any latency budget changed.
	SLAChanged bool
	NewSLA     SLAConfig

	// LLMLimitsChanged is true when max_tokens, temperature, or schema
	// enforcement changed.
	LLMLimitsChanged bool
	NewLLMLimits     LLMConfig

	// BackchannelIntervalChanged is true when the filler rate limit changed.
	BackchannelIntervalChanged bool
	NewBackchannelIntervalMS   int
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.SLAChanged || d.LLMLimitsChanged || d.BackchannelIntervalChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Interview.SLA != new.Interview.SLA {
		d.SLAChanged = true
		d.NewSLA = new.Interview.SLA
	}

	if old.Interview.LLM.MaxTokens != new.Interview.LLM.MaxTokens ||
		old.Interview.LLM.Temperature != new.Interview.LLM.Temperature ||
		old.JSONSchemaEnforced() != new.JSONSchemaEnforced() {
		d.LLMLimitsChanged = true
		d.NewLLMLimits = new.Interview.LLM
	}

	if old.Interview.BackchannelMinIntervalMS != new.Interview.BackchannelMinIntervalMS {
		d.BackchannelIntervalChanged = true
		d.NewBackchannelIntervalMS = new.Interview.BackchannelMinIntervalMS
	}

	return d
}
