// Package config provides the configuration schema, loader, and provider
// registry for the AI-HR interview server.
package config

import "time"

// LogLevel controls log verbosity for the interview server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the interview server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// a missing file yields the defaults, and a fixed set of environment
// variables overrides individual values (see [ApplyEnv]).
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Interview InterviewConfig `yaml:"interview"`
	Resume    ResumeConfig    `yaml:"resume"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// external service. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "llamacpp", "gateway").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists additional backends tried, in order, when this one
	// fails or its circuit breaker is open. Only honoured for the LLM
	// provider.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// InterviewConfig holds the interview engine settings: scenario and role
// profile locations, latency budgets, LLM generation limits, and backchannel
// behaviour.
type InterviewConfig struct {
	// ScenarioDir is the directory holding one JSON file per scenario.
	ScenarioDir string `yaml:"scenario_dir"`

	// RolesPath is the YAML file with role profiles. Optional.
	RolesPath string `yaml:"roles_path"`

	// BackchannelPath is the YAML file with filler utterance tables. Optional.
	BackchannelPath string `yaml:"backchannel_path"`

	SLA SLAConfig `yaml:"sla"`
	LLM LLMConfig `yaml:"llm"`

	// BackchannelMinIntervalMS suppresses fillers that would follow the
	// previous one within this many milliseconds.
	BackchannelMinIntervalMS int `yaml:"backchannel_min_interval_ms"`

	// SessionIdleTimeoutS evicts sessions idle for this many seconds.
	SessionIdleTimeoutS int `yaml:"session_idle_timeout_s"`

	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// SLAConfig holds the per-turn latency budgets in milliseconds.
type SLAConfig struct {
	// BackchannelMS is the deadline for the filler response.
	BackchannelMS int `yaml:"backchannel_ms"`

	// TurnMS is the end-to-end budget for the substantive reply.
	TurnMS int `yaml:"turn_ms"`

	// SafetyMS is subtracted from TurnMS to leave room for the commit and
	// emit after the model returns.
	SafetyMS int `yaml:"safety_ms"`
}

// LLMConfig holds generation limits applied to every substantive request.
type LLMConfig struct {
	// MaxTokens caps the completion length so replies fit the turn budget.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature.
	Temperature float64 `yaml:"temperature"`

	// JSONSchemaEnforce attaches a JSON schema to requests when the backend
	// supports structured output grammars.
	JSONSchemaEnforce *bool `yaml:"json_schema_enforce"`
}

// RetrievalConfig holds resume-search settings for context injection.
type RetrievalConfig struct {
	// TimeoutMS bounds the vector search; on expiry the turn proceeds
	// without resume context.
	TimeoutMS int `yaml:"timeout_ms"`

	// TopK is the number of resume chunks to fetch.
	TopK int `yaml:"top_k"`

	// MinScore drops chunks below this similarity. 0 keeps everything.
	MinScore float64 `yaml:"min_score"`
}

// ResumeConfig holds settings for the resume vector store.
type ResumeConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the pgvector
	// resume store. Empty disables retrieval.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension used for the embeddings
	// column. Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// Configuration defaults. Budgets follow the interview SLA: filler within
// half a second, full reply within five.
const (
	DefaultListenAddr            = ":8080"
	DefaultScenarioDir           = "./data/scenarios"
	DefaultSLABackchannelMS      = 500
	DefaultSLATurnMS             = 5000
	DefaultSLASafetyMS           = 300
	DefaultLLMMaxTokens          = 96
	DefaultLLMTemperature        = 0.7
	DefaultBackchannelIntervalMS = 2000
	DefaultSessionIdleTimeoutS   = 1800
	DefaultRetrievalTimeoutMS    = 800
	DefaultRetrievalTopK         = 3
	DefaultEmbeddingDimensions   = 1536
)

// applyDefaults fills unset fields with their default values.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Interview.ScenarioDir == "" {
		c.Interview.ScenarioDir = DefaultScenarioDir
	}
	if c.Interview.SLA.BackchannelMS <= 0 {
		c.Interview.SLA.BackchannelMS = DefaultSLABackchannelMS
	}
	if c.Interview.SLA.TurnMS <= 0 {
		c.Interview.SLA.TurnMS = DefaultSLATurnMS
	}
	if c.Interview.SLA.SafetyMS <= 0 {
		c.Interview.SLA.SafetyMS = DefaultSLASafetyMS
	}
	if c.Interview.LLM.MaxTokens <= 0 {
		c.Interview.LLM.MaxTokens = DefaultLLMMaxTokens
	}
	if c.Interview.LLM.Temperature <= 0 {
		c.Interview.LLM.Temperature = DefaultLLMTemperature
	}
	if c.Interview.LLM.JSONSchemaEnforce == nil {
		enforce := true
		c.Interview.LLM.JSONSchemaEnforce = &enforce
	}
	if c.Interview.BackchannelMinIntervalMS <= 0 {
		c.Interview.BackchannelMinIntervalMS = DefaultBackchannelIntervalMS
	}
	if c.Interview.SessionIdleTimeoutS <= 0 {
		c.Interview.SessionIdleTimeoutS = DefaultSessionIdleTimeoutS
	}
	if c.Interview.Retrieval.TimeoutMS <= 0 {
		c.Interview.Retrieval.TimeoutMS = DefaultRetrievalTimeoutMS
	}
	if c.Interview.Retrieval.TopK <= 0 {
		c.Interview.Retrieval.TopK = DefaultRetrievalTopK
	}
	if c.Resume.EmbeddingDimensions <= 0 {
		c.Resume.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
}

// BackchannelDeadline returns the filler budget as a duration.
func (c *Config) BackchannelDeadline() time.Duration {
	return time.Duration(c.Interview.SLA.BackchannelMS) * time.Millisecond
}

// TurnDeadline returns the end-to-end turn budget as a duration.
func (c *Config) TurnDeadline() time.Duration {
	return time.Duration(c.Interview.SLA.TurnMS) * time.Millisecond
}

// LLMDeadline returns the substantive-fork budget: the turn budget minus the
// safety margin.
func (c *Config) LLMDeadline() time.Duration {
	return time.Duration(c.Interview.SLA.TurnMS-c.Interview.SLA.SafetyMS) * time.Millisecond
}

// BackchannelMinInterval returns the filler rate limit as a duration.
func (c *Config) BackchannelMinInterval() time.Duration {
	return time.Duration(c.Interview.BackchannelMinIntervalMS) * time.Millisecond
}

// SessionIdleTimeout returns the session eviction timeout as a duration.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.Interview.SessionIdleTimeoutS) * time.Second
}

// RetrievalTimeout returns the resume-search budget as a duration.
func (c *Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.Interview.Retrieval.TimeoutMS) * time.Millisecond
}

// JSONSchemaEnforced reports whether schema grammars should be attached to
// LLM requests.
func (c *Config) JSONSchemaEnforced() bool {
	return c.Interview.LLM.JSONSchemaEnforce == nil || *c.Interview.LLM.JSONSchemaEnforce
}
