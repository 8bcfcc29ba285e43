package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to reject unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "llamacpp", "gateway", "mock"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path, applies defaults and
// environment overrides, and returns a validated [Config]. A missing file is
// not an error; the defaults are used.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := &Config{}
		cfg.applyDefaults()
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals. Environment overrides are not applied here.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides individual config values from the process environment.
// Unset variables leave the config untouched; malformed values are errors.
//
// Recognised variables: SCENARIO_DIR, SLA_BACKCHANNEL_MS, SLA_TURN_MS,
// SLA_SAFETY_MS, LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_JSON_SCHEMA_ENFORCE,
// LLM_API_KEY, BACKCHANNEL_MIN_INTERVAL_MS, SESSION_IDLE_TIMEOUT_S,
// RETRIEVAL_TIMEOUT_MS, RETRIEVAL_TOP_K, POSTGRES_DSN.
func ApplyEnv(cfg *Config) error {
	var errs []error

	setInt := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
			return
		}
		*dst = n
	}
	setFloat := func(key string, dst *float64) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q is not a number", key, v))
			return
		}
		*dst = f
	}
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("SCENARIO_DIR", &cfg.Interview.ScenarioDir)
	setInt("SLA_BACKCHANNEL_MS", &cfg.Interview.SLA.BackchannelMS)
	setInt("SLA_TURN_MS", &cfg.Interview.SLA.TurnMS)
	setInt("SLA_SAFETY_MS", &cfg.Interview.SLA.SafetyMS)
	setInt("LLM_MAX_TOKENS", &cfg.Interview.LLM.MaxTokens)
	setFloat("LLM_TEMPERATURE", &cfg.Interview.LLM.Temperature)
	setString("LLM_API_KEY", &cfg.Providers.LLM.APIKey)
	setInt("BACKCHANNEL_MIN_INTERVAL_MS", &cfg.Interview.BackchannelMinIntervalMS)
	setInt("SESSION_IDLE_TIMEOUT_S", &cfg.Interview.SessionIdleTimeoutS)
	setInt("RETRIEVAL_TIMEOUT_MS", &cfg.Interview.Retrieval.TimeoutMS)
	setInt("RETRIEVAL_TOP_K", &cfg.Interview.Retrieval.TopK)
	setString("POSTGRES_DSN", &cfg.Resume.PostgresDSN)

	if v, ok := os.LookupEnv("LLM_JSON_SCHEMA_ENFORCE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: LLM_JSON_SCHEMA_ENFORCE=%q is not a boolean", v))
		} else {
			cfg.Interview.LLM.JSONSchemaEnforce = &b
		}
	}

	return errors.Join(errs...)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if err := validateProviderName("llm", cfg.Providers.LLM.Name); err != nil {
		errs = append(errs, err)
	}
	for _, fb := range cfg.Providers.LLM.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, errors.New("providers.llm.fallbacks entries require a name"))
			continue
		}
		if err := validateProviderName("llm", fb.Name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := validateProviderName("embeddings", cfg.Providers.Embeddings.Name); err != nil {
		errs = append(errs, err)
	}

	if cfg.Interview.SLA.SafetyMS >= cfg.Interview.SLA.TurnMS {
		errs = append(errs, fmt.Errorf("interview.sla.safety_ms %d must be smaller than turn_ms %d",
			cfg.Interview.SLA.SafetyMS, cfg.Interview.SLA.TurnMS))
	}
	if cfg.Interview.SLA.BackchannelMS > cfg.Interview.SLA.TurnMS {
		errs = append(errs, fmt.Errorf("interview.sla.backchannel_ms %d must not exceed turn_ms %d",
			cfg.Interview.SLA.BackchannelMS, cfg.Interview.SLA.TurnMS))
	}
	if t := cfg.Interview.LLM.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("interview.llm.temperature %.2f is out of range [0, 2]", t))
	}
	if s := cfg.Interview.Retrieval.MinScore; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("interview.retrieval.min_score %.2f is out of range [0, 1]", s))
	}

	if cfg.Resume.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("resume.postgres_dsn is set but providers.embeddings is not configured"))
	}

	return errors.Join(errs...)
}

// validateProviderName rejects names not found in [ValidProviderNames] for
// the given kind. Empty names are allowed; they disable the provider.
func validateProviderName(kind, name string) error {
	if name == "" {
		return nil
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return nil
	}
	return fmt.Errorf("providers.%s.name %q is unknown; valid values: %v", kind, name, known)
}
