package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// knownStages lists the stage names that may appear in pipeline.stages.
var knownStages = []string{
	"transport_in", "stt", "user_aggregator", "llm", "tts",
	"transport_out", "assistant_aggregator",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown YAML keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Audio.InSampleRate == 0 {
		cfg.Audio.InSampleRate = def.Audio.InSampleRate
	}
	if cfg.Audio.OutSampleRate == 0 {
		cfg.Audio.OutSampleRate = def.Audio.OutSampleRate
	}
	if len(cfg.Pipeline.Stages) == 0 {
		cfg.Pipeline.Stages = append([]string(nil), DefaultStages...)
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.InSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.in_sample_rate %d must be positive", cfg.Audio.InSampleRate))
	}
	if cfg.Audio.OutSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.out_sample_rate %d must be positive", cfg.Audio.OutSampleRate))
	}

	if cfg.Pipeline.BufferDepth < 0 {
		errs = append(errs, fmt.Errorf("pipeline.buffer_depth %d must not be negative", cfg.Pipeline.BufferDepth))
	}
	seen := make(map[string]int, len(cfg.Pipeline.Stages))
	for i, name := range cfg.Pipeline.Stages {
		prefix := fmt.Sprintf("pipeline.stages[%d]", i)
		if !slices.Contains(knownStages, name) {
			errs = append(errs, fmt.Errorf("%s %q is not a known stage", prefix, name))
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of pipeline.stages[%d]", prefix, name, prev))
		}
		seen[name] = i
	}

	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", cfg.Agent.Temperature))
	}
	if cfg.Agent.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent.max_tokens %d must not be negative", cfg.Agent.MaxTokens))
	}

	return errors.Join(errs...)
}
