// Package config provides the configuration schema and YAML loader for the
// call pipeline server.
package config

// LogLevel controls log verbosity.
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

// DefaultStages is the stage order used when pipeline.stages is omitted.
var DefaultStages = []string{
	"transport_in", "stt", "user_aggregator", "llm", "tts",
	"transport_out", "assistant_aggregator",
}

// Config is the root configuration, typically loaded from a YAML file with
// [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Agent     AgentConfig     `yaml:"agent"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// EnableMetrics exposes the Prometheus /metrics endpoint.
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AudioConfig holds the sample rates of the two media directions.
type AudioConfig struct {
	// InSampleRate is the inbound (caller) sample rate in Hz.
	InSampleRate int `yaml:"in_sample_rate"`

	// OutSampleRate is the outbound (playback) sample rate in Hz.
	OutSampleRate int `yaml:"out_sample_rate"`
}

// PipelineConfig tunes the frame pipeline.
type PipelineConfig struct {
	// Stages is the ordered stage list. Empty selects DefaultStages.
	Stages []string `yaml:"stages"`

	// BufferDepth is the per-link queue capacity. Zero selects the engine
	// default.
	BufferDepth int `yaml:"buffer_depth"`

	// AllowInterruptions enables barge-in.
	AllowInterruptions bool `yaml:"allow_interruptions"`

	// DedupTranscripts drops repeated final transcripts instead of treating
	// each as a fresh user turn.
	DedupTranscripts bool `yaml:"dedup_transcripts"`
}

// AgentConfig shapes the assistant's behavior.
type AgentConfig struct {
	// SystemPrompt is the system directive seeded into every conversation.
	SystemPrompt string `yaml:"system_prompt"`

	// Greeting is the directive that makes the assistant open the call.
	Greeting string `yaml:"greeting"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// ProvidersConfig selects the provider implementation for each stage kind.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. Name is used to look up the constructor in the plugin registry.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Voice selects a voice for TTS providers.
	Voice string `yaml:"voice"`

	// Language hints the recognition language for STT providers.
	Language string `yaml:"language"`
}

// Default fills in the defaults for unset fields.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			InSampleRate:  8000,
			OutSampleRate: 8000,
		},
		Pipeline: PipelineConfig{
			Stages:             append([]string(nil), DefaultStages...),
			AllowInterruptions: true,
		},
	}
}
