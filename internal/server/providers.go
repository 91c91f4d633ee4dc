package server

import (
	"fmt"

	"github.com/chriscow/callpipe-go/pkg/config"
	"github.com/chriscow/callpipe-go/pkg/plugin"
	"github.com/chriscow/callpipe-go/pkg/session"
)

// buildProviders resolves the configured provider names through the plugin
// registry. The VAD defaults to the bundled energy detector; the speech and
// language providers must be configured explicitly.
func buildProviders(cfg *config.Config) (session.Providers, error) {
	var p session.Providers
	var err error

	if p.STT, err = plugin.NewSTT(cfg.Providers.STT.Name, entryConfig(cfg.Providers.STT)); err != nil {
		return session.Providers{}, fmt.Errorf("stt: %w", err)
	}
	if p.LLM, err = plugin.NewLLM(cfg.Providers.LLM.Name, entryConfig(cfg.Providers.LLM)); err != nil {
		return session.Providers{}, fmt.Errorf("llm: %w", err)
	}
	if p.TTS, err = plugin.NewTTS(cfg.Providers.TTS.Name, entryConfig(cfg.Providers.TTS)); err != nil {
		return session.Providers{}, fmt.Errorf("tts: %w", err)
	}

	vadName := cfg.Providers.VAD.Name
	if vadName == "" {
		vadName = "energy"
	}
	if p.VAD, err = plugin.NewVAD(vadName, entryConfig(cfg.Providers.VAD)); err != nil {
		return session.Providers{}, fmt.Errorf("vad: %w", err)
	}
	return p, nil
}

func entryConfig(e config.ProviderEntry) map[string]any {
	cfg := map[string]any{}
	if e.APIKey != "" {
		cfg["api_key"] = e.APIKey
	}
	if e.BaseURL != "" {
		cfg["base_url"] = e.BaseURL
	}
	if e.Model != "" {
		cfg["model"] = e.Model
	}
	if e.Voice != "" {
		cfg["voice"] = e.Voice
	}
	if e.Language != "" {
		cfg["language"] = e.Language
	}
	return cfg
}
