package openai

import (
	"fmt"
	"os"

	"github.com/chriscow/callpipe-go/pkg/plugin"
)

func apiKey(cfg map[string]any) (string, error) {
	if key, ok := cfg["api_key"].(string); ok && key != "" {
		return key, nil
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("api key is required (set OPENAI_API_KEY or provide api_key in config)")
}

func stringOpt(cfg map[string]any, key string) string {
	v, _ := cfg[key].(string)
	return v
}

func newSTTPlugin(cfg map[string]any) (any, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewSTT(STTConfig{
		APIKey:   key,
		BaseURL:  stringOpt(cfg, "base_url"),
		Model:    stringOpt(cfg, "model"),
		Language: stringOpt(cfg, "language"),
	})
}

func newLLMPlugin(cfg map[string]any) (any, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewLLM(LLMConfig{
		APIKey:  key,
		BaseURL: stringOpt(cfg, "base_url"),
		Model:   stringOpt(cfg, "model"),
	})
}

func newTTSPlugin(cfg map[string]any) (any, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewTTS(TTSConfig{
		APIKey:  key,
		BaseURL: stringOpt(cfg, "base_url"),
		Model:   stringOpt(cfg, "model"),
		Voice:   stringOpt(cfg, "voice"),
	})
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "openai",
		Factory:     newSTTPlugin,
		Description: "OpenAI Whisper transcription",
	})
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "openai",
		Factory:     newLLMPlugin,
		Description: "OpenAI GPT chat completion",
	})
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "openai",
		Factory:     newTTSPlugin,
		Description: "OpenAI speech synthesis",
	})
}
