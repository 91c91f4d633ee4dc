package plugin

import (
	"fmt"

	"github.com/chriscow/callpipe-go/pkg/ai/llm"
	"github.com/chriscow/callpipe-go/pkg/ai/stt"
	"github.com/chriscow/callpipe-go/pkg/ai/tts"
	"github.com/chriscow/callpipe-go/pkg/ai/vad"
)

// NewSTT builds a registered speech-to-text provider by name.
func NewSTT(name string, cfg map[string]any) (stt.STT, error) {
	v, err := build(KindSTT, name, cfg)
	if err != nil {
		return nil, err
	}
	p, ok := v.(stt.STT)
	if !ok {
		return nil, fmt.Errorf("plugin: %s/%s factory returned %T, not stt.STT", KindSTT, name, v)
	}
	return p, nil
}

// NewLLM builds a registered language-model provider by name.
func NewLLM(name string, cfg map[string]any) (llm.LLM, error) {
	v, err := build(KindLLM, name, cfg)
	if err != nil {
		return nil, err
	}
	p, ok := v.(llm.LLM)
	if !ok {
		return nil, fmt.Errorf("plugin: %s/%s factory returned %T, not llm.LLM", KindLLM, name, v)
	}
	return p, nil
}

// NewTTS builds a registered text-to-speech provider by name.
func NewTTS(name string, cfg map[string]any) (tts.TTS, error) {
	v, err := build(KindTTS, name, cfg)
	if err != nil {
		return nil, err
	}
	p, ok := v.(tts.TTS)
	if !ok {
		return nil, fmt.Errorf("plugin: %s/%s factory returned %T, not tts.TTS", KindTTS, name, v)
	}
	return p, nil
}

// NewVAD builds a registered voice-activity detector by name.
func NewVAD(name string, cfg map[string]any) (vad.VAD, error) {
	v, err := build(KindVAD, name, cfg)
	if err != nil {
		return nil, err
	}
	p, ok := v.(vad.VAD)
	if !ok {
		return nil, fmt.Errorf("plugin: %s/%s factory returned %T, not vad.VAD", KindVAD, name, v)
	}
	return p, nil
}

func build(kind, name string, cfg map[string]any) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("plugin: no %s provider configured", kind)
	}
	factory, ok := Get(kind, name)
	if !ok {
		return nil, fmt.Errorf("plugin: %s provider %q is not registered", kind, name)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	v, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("plugin: build %s/%s: %w", kind, name, err)
	}
	return v, nil
}
