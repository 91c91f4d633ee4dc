// Package fake registers the in-memory providers with the plugin registry
// so a pipeline can run end to end without any external service. Useful for
// local development and the example tools.
package fake

import (
	"fmt"

	llmfake "github.com/chriscow/callpipe-go/pkg/ai/llm/fake"
	sttfake "github.com/chriscow/callpipe-go/pkg/ai/stt/fake"
	ttsfake "github.com/chriscow/callpipe-go/pkg/ai/tts/fake"
	"github.com/chriscow/callpipe-go/pkg/ai/vad"
	vadfake "github.com/chriscow/callpipe-go/pkg/ai/vad/fake"
	"github.com/chriscow/callpipe-go/pkg/plugin"
)

func stringList(cfg map[string]any, key string) ([]string, error) {
	v, ok := cfg[key]
	if !ok {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a string list, got %T", key, v)
	}
}

func newFakeSTT(cfg map[string]any) (any, error) {
	transcripts, err := stringList(cfg, "transcripts")
	if err != nil {
		return nil, err
	}
	if len(transcripts) == 0 {
		transcripts = []string{"hello there"}
	}
	return sttfake.New(transcripts...), nil
}

func newFakeLLM(cfg map[string]any) (any, error) {
	responses, err := stringList(cfg, "responses")
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		responses = []string{"Hi! How can I help you today?"}
	}
	return llmfake.New(responses...), nil
}

func newFakeTTS(cfg map[string]any) (any, error) {
	return ttsfake.New(), nil
}

func newFakeVAD(cfg map[string]any) (any, error) {
	every := 10
	switch v := cfg["every"].(type) {
	case nil:
	case int:
		every = v
	case float64:
		every = int(v)
	default:
		return nil, fmt.Errorf("every must be a number, got %T", v)
	}
	return vadfake.New(every, vad.EventSpeechStart, vad.EventSpeechEnd), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "fake",
		Factory:     newFakeSTT,
		Description: "Scripted transcription for development",
	})
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "fake",
		Factory:     newFakeLLM,
		Description: "Scripted chat responses for development",
	})
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "fake",
		Factory:     newFakeTTS,
		Description: "Tone-generator synthesis for development",
	})
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindVAD,
		Name:        "fake",
		Factory:     newFakeVAD,
		Description: "Scripted speech boundaries for development",
	})
}
