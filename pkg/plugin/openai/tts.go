package openai

import (
	"context"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/callpipe-go/pkg/ai/tts"
	"github.com/chriscow/callpipe-go/pkg/audio"
)

// nativeSampleRate is what the OpenAI speech API produces in PCM format.
const nativeSampleRate = 24000

// chunkDuration sizes the PCM chunks handed to the pipeline.
const chunkDuration = 20 * time.Millisecond

// TTS implements speech synthesis using the OpenAI API.
type TTS struct {
	client *openai.Client
	model  string
	voice  string
}

// TTSConfig configures the OpenAI speech provider.
type TTSConfig struct {
	APIKey  string
	BaseURL string
	Model   string // default: tts-1
	Voice   string // default: alloy
}

// NewTTS creates an OpenAI speech synthesis provider.
func NewTTS(cfg TTSConfig) (*TTS, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &TTS{client: newClient(cfg.APIKey, cfg.BaseURL), model: model, voice: voice}, nil
}

// Synthesize converts text to PCM chunks. The API produces 24kHz mono; the
// result is resampled when the request asks for a different rate.
func (t *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan audio.PCM, error) {
	voice := req.Voice
	if voice == "" {
		voice = t.voice
	}

	resp, err := t.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(t.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, classify(err)
	}

	out := make(chan audio.PCM, 8)
	go func() {
		defer close(out)
		defer resp.Close()

		raw, err := io.ReadAll(resp)
		if err != nil {
			return
		}
		if len(raw)%2 != 0 {
			raw = raw[:len(raw)-1]
		}

		pcm := audio.PCM{Data: raw, SampleRate: nativeSampleRate, NumChannels: 1}
		if req.SampleRate > 0 && req.SampleRate != nativeSampleRate {
			pcm, err = audio.Resample(pcm, req.SampleRate)
			if err != nil {
				return
			}
		}

		chunkBytes := 2 * pcm.SampleRate * int(chunkDuration/time.Millisecond) / 1000
		for off := 0; off < len(pcm.Data); off += chunkBytes {
			end := min(off+chunkBytes, len(pcm.Data))
			chunk := audio.PCM{
				Data:        pcm.Data[off:end],
				SampleRate:  pcm.SampleRate,
				NumChannels: 1,
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Capabilities reports the supported voices and rates.
func (t *TTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		Voices:      []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
		SampleRates: []int{nativeSampleRate, 8000, 16000},
	}
}
