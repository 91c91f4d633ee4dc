package openai

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/callpipe-go/pkg/ai/stt"
	"github.com/chriscow/callpipe-go/pkg/audio"
	"github.com/chriscow/callpipe-go/pkg/audio/wav"
)

// minUtterance is the shortest audio the transcription API accepts.
const minUtterance = 100 * time.Millisecond

// STT implements transcription using the OpenAI Whisper API. Whisper is a
// batch model, so each stream buffers its utterance and transcribes it on
// CloseSend; there are no interim results.
type STT struct {
	client   *openai.Client
	model    string
	language string
}

// STTConfig configures the Whisper provider.
type STTConfig struct {
	APIKey   string
	BaseURL  string
	Model    string // default: whisper-1
	Language string // default: auto-detect
}

// NewSTT creates an OpenAI Whisper transcription provider.
func NewSTT(cfg STTConfig) (*STT, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &STT{
		client:   newClient(cfg.APIKey, cfg.BaseURL),
		model:    model,
		language: cfg.Language,
	}, nil
}

// NewStream opens a buffering transcription session.
func (s *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	language := cfg.Language
	if language == "" {
		language = s.language
	}
	return &whisperStream{
		stt:      s,
		ctx:      ctx,
		language: language,
		events:   make(chan stt.Event, 4),
	}, nil
}

// Capabilities reports batch-only transcription.
func (s *STT) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		Streaming:      false,
		InterimResults: false,
		SampleRates:    []int{8000, 16000, 24000, 44100, 48000},
	}
}

type whisperStream struct {
	stt      *STT
	ctx      context.Context
	language string
	events   chan stt.Event

	mu     sync.Mutex
	buf    []audio.PCM
	closed bool
}

func (w *whisperStream) Push(chunk audio.PCM) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("openai: stream is closed")
	}
	w.buf = append(w.buf, chunk)
	return nil
}

func (w *whisperStream) Events() <-chan stt.Event {
	return w.events
}

// CloseSend flushes the buffered utterance through the transcription API.
// The events channel is closed after the final result is delivered.
func (w *whisperStream) CloseSend() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("openai: stream already closed")
	}
	w.closed = true
	buf := w.buf
	w.buf = nil
	w.mu.Unlock()

	go w.transcribe(buf)
	return nil
}

func (w *whisperStream) transcribe(chunks []audio.PCM) {
	defer close(w.events)

	combined, total := combine(chunks)
	if total < minUtterance {
		w.emit(stt.Event{Type: stt.EventFinal, Text: ""})
		return
	}

	wavData, err := wav.Marshal(combined)
	if err != nil {
		w.emit(stt.Event{Type: stt.EventError, Err: err})
		return
	}

	resp, err := w.stt.client.CreateTranscription(w.ctx, openai.AudioRequest{
		Model:    w.stt.model,
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(wavData),
		FilePath: "utterance.wav",
	})
	if err != nil {
		w.emit(stt.Event{Type: stt.EventError, Err: classify(err)})
		return
	}
	w.emit(stt.Event{Type: stt.EventFinal, Text: resp.Text})
}

func (w *whisperStream) emit(ev stt.Event) {
	select {
	case w.events <- ev:
	case <-w.ctx.Done():
	}
}

// combine concatenates the utterance's chunks into one PCM buffer. The
// chunks all come from the same transport, so the first chunk's format
// applies throughout.
func combine(chunks []audio.PCM) (audio.PCM, time.Duration) {
	if len(chunks) == 0 {
		return audio.PCM{SampleRate: 8000, NumChannels: 1}, 0
	}

	size := 0
	var total time.Duration
	for _, c := range chunks {
		size += len(c.Data)
		total += c.Duration()
	}

	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c.Data...)
	}
	return audio.PCM{
		Data:        data,
		SampleRate:  chunks[0].SampleRate,
		NumChannels: chunks[0].NumChannels,
	}, total
}
