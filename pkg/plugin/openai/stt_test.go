package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/callpipe-go/pkg/ai"
	"github.com/chriscow/callpipe-go/pkg/ai/stt"
	"github.com/chriscow/callpipe-go/pkg/audio"
)

func TestNewSTTRequiresAPIKey(t *testing.T) {
	if _, err := NewSTT(STTConfig{}); err == nil {
		t.Error("expected error for missing api key")
	}
}

func TestNewSTTDefaults(t *testing.T) {
	s, err := NewSTT(STTConfig{APIKey: "test-key", Language: "en"})
	if err != nil {
		t.Fatalf("NewSTT: %v", err)
	}
	if s.model != openai.Whisper1 {
		t.Errorf("model = %q, want %q", s.model, openai.Whisper1)
	}
	if s.language != "en" {
		t.Errorf("language = %q, want en", s.language)
	}
}

func TestWhisperStreamRejectsPushAfterClose(t *testing.T) {
	s, err := NewSTT(STTConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewSTT: %v", err)
	}
	stream, err := s.NewStream(context.Background(), stt.StreamConfig{SampleRate: 8000, NumChannels: 1})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
	if err := stream.Push(audio.FromSamples(make([]int16, 80), 8000, 1)); err == nil {
		t.Error("expected push after close to fail")
	}
	if err := stream.CloseSend(); err == nil {
		t.Error("expected second CloseSend to fail")
	}
}

func TestWhisperStreamShortUtteranceSkipsAPI(t *testing.T) {
	s, err := NewSTT(STTConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewSTT: %v", err)
	}
	stream, err := s.NewStream(context.Background(), stt.StreamConfig{SampleRate: 8000, NumChannels: 1})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	// 40ms of audio, below the API minimum. No network call happens; an
	// empty final is emitted and the channel closes.
	if err := stream.Push(audio.FromSamples(make([]int16, 320), 8000, 1)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}

	select {
	case ev, ok := <-stream.Events():
		if !ok {
			t.Fatal("events closed without a final")
		}
		if ev.Type != stt.EventFinal || ev.Text != "" {
			t.Errorf("event = %+v, want empty final", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for final event")
	}

	select {
	case _, ok := <-stream.Events():
		if ok {
			t.Error("expected events channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestCombinePreservesFormatAndDuration(t *testing.T) {
	chunks := []audio.PCM{
		audio.FromSamples(make([]int16, 160), 8000, 1),
		audio.FromSamples(make([]int16, 160), 8000, 1),
	}
	combined, total := combine(chunks)
	if combined.SampleRate != 8000 || combined.NumChannels != 1 {
		t.Errorf("format = %dHz/%dch, want 8000Hz/1ch", combined.SampleRate, combined.NumChannels)
	}
	if combined.SampleCount() != 320 {
		t.Errorf("samples = %d, want 320", combined.SampleCount())
	}
	if total != 40*time.Millisecond {
		t.Errorf("duration = %v, want 40ms", total)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		recoverable bool
		fatal       bool
	}{
		{"rate limit", &openai.APIError{HTTPStatusCode: 429}, true, false},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true, false},
		{"bad auth", &openai.APIError{HTTPStatusCode: 401}, false, true},
		{"not found", &openai.APIError{HTTPStatusCode: 404}, false, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false, true},
		{"transport", errors.New("connection reset"), true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			if ai.IsRecoverable(got) != tc.recoverable {
				t.Errorf("IsRecoverable = %v, want %v", ai.IsRecoverable(got), tc.recoverable)
			}
			if ai.IsFatal(got) != tc.fatal {
				t.Errorf("IsFatal = %v, want %v", ai.IsFatal(got), tc.fatal)
			}
		})
	}
}

func TestClassifyPassesThroughCancellation(t *testing.T) {
	got := classify(context.Canceled)
	if !errors.Is(got, context.Canceled) {
		t.Errorf("classify(Canceled) = %v", got)
	}
	if ai.IsRecoverable(got) || ai.IsFatal(got) {
		t.Error("cancellation must not be classified")
	}
}
