package stages

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/chriscow/callpipe-go/pkg/ai/tts"
	"github.com/chriscow/callpipe-go/pkg/frame"
	"github.com/chriscow/callpipe-go/pkg/pipeline"
)

// TTSStage converts the assistant's streamed response text into audio
// frames. Text accumulates until a sentence boundary, then the completed
// sentence is synthesized immediately so playback starts before the full
// response exists. The assistant EndOfTurn flushes any trailing fragment and
// is forwarded after the last audio chunk, preserving the in-band turn
// boundary.
type TTSStage struct {
	provider   tts.TTS
	voice      string
	sampleRate int
	seq        frame.Sequencer

	acc    string // assistant text accumulated this turn
	spoken int    // prefix of acc already synthesized
}

// NewTTSStage creates the speech synthesis stage.
func NewTTSStage(provider tts.TTS, voice string, sampleRate int) *TTSStage {
	return &TTSStage{provider: provider, voice: voice, sampleRate: sampleRate}
}

func (s *TTSStage) Name() string { return "tts" }

func (s *TTSStage) Process(ctx context.Context, f frame.Frame, emit pipeline.EmitFunc) error {
	switch f := f.(type) {
	case frame.TranscriptPartial:
		if f.Role != frame.RoleAssistant {
			return emit(ctx, f)
		}
		s.acc += f.Text
		if err := s.speakComplete(ctx, emit); err != nil {
			return err
		}
		return emit(ctx, f)

	case frame.TranscriptFinal:
		if f.Role != frame.RoleAssistant {
			return emit(ctx, f)
		}
		// The final carries the full response; anything past what the
		// partials already covered still needs synthesis.
		s.acc = f.Text
		if s.spoken > len(s.acc) {
			s.spoken = len(s.acc)
		}
		if err := s.speakComplete(ctx, emit); err != nil {
			return err
		}
		return emit(ctx, f)

	case frame.EndOfTurn:
		if f.Role != frame.RoleAssistant {
			return emit(ctx, f)
		}
		if err := s.speak(ctx, s.acc[s.spoken:], emit); err != nil {
			return err
		}
		s.reset()
		return emit(ctx, f)

	case frame.Cancel:
		s.reset()
		return nil

	default:
		return emit(ctx, f)
	}
}

func (s *TTSStage) reset() {
	s.acc = ""
	s.spoken = 0
}

// speakComplete synthesizes every complete sentence not yet spoken, leaving
// any trailing fragment accumulated for the next delta.
func (s *TTSStage) speakComplete(ctx context.Context, emit pipeline.EmitFunc) error {
	for {
		end := sentenceEnd(s.acc[s.spoken:])
		if end < 0 {
			return nil
		}
		text := s.acc[s.spoken : s.spoken+end]
		s.spoken += end
		if err := s.speak(ctx, text, emit); err != nil {
			return err
		}
	}
}

func (s *TTSStage) speak(ctx context.Context, text string, emit pipeline.EmitFunc) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	chunks, err := s.provider.Synthesize(ctx, tts.SynthesizeRequest{
		Text:       text,
		Voice:      s.voice,
		SampleRate: s.sampleRate,
	})
	if err != nil {
		return fmt.Errorf("tts: synthesize: %w", err)
	}
	for pcm := range chunks {
		if err := emit(ctx, frame.NewAudio(&s.seq, pcm.Data, pcm.SampleRate, pcm.NumChannels)); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// sentenceEnd returns the index just past the first complete sentence in s,
// or -1 when no sentence boundary has arrived yet. A boundary is sentence
// punctuation followed by whitespace; trailing punctuation without a
// following space stays buffered, since more of the sentence may follow in
// the next delta.
func sentenceEnd(s string) int {
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		rest := s[i+1:]
		if rest == "" {
			return -1
		}
		next := []rune(rest)[0]
		if unicode.IsSpace(next) {
			return i + 1
		}
	}
	return -1
}
