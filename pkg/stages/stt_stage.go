// Package stages provides the built-in pipeline stages that bridge frames to
// the AI providers: speech recognition, response generation, and speech
// synthesis. Each stage adapts one provider contract into the frame flow and
// owns the turn bookkeeping that contract needs.
package stages

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chriscow/callpipe-go/pkg/ai/stt"
	"github.com/chriscow/callpipe-go/pkg/audio"
	"github.com/chriscow/callpipe-go/pkg/frame"
	"github.com/chriscow/callpipe-go/pkg/pipeline"
)

// STTStage feeds inbound audio to a streaming speech-to-text provider and
// emits the provider's interim and final results as user transcript frames.
//
// The recognition stream is scoped to the utterance: an EndOfTurn from the
// transport flushes the stream's final result and a fresh stream is opened
// for the next utterance. The stream deliberately survives turn
// cancellation, because a barge-in means the caller is speaking and their
// audio must keep flowing.
type STTStage struct {
	provider stt.STT
	cfg      stt.StreamConfig
	logger   *slog.Logger
	seq      frame.Sequencer

	sessionCtx context.Context
	emit       pipeline.EmitFunc

	mu     sync.Mutex
	stream stt.Stream
	wg     sync.WaitGroup
}

// NewSTTStage creates the speech recognition stage.
func NewSTTStage(provider stt.STT, cfg stt.StreamConfig, logger *slog.Logger) *STTStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &STTStage{provider: provider, cfg: cfg, logger: logger}
}

func (s *STTStage) Name() string { return "stt" }

// OnStart opens the first recognition stream for the session.
func (s *STTStage) OnStart(ctx context.Context, emit pipeline.EmitFunc) error {
	s.sessionCtx = ctx
	s.emit = emit
	return s.openStream()
}

// OnStop closes the active recognition stream and waits for its event pump
// to drain.
func (s *STTStage) OnStop() error {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()
	if st != nil {
		if err := st.CloseSend(); err != nil {
			s.logger.Warn("stt stream close failed", slog.String("error", err.Error()))
		}
	}
	s.wg.Wait()
	return nil
}

func (s *STTStage) Process(ctx context.Context, f frame.Frame, emit pipeline.EmitFunc) error {
	switch f := f.(type) {
	case frame.Audio:
		chunk := audio.PCM{Data: f.Data, SampleRate: f.SampleRate, NumChannels: f.NumChannels}
		s.mu.Lock()
		st := s.stream
		s.mu.Unlock()
		if st == nil {
			return fmt.Errorf("stt: no active stream")
		}
		return st.Push(chunk)

	case frame.EndOfTurn:
		if f.Role != frame.RoleUser {
			return emit(ctx, f)
		}
		// End of utterance: flush the final result and reopen for the next
		// one. The old pump drains on its own once the event channel closes.
		s.mu.Lock()
		st := s.stream
		s.stream = nil
		s.mu.Unlock()
		if st != nil {
			if err := st.CloseSend(); err != nil {
				return err
			}
		}
		if err := s.openStream(); err != nil {
			return err
		}
		return emit(ctx, f)

	case frame.Cancel:
		return nil

	default:
		return emit(ctx, f)
	}
}

func (s *STTStage) openStream() error {
	st, err := s.provider.NewStream(s.sessionCtx, s.cfg)
	if err != nil {
		return fmt.Errorf("stt: open stream: %w", err)
	}
	s.mu.Lock()
	s.stream = st
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pump(st)
	return nil
}

// pump forwards recognition events as transcript frames. User speech is not
// part of any response turn, so events are emitted under the session context
// and survive interruptions.
func (s *STTStage) pump(st stt.Stream) {
	defer s.wg.Done()
	for ev := range st.Events() {
		switch ev.Type {
		case stt.EventInterim:
			if err := s.emit(s.sessionCtx, frame.NewTranscriptPartial(&s.seq, frame.RoleUser, ev.Text)); err != nil {
				return
			}
		case stt.EventFinal:
			if ev.Text == "" {
				continue
			}
			if err := s.emit(s.sessionCtx, frame.NewTranscriptFinal(&s.seq, frame.RoleUser, ev.Text)); err != nil {
				return
			}
		case stt.EventError:
			s.logger.Warn("stt recognition error", slog.String("error", ev.Err.Error()))
		}
	}
}
