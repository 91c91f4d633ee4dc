package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chriscow/callpipe-go/pkg/ai/llm"
	"github.com/chriscow/callpipe-go/pkg/ai/stt"
	"github.com/chriscow/callpipe-go/pkg/ai/tts"
	"github.com/chriscow/callpipe-go/pkg/ai/vad"
	"github.com/chriscow/callpipe-go/pkg/convo"
	"github.com/chriscow/callpipe-go/pkg/frame"
	"github.com/chriscow/callpipe-go/pkg/pipeline"
	"github.com/chriscow/callpipe-go/pkg/stages"
	"github.com/chriscow/callpipe-go/pkg/telephony"
)

// DefaultGreeting is the directive that makes the assistant speak first.
const DefaultGreeting = "Say hello and briefly introduce yourself."

// DefaultStageOrder is the chain used when Options.Stages is empty. The
// assistant aggregator sits behind the output so the conversation commits
// only after the response has been played.
var DefaultStageOrder = []string{
	"transport_in", "stt", "user_aggregator", "llm", "tts",
	"transport_out", "assistant_aggregator",
}

// Providers are the AI services a session runs on.
type Providers struct {
	STT stt.STT
	LLM llm.LLM
	TTS tts.TTS
	VAD vad.VAD
}

// Options configures a session.
type Options struct {
	SystemPrompt string
	// Greeting is the directive committed at connect so the assistant opens
	// the call. Empty selects DefaultGreeting.
	Greeting string

	Voice    string
	Language string

	// Stages orders the pipeline chain by stage name. Empty selects
	// DefaultStageOrder.
	Stages []string

	// InSampleRate is the rate caller audio is recognized at; inbound wire
	// audio is resampled to it. OutSampleRate is the rate responses are
	// synthesized at; the transport resamples playback to the wire. Zero
	// selects the wire rate for either.
	InSampleRate  int
	OutSampleRate int

	AllowInterruptions bool
	DedupTranscripts   bool

	MaxTokens   int
	Temperature float32

	BufferDepth  int
	DrainTimeout time.Duration

	Logger    *slog.Logger
	Observers []pipeline.Observer

	// Escalate is invoked when a stage keeps failing recoverably. Optional.
	Escalate func(reason string)
}

// Session is one phone call: the transport, the pipeline task processing
// its media, and the controller tracking its lifecycle.
type Session struct {
	ID string

	ctrl   *Controller
	task   *pipeline.Task
	conv   *convo.Conversation
	logger *slog.Logger
}

// New assembles the pipeline for an established connection, in the order
// given by Options.Stages (DefaultStageOrder when empty).
func New(conn telephony.Conn, p Providers, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	if opts.InSampleRate <= 0 {
		opts.InSampleRate = telephony.WireSampleRate
	}
	if opts.OutSampleRate <= 0 {
		opts.OutSampleRate = telephony.WireSampleRate
	}

	var seed []convo.Turn
	if opts.SystemPrompt != "" {
		seed = append(seed, convo.Turn{Role: frame.RoleSystem, Content: opts.SystemPrompt})
	}
	conv := convo.New(seed...)

	ctrl := newController(opts.Greeting, opts.DrainTimeout, logger)
	ctrl.Escalate = opts.Escalate

	transport := telephony.NewTransport(conn, p.VAD, telephony.Params{
		AllowInterruptions: opts.AllowInterruptions,
		InSampleRate:       opts.InSampleRate,
		Handler:            ctrl,
		Turns:              ctrl,
		Logger:             logger,
	})

	var userOpts []convo.UserAggregatorOption
	if opts.DedupTranscripts {
		userOpts = append(userOpts, convo.WithDedupBySeq())
	}

	stageByName := map[string]pipeline.Stage{
		"transport_in": transport.Input(),
		"stt": stages.NewSTTStage(p.STT, stt.StreamConfig{
			SampleRate:  opts.InSampleRate,
			NumChannels: 1,
			Language:    opts.Language,
		}, logger),
		"user_aggregator":      convo.NewUserAggregator(conv, ctrl, userOpts...),
		"llm":                  stages.NewLLMStage(p.LLM, conv, opts.MaxTokens, opts.Temperature),
		"tts":                  stages.NewTTSStage(p.TTS, opts.Voice, opts.OutSampleRate),
		"transport_out":        transport.Output(),
		"assistant_aggregator": convo.NewAssistantAggregator(conv, ctrl),
	}

	order := opts.Stages
	if len(order) == 0 {
		order = DefaultStageOrder
	}
	chain := make([]pipeline.Stage, 0, len(order))
	used := make(map[string]bool, len(order))
	for _, name := range order {
		st, ok := stageByName[name]
		if !ok {
			return nil, fmt.Errorf("session: unknown stage %q", name)
		}
		if used[name] {
			return nil, fmt.Errorf("session: stage %q listed twice", name)
		}
		used[name] = true
		chain = append(chain, st)
	}

	observers := append([]pipeline.Observer{ctrl}, opts.Observers...)
	pipe, err := pipeline.New(chain, pipeline.Params{BufferDepth: opts.BufferDepth}, logger, observers...)
	if err != nil {
		return nil, err
	}

	task := pipeline.NewTask(pipe, logger)
	ctrl.bind(task, conv)

	return &Session{
		ID:     task.ID,
		ctrl:   ctrl,
		task:   task,
		conv:   conv,
		logger: logger.With(slog.String("session_id", task.ID)),
	}, nil
}

// Run processes the call until the connection ends, the context is
// cancelled, or a fatal stage error halts the pipeline.
func (s *Session) Run(ctx context.Context) error {
	s.ctrl.setState(StateConnected)
	err := s.task.Run(ctx)
	s.ctrl.Close()
	return err
}

// Close ends the call. Safe to call more than once and concurrently with
// Run.
func (s *Session) Close() { s.ctrl.Close() }

// State returns the session lifecycle state.
func (s *Session) State() State { return s.ctrl.State() }

// Conversation returns the session's shared conversation history.
func (s *Session) Conversation() *convo.Conversation { return s.conv }
