package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chriscow/callpipe-go/pkg/ai"
	"github.com/chriscow/callpipe-go/pkg/ai/vad"
	"github.com/chriscow/callpipe-go/pkg/audio"
	"github.com/chriscow/callpipe-go/pkg/convo"
	"github.com/chriscow/callpipe-go/pkg/frame"
	"github.com/chriscow/callpipe-go/pkg/pipeline"
)

// defaultVADBuffer is the capacity of the queue feeding the voice-activity
// detector. Detection lags the wire slightly under load; a full queue drops
// the detector's copy rather than stall the media flow.
const defaultVADBuffer = 64

// Params configures a Transport.
type Params struct {
	// AllowInterruptions enables barge-in: caller speech during assistant
	// playback interrupts the in-flight response. When disabled, caller
	// audio is discarded while the assistant is speaking.
	AllowInterruptions bool

	// VADBuffer overrides the detector queue capacity.
	VADBuffer int

	// InSampleRate is the rate inbound caller audio is delivered at. Wire
	// audio arrives at WireSampleRate and is resampled when this differs.
	// Zero selects WireSampleRate.
	InSampleRate int

	// Handler receives connection lifecycle notifications. Optional.
	Handler ConnectionHandler

	// Turns is interrupted on barge-in. Optional.
	Turns convo.TurnController

	Logger *slog.Logger
}

// Transport owns one phone call's media stream and exposes its two pipeline
// stages: the input stage at the head of the pipeline and the output stage
// near the tail. The two share the connection, the stream identity, and the
// playback gate.
type Transport struct {
	conn   Conn
	ser    Serializer
	vad    vad.VAD
	gate   AudioGate
	params Params
	logger *slog.Logger

	mu  sync.Mutex
	sid string

	in  *TransportInput
	out *TransportOutput
}

// NewTransport creates a transport over an established connection.
func NewTransport(conn Conn, detector vad.VAD, params Params) *Transport {
	if params.VADBuffer <= 0 {
		params.VADBuffer = defaultVADBuffer
	}
	if params.InSampleRate <= 0 {
		params.InSampleRate = WireSampleRate
	}
	if params.Turns == nil {
		params.Turns = convo.NopTurnController{}
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	t := &Transport{
		conn:   conn,
		vad:    detector,
		gate:   NewAudioGate(),
		params: params,
		logger: params.Logger,
	}
	t.in = &TransportInput{t: t}
	t.out = &TransportOutput{t: t}
	return t
}

// Input returns the source stage adapting inbound media into audio frames.
func (t *Transport) Input() *TransportInput { return t.in }

// Output returns the sink stage playing audio frames back to the caller.
func (t *Transport) Output() *TransportOutput { return t.out }

// Gate returns the playback gate shared by the two stages.
func (t *Transport) Gate() AudioGate { return t.gate }

// StreamSID returns the media stream identifier, or an empty string before
// the start envelope has arrived.
func (t *Transport) StreamSID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sid
}

func (t *Transport) setStreamSID(sid string) {
	t.mu.Lock()
	t.sid = sid
	t.mu.Unlock()
}

// TransportInput is the pipeline's source stage. It reads wire envelopes,
// emits caller audio frames, and runs voice-activity detection over the
// inbound audio: end of speech becomes the user EndOfTurn, and speech during
// assistant playback triggers barge-in when interruptions are allowed.
type TransportInput struct {
	t *Transport

	seq  frame.Sequencer
	emit pipeline.EmitFunc
	ctx  context.Context

	pcmCh      chan audio.PCM
	wg         sync.WaitGroup
	discOnce   sync.Once
	vadDropped int
}

func (in *TransportInput) Name() string { return "transport_in" }

func (in *TransportInput) OnStart(ctx context.Context, emit pipeline.EmitFunc) error {
	in.ctx = ctx
	in.emit = emit
	in.pcmCh = make(chan audio.PCM, in.t.params.VADBuffer)

	events, err := in.t.vad.Detect(ctx, in.pcmCh)
	if err != nil {
		return fmt.Errorf("telephony: start voice activity detection: %w", err)
	}

	in.wg.Add(2)
	go in.vadLoop(events)
	go in.readLoop()
	return nil
}

// OnStop closes the connection, which unblocks the read loop, and waits for
// both loops to drain.
func (in *TransportInput) OnStop() error {
	err := in.t.conn.Close()
	in.wg.Wait()
	return err
}

func (in *TransportInput) Process(ctx context.Context, f frame.Frame, emit pipeline.EmitFunc) error {
	switch f.(type) {
	case frame.Cancel:
		return nil
	default:
		return emit(ctx, f)
	}
}

func (in *TransportInput) readLoop() {
	defer in.wg.Done()
	defer close(in.pcmCh)
	t := in.t
	for {
		data, err := t.conn.ReadMessage()
		if err != nil {
			in.disconnected("connection closed")
			return
		}
		m, err := t.ser.Decode(data)
		if err != nil {
			t.logger.Warn("dropping unparseable envelope", slog.String("error", err.Error()))
			continue
		}

		switch m.Event {
		case EventConnected:
			t.logger.Debug("media stream connected")

		case EventStart:
			sid := m.StreamSID
			if sid == "" && m.Start != nil {
				sid = m.Start.StreamSID
			}
			t.setStreamSID(sid)
			t.logger.Info("media stream started", slog.String("stream_sid", sid))
			if t.params.Handler != nil {
				t.params.Handler.OnClientConnected(sid)
			}

		case EventMedia:
			pcm, err := t.ser.DecodeMedia(m)
			if err != nil {
				t.logger.Warn("dropping bad media payload", slog.String("error", err.Error()))
				continue
			}
			if t.gate.Playing() && !t.params.AllowInterruptions {
				continue
			}
			if err := in.handleAudio(pcm); err != nil {
				return
			}

		case EventStop:
			t.logger.Info("media stream stopped")
			in.disconnected("stream stopped")

		case EventMark:
			if m.Mark != nil {
				t.logger.Debug("playback mark", slog.String("name", m.Mark.Name))
			}

		default:
			t.logger.Debug("ignoring envelope", slog.String("event", m.Event))
		}
	}
}

func (in *TransportInput) handleAudio(pcm audio.PCM) error {
	if pcm.SampleRate != in.t.params.InSampleRate {
		resampled, err := audio.Resample(pcm, in.t.params.InSampleRate)
		if err != nil {
			in.t.logger.Warn("cannot resample inbound audio, keeping wire rate",
				slog.String("error", err.Error()))
		} else {
			pcm = resampled
		}
	}
	// The detector gets its own copy since the frame owns its data slice.
	select {
	case in.pcmCh <- pcm.Clone():
	default:
		in.vadDropped++
	}
	return in.emit(in.ctx, frame.NewAudio(&in.seq, pcm.Data, pcm.SampleRate, pcm.NumChannels))
}

func (in *TransportInput) vadLoop(events <-chan vad.Event) {
	defer in.wg.Done()
	t := in.t
	for ev := range events {
		switch ev.Type {
		case vad.EventSpeechStart:
			if t.gate.Playing() && t.params.AllowInterruptions {
				t.logger.Debug("caller barged in")
				t.params.Turns.Interrupt()
			}

		case vad.EventSpeechEnd:
			if err := in.emit(in.ctx, frame.NewEndOfTurn(&in.seq, frame.RoleUser)); err != nil {
				return
			}

		case vad.EventError:
			t.logger.Warn("voice activity detection error", slog.String("error", ev.Err.Error()))
		}
	}
}

func (in *TransportInput) disconnected(reason string) {
	in.discOnce.Do(func() {
		if h := in.t.params.Handler; h != nil {
			h.OnClientDisconnected(reason)
		}
	})
}

// TransportOutput plays assistant audio back over the wire. It closes the
// playback gate while audio is flowing and reopens it at the assistant turn
// boundary. A Cancel clears the far end's playback buffer so interrupted
// speech stops immediately instead of draining.
type TransportOutput struct {
	t       *Transport
	writeMu sync.Mutex
}

func (out *TransportOutput) Name() string { return "transport_out" }

func (out *TransportOutput) Process(ctx context.Context, f frame.Frame, emit pipeline.EmitFunc) error {
	t := out.t
	switch f := f.(type) {
	case frame.Audio:
		t.gate.SetPlaying(true)
		pcm := audio.PCM{Data: f.Data, SampleRate: f.SampleRate, NumChannels: f.NumChannels}
		if pcm.SampleRate != WireSampleRate {
			var err error
			if pcm, err = audio.Resample(pcm, WireSampleRate); err != nil {
				return fmt.Errorf("telephony: prepare playback audio: %w", err)
			}
		}
		data, err := t.ser.EncodeMedia(t.StreamSID(), pcm)
		if err != nil {
			return err
		}
		return out.write(data)

	case frame.EndOfTurn:
		if f.Role == frame.RoleAssistant {
			t.gate.SetPlaying(false)
		}
		return emit(ctx, f)

	case frame.Cancel:
		t.gate.SetPlaying(false)
		data, err := t.ser.EncodeClear(t.StreamSID())
		if err != nil {
			return err
		}
		if err := out.write(data); err != nil {
			t.logger.Warn("failed to clear playback buffer", slog.String("error", err.Error()))
		}
		return nil

	default:
		return emit(ctx, f)
	}
}

// write sends one envelope. Errors are classified recoverable: a dead
// connection is detected and handled by the read side, so a failed write
// just drops the frame rather than halting the pipeline.
func (out *TransportOutput) write(data []byte) error {
	out.writeMu.Lock()
	defer out.writeMu.Unlock()
	if err := out.t.conn.WriteMessage(data); err != nil {
		return ai.Recoverable(fmt.Errorf("telephony: write: %w", err))
	}
	return nil
}
