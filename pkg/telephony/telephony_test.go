package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/chriscow/callpipe-go/pkg/ai/vad"
	fakevad "github.com/chriscow/callpipe-go/pkg/ai/vad/fake"
	"github.com/chriscow/callpipe-go/pkg/audio"
	"github.com/chriscow/callpipe-go/pkg/frame"
)

// fakeConn scripts the inbound side of a call and records everything
// written back.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, fmt.Errorf("connection closed")
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("connection closed")
	default:
	}
	c.mu.Lock()
	c.writes = append(c.writes, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.writes))
	for _, data := range c.writes {
		var m Message
		if err := json.Unmarshal(data, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) send(t *testing.T, m Message) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	c.in <- data
}

func mediaMessage(samples int) Message {
	mulaw := make([]byte, samples)
	for i := range mulaw {
		mulaw[i] = 0xFF // mu-law near-silence
	}
	return Message{
		Event: EventMedia,
		Media: &MediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	}
}

type collectHandler struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
}

func (h *collectHandler) OnClientConnected(sid string) {
	h.mu.Lock()
	h.connected = append(h.connected, sid)
	h.mu.Unlock()
}

func (h *collectHandler) OnClientDisconnected(reason string) {
	h.mu.Lock()
	h.disconnected = append(h.disconnected, reason)
	h.mu.Unlock()
}

type countingTurns struct {
	mu         sync.Mutex
	interrupts int
}

func (c *countingTurns) TurnStarted() {}
func (c *countingTurns) TurnEnded()  {}
func (c *countingTurns) Interrupt() bool {
	c.mu.Lock()
	c.interrupts++
	c.mu.Unlock()
	return true
}

func (c *countingTurns) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupts
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSerializerMediaRoundTrip(t *testing.T) {
	is := is.New(t)

	var ser Serializer
	pcm := audio.FromSamples([]int16{0, 1000, -1000, 32000}, WireSampleRate, 1)

	data, err := ser.EncodeMedia("MZ123", pcm)
	is.NoErr(err)

	m, err := ser.Decode(data)
	is.NoErr(err)
	is.Equal(m.Event, EventMedia)
	is.Equal(m.StreamSID, "MZ123")

	decoded, err := ser.DecodeMedia(m)
	is.NoErr(err)
	is.Equal(decoded.SampleRate, WireSampleRate)
	is.Equal(decoded.SampleCount(), 4)
}

func TestSerializerRejectsWrongRate(t *testing.T) {
	is := is.New(t)

	var ser Serializer
	_, err := ser.EncodeMedia("MZ123", audio.PCM{Data: make([]byte, 640), SampleRate: 16000, NumChannels: 1})
	is.True(err != nil)
}

func TestInputResamplesToConfiguredRate(t *testing.T) {
	is := is.New(t)

	conn := newFakeConn()
	tr := NewTransport(conn, fakevad.New(1000), Params{InSampleRate: 16000})

	var (
		mu     sync.Mutex
		frames []frame.Frame
	)
	emit := func(_ context.Context, f frame.Frame) error {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
		return nil
	}

	in := tr.Input()
	is.NoErr(in.OnStart(context.Background(), emit))
	conn.send(t, mediaMessage(160))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	})

	mu.Lock()
	af := frames[0].(frame.Audio)
	mu.Unlock()
	is.Equal(af.SampleRate, 16000)
	is.Equal(len(af.Data)/2, 320) // 20ms of audio at the configured rate

	is.NoErr(in.OnStop())
}

func TestOutputResamplesToWireRate(t *testing.T) {
	is := is.New(t)

	conn := newFakeConn()
	tr := NewTransport(conn, fakevad.New(1), Params{})
	tr.setStreamSID("MZ123")
	out := tr.Output()

	var seq frame.Sequencer
	discard := func(context.Context, frame.Frame) error { return nil }

	// 20ms of synthesized audio at 16 kHz must leave the wire as 20ms at
	// 8 kHz.
	pcm := audio.FromSamples(make([]int16, 320), 16000, 1)
	af := frame.NewAudio(&seq, pcm.Data, pcm.SampleRate, pcm.NumChannels)
	is.NoErr(out.Process(context.Background(), af, discard))

	msgs := conn.written()
	is.Equal(len(msgs), 1)
	payload, err := base64.StdEncoding.DecodeString(msgs[0].Media.Payload)
	is.NoErr(err)
	is.Equal(len(payload), 160)
}

func TestInputEmitsAudioAndEndOfTurn(t *testing.T) {
	is := is.New(t)

	conn := newFakeConn()
	handler := &collectHandler{}
	// Speech ends after 10 chunks.
	detector := fakevad.New(10, vad.EventSpeechEnd)
	tr := NewTransport(conn, detector, Params{Handler: handler})

	var (
		mu     sync.Mutex
		frames []frame.Frame
	)
	emit := func(_ context.Context, f frame.Frame) error {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
		return nil
	}

	in := tr.Input()
	is.NoErr(in.OnStart(context.Background(), emit))

	conn.send(t, Message{Event: EventConnected, Protocol: "Call"})
	conn.send(t, Message{Event: EventStart, Start: &StartPayload{StreamSID: "MZ123"}})
	for i := 0; i < 10; i++ {
		conn.send(t, mediaMessage(160))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		var audioN, eotN int
		for _, f := range frames {
			switch f.Kind() {
			case frame.KindAudio:
				audioN++
			case frame.KindEndOfTurn:
				eotN++
			}
		}
		return audioN == 10 && eotN == 1
	})

	is.Equal(tr.StreamSID(), "MZ123")
	handler.mu.Lock()
	is.Equal(handler.connected, []string{"MZ123"})
	handler.mu.Unlock()

	is.NoErr(in.OnStop())
	handler.mu.Lock()
	is.Equal(len(handler.disconnected), 1)
	handler.mu.Unlock()
}

func TestInputDiscardsAudioDuringPlaybackWithoutInterruptions(t *testing.T) {
	is := is.New(t)

	conn := newFakeConn()
	detector := fakevad.New(1)
	tr := NewTransport(conn, detector, Params{AllowInterruptions: false})
	tr.Gate().SetPlaying(true)

	var (
		mu     sync.Mutex
		frames int
	)
	emit := func(_ context.Context, f frame.Frame) error {
		mu.Lock()
		frames++
		mu.Unlock()
		return nil
	}

	in := tr.Input()
	is.NoErr(in.OnStart(context.Background(), emit))
	for i := 0; i < 5; i++ {
		conn.send(t, mediaMessage(160))
	}

	// Give the read loop time to consume; nothing may come out.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	is.Equal(frames, 0)
	mu.Unlock()

	is.NoErr(in.OnStop())
}

func TestInputInterruptsOnBargeIn(t *testing.T) {
	is := is.New(t)

	conn := newFakeConn()
	turns := &countingTurns{}
	detector := fakevad.New(3, vad.EventSpeechStart)
	tr := NewTransport(conn, detector, Params{AllowInterruptions: true, Turns: turns})
	tr.Gate().SetPlaying(true)

	in := tr.Input()
	is.NoErr(in.OnStart(context.Background(), func(context.Context, frame.Frame) error { return nil }))

	for i := 0; i < 3; i++ {
		conn.send(t, mediaMessage(160))
	}

	waitFor(t, func() bool { return turns.count() == 1 })
	is.NoErr(in.OnStop())
}

func TestOutputPlaysAudioAndClearsOnCancel(t *testing.T) {
	is := is.New(t)

	conn := newFakeConn()
	tr := NewTransport(conn, fakevad.New(1), Params{})
	tr.setStreamSID("MZ123")
	out := tr.Output()

	var seq frame.Sequencer
	discard := func(context.Context, frame.Frame) error { return nil }

	pcm := audio.FromSamples(make([]int16, 160), WireSampleRate, 1)
	af := frame.NewAudio(&seq, pcm.Data, pcm.SampleRate, pcm.NumChannels)
	is.NoErr(out.Process(context.Background(), af, discard))
	is.True(tr.Gate().Playing())

	is.NoErr(out.Process(context.Background(), frame.NewCancel(&seq), discard))
	is.Equal(tr.Gate().Playing(), false)

	msgs := conn.written()
	is.Equal(len(msgs), 2)
	is.Equal(msgs[0].Event, EventMedia)
	is.Equal(msgs[0].StreamSID, "MZ123")
	is.Equal(msgs[1].Event, EventClear)
}

func TestOutputReopensGateAtTurnBoundary(t *testing.T) {
	is := is.New(t)

	conn := newFakeConn()
	tr := NewTransport(conn, fakevad.New(1), Params{})
	out := tr.Output()

	var seq frame.Sequencer
	var forwarded []frame.Frame
	emit := func(_ context.Context, f frame.Frame) error {
		forwarded = append(forwarded, f)
		return nil
	}

	pcm := audio.FromSamples(make([]int16, 160), WireSampleRate, 1)
	is.NoErr(out.Process(context.Background(), frame.NewAudio(&seq, pcm.Data, pcm.SampleRate, pcm.NumChannels), emit))
	is.True(tr.Gate().Playing())

	is.NoErr(out.Process(context.Background(), frame.NewEndOfTurn(&seq, frame.RoleAssistant), emit))
	is.Equal(tr.Gate().Playing(), false)

	// The turn boundary is forwarded for the aggregator behind the output.
	is.Equal(len(forwarded), 1)
	is.Equal(forwarded[0].Kind(), frame.KindEndOfTurn)
}
