package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	fakellm "github.com/chriscow/callpipe-go/pkg/ai/llm/fake"
	fakestt "github.com/chriscow/callpipe-go/pkg/ai/stt/fake"
	faketts "github.com/chriscow/callpipe-go/pkg/ai/tts/fake"
	"github.com/chriscow/callpipe-go/pkg/ai/vad"
	fakevad "github.com/chriscow/callpipe-go/pkg/ai/vad/fake"
	"github.com/chriscow/callpipe-go/pkg/convo"
	"github.com/chriscow/callpipe-go/pkg/frame"
	"github.com/chriscow/callpipe-go/pkg/telephony"
)

// fakeConn scripts one side of a call and records everything written back.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 256), closed: make(chan struct{})}
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

func (c *fakeConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, data := range c.writes {
		var m telephony.Message
		if err := json.Unmarshal(data, &m); err == nil {
			out = append(out, m.Event)
		}
	}
	return out
}

func (c *fakeConn) countEvent(event string) int {
	n := 0
	for _, e := range c.events() {
		if e == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) send(t *testing.T, m telephony.Message) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case c.in <- data:
	case <-time.After(time.Second):
		t.Fatal("fake connection inbound queue stuck")
	}
}

func (c *fakeConn) sendStart(t *testing.T, sid string) {
	c.send(t, telephony.Message{
		Event: telephony.EventStart,
		Start: &telephony.StartPayload{StreamSID: sid},
	})
}

func (c *fakeConn) sendMedia(t *testing.T, n int) {
	for i := 0; i < n; i++ {
		mulaw := make([]byte, 160)
		for j := range mulaw {
			mulaw[j] = 0xFF
		}
		c.send(t, telephony.Message{
			Event: telephony.EventMedia,
			Media: &telephony.MediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
		})
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasTurn(c *convo.Conversation, role frame.Role, content string) bool {
	for _, turn := range c.Snapshot() {
		if turn.Role == role && turn.Content == content {
			return true
		}
	}
	return false
}

func TestSessionRoundTrip(t *testing.T) {
	is := is.New(t)

	conn := newFakeConn()
	providers := Providers{
		STT: fakestt.New("hello"),
		LLM: fakellm.New("Welcome to the line.", "Hi there!"),
		TTS: faketts.New(),
		// Speech ends after ten inbound chunks.
		VAD: fakevad.New(10, vad.EventSpeechEnd),
	}

	s, err := New(conn, providers, Options{
		SystemPrompt:       "You are a helpful phone assistant.",
		AllowInterruptions: true,
	})
	is.NoErr(err)

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background()) }()

	conn.sendStart(t, "MZ123")

	// The greeting directive makes the assistant speak first.
	waitFor(t, "greeting played", func() bool {
		return hasTurn(s.Conversation(), frame.RoleAssistant, "Welcome to the line.")
	})
	is.True(conn.countEvent(telephony.EventMedia) > 0)

	// Ten chunks of caller speech, then the scripted end of utterance.
	conn.sendMedia(t, 10)

	waitFor(t, "caller turn answered", func() bool {
		return hasTurn(s.Conversation(), frame.RoleUser, "hello") &&
			hasTurn(s.Conversation(), frame.RoleAssistant, "Hi there!")
	})

	s.Close()
	select {
	case err := <-runDone:
		is.NoErr(err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not shut down")
	}
	is.Equal(s.State(), StateClosed)
}

func TestSessionHonorsConfiguredStageOrder(t *testing.T) {
	is := is.New(t)

	conn := newFakeConn()
	providers := Providers{
		STT: fakestt.New(),
		LLM: fakellm.New(),
		TTS: faketts.New(),
		VAD: fakevad.New(1000),
	}

	// A reduced chain that loops caller audio straight back out.
	s, err := New(conn, providers, Options{
		Stages:             []string{"transport_in", "transport_out"},
		AllowInterruptions: true,
	})
	is.NoErr(err)

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background()) }()

	conn.sendStart(t, "MZ123")
	conn.sendMedia(t, 5)

	waitFor(t, "caller audio echoed", func() bool {
		return conn.countEvent(telephony.EventMedia) >= 5
	})

	s.Close()
	select {
	case err := <-runDone:
		is.NoErr(err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not shut down")
	}
}

func TestSessionRejectsBadStageList(t *testing.T) {
	is := is.New(t)

	providers := Providers{
		STT: fakestt.New(),
		LLM: fakellm.New(),
		TTS: faketts.New(),
		VAD: fakevad.New(1),
	}

	_, err := New(newFakeConn(), providers, Options{Stages: []string{"transport_in", "warp"}})
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "warp"))

	_, err = New(newFakeConn(), providers, Options{Stages: []string{"llm", "llm"}})
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "twice"))
}

func TestSessionBargeInDropsInterruptedResponse(t *testing.T) {
	is := is.New(t)

	tts := faketts.New()
	tts.DelayPerChunk = 20 * time.Millisecond

	interrupted := "one two three four five six seven eight nine ten " +
		"eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty"

	conn := newFakeConn()
	providers := Providers{
		STT: fakestt.New("stop talking"),
		LLM: fakellm.New(interrupted, "Okay."),
		TTS: tts,
		// Speech starts at chunk five (barge-in) and ends at chunk ten.
		VAD: fakevad.New(5, vad.EventSpeechStart, vad.EventSpeechEnd),
	}

	s, err := New(conn, providers, Options{AllowInterruptions: true})
	is.NoErr(err)

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background()) }()

	conn.sendStart(t, "MZ123")

	// Wait for the long greeting response to start playing.
	waitFor(t, "playback started", func() bool {
		return conn.countEvent(telephony.EventMedia) > 0
	})

	// The caller talks over it.
	conn.sendMedia(t, 10)

	waitFor(t, "barge-in answered", func() bool {
		return hasTurn(s.Conversation(), frame.RoleUser, "stop talking") &&
			hasTurn(s.Conversation(), frame.RoleAssistant, "Okay.")
	})

	// The interrupted response was never committed, and the far-end
	// playback buffer was cleared.
	is.Equal(hasTurn(s.Conversation(), frame.RoleAssistant, interrupted), false)
	is.True(conn.countEvent(telephony.EventClear) >= 1)

	s.Close()
	select {
	case err := <-runDone:
		is.NoErr(err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not shut down")
	}
}

func TestSessionDisconnectMidTurn(t *testing.T) {
	is := is.New(t)

	tts := faketts.New()
	tts.DelayPerChunk = 20 * time.Millisecond

	longResponse := strings.Repeat("word ", 40)
	llm := fakellm.New(longResponse)

	conn := newFakeConn()
	providers := Providers{
		STT: fakestt.New(),
		LLM: llm,
		TTS: tts,
		VAD: fakevad.New(1),
	}

	s, err := New(conn, providers, Options{AllowInterruptions: true})
	is.NoErr(err)

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background()) }()

	conn.sendStart(t, "MZ123")
	waitFor(t, "playback started", func() bool {
		return conn.countEvent(telephony.EventMedia) > 0
	})

	// The caller hangs up while the greeting is still playing.
	conn.Close()

	select {
	case err := <-runDone:
		is.NoErr(err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not shut down after disconnect")
	}
	waitFor(t, "session closed", func() bool { return s.State() == StateClosed })

	// The half-played response was never committed, and no provider call
	// was left in flight.
	is.Equal(hasTurn(s.Conversation(), frame.RoleAssistant, strings.TrimSpace(longResponse)), false)
	waitFor(t, "synthesis accounted for", func() bool {
		return tts.Abandoned()+tts.Completed() >= 1
	})
	is.True(llm.Abandoned()+llm.Completed() >= 1)
}
