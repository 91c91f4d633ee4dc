package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"

	"github.com/chriscow/callpipe-go/pkg/config"
	"github.com/chriscow/callpipe-go/pkg/telephony"
	_ "github.com/chriscow/callpipe-go/pkg/plugin/fake"
)

func fakeConfig() *config.Config {
	cfg := config.Default()
	cfg.Providers.STT.Name = "fake"
	cfg.Providers.LLM.Name = "fake"
	cfg.Providers.TTS.Name = "fake"
	cfg.Providers.VAD.Name = "fake"
	cfg.Agent.SystemPrompt = "You are a test assistant."
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestBuildProvidersFromRegistry(t *testing.T) {
	is := is.New(t)

	p, err := buildProviders(fakeConfig())
	is.NoErr(err)
	is.True(p.STT != nil)
	is.True(p.LLM != nil)
	is.True(p.TTS != nil)
	is.True(p.VAD != nil)
}

func TestBuildProvidersDefaultsVADToEnergy(t *testing.T) {
	is := is.New(t)

	cfg := fakeConfig()
	cfg.Providers.VAD.Name = ""
	p, err := buildProviders(cfg)
	is.NoErr(err)
	is.True(p.VAD != nil)
}

func TestBuildProvidersRejectsUnknownName(t *testing.T) {
	is := is.New(t)

	cfg := fakeConfig()
	cfg.Providers.LLM.Name = "no-such-provider"
	_, err := buildProviders(cfg)
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "llm"))
}

func TestSessionOptionsCarryPipelineConfig(t *testing.T) {
	is := is.New(t)

	cfg := fakeConfig()
	cfg.Audio.InSampleRate = 16000
	cfg.Audio.OutSampleRate = 24000
	cfg.Pipeline.Stages = []string{"transport_in", "transport_out"}
	cfg.Pipeline.DedupTranscripts = true

	opts := New(cfg, quietLogger()).sessionOptions()
	is.Equal(opts.InSampleRate, 16000)
	is.Equal(opts.OutSampleRate, 24000)
	is.Equal(opts.Stages, []string{"transport_in", "transport_out"})
	is.Equal(opts.DedupTranscripts, true)
}

func TestHealthz(t *testing.T) {
	is := is.New(t)

	srv := New(fakeConfig(), quietLogger())
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusOK)
}

func TestMetricsEndpointGatedByConfig(t *testing.T) {
	is := is.New(t)

	cfg := fakeConfig()
	cfg.Server.EnableMetrics = false
	ts := httptest.NewServer(New(cfg, quietLogger()).routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusNotFound)

	cfg2 := fakeConfig()
	cfg2.Server.EnableMetrics = true
	ts2 := httptest.NewServer(New(cfg2, quietLogger()).routes())
	defer ts2.Close()

	resp2, err := http.Get(ts2.URL + "/metrics")
	is.NoErr(err)
	resp2.Body.Close()
	is.Equal(resp2.StatusCode, http.StatusOK)
}

// TestMediaEndpointSpeaksGreeting dials the media endpoint like a telephony
// provider would, announces a stream, and expects synthesized audio back:
// connecting triggers the greeting turn through the fake providers.
func TestMediaEndpointSpeaksGreeting(t *testing.T) {
	is := is.New(t)

	srv := New(fakeConfig(), quietLogger())
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/media"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	is.NoErr(err)
	defer ws.Close()

	start, err := json.Marshal(telephony.Message{
		Event:     telephony.EventStart,
		StreamSID: "MZtest",
		Start: &telephony.StartPayload{
			StreamSID:   "MZtest",
			MediaFormat: telephony.MediaFormat{Encoding: "audio/x-mulaw", SampleRate: 8000, Channels: 1},
		},
	})
	is.NoErr(err)
	is.NoErr(ws.WriteMessage(websocket.TextMessage, start))

	deadline := time.Now().Add(5 * time.Second)
	gotMedia := false
	for !gotMedia && time.Now().Before(deadline) {
		ws.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var m telephony.Message
		if json.Unmarshal(data, &m) == nil && m.Event == telephony.EventMedia {
			gotMedia = true
		}
	}
	is.True(gotMedia)

	stop, err := json.Marshal(telephony.Message{Event: telephony.EventStop, StreamSID: "MZtest"})
	is.NoErr(err)
	_ = ws.WriteMessage(websocket.TextMessage, stop)
}
