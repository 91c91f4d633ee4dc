// Package server exposes the telephony media-stream endpoint. Each
// websocket connection becomes one pipeline session built from the
// configured providers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chriscow/callpipe-go/pkg/config"
	"github.com/chriscow/callpipe-go/pkg/observe"
	"github.com/chriscow/callpipe-go/pkg/pipeline"
	"github.com/chriscow/callpipe-go/pkg/session"
	"github.com/chriscow/callpipe-go/pkg/telephony"
)

const shutdownTimeout = 10 * time.Second

// Server accepts media-stream connections and runs a session per call.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observe.Metrics
	upgrader websocket.Upgrader
	sessions sync.WaitGroup

	mu     sync.Mutex
	active map[*session.Session]struct{}
}

// New creates a server from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: observe.DefaultMetrics(),
		active:  make(map[*session.Session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Telephony providers dial from their own infrastructure, not
			// from a browser origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully and waits
// for in-flight sessions to drain.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", s.cfg.Server.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("shutdown", slog.String("error", err.Error()))
	}

	// Shutdown does not touch hijacked websocket connections, so in-flight
	// calls are ended explicitly.
	s.mu.Lock()
	for sess := range s.active {
		sess.Close()
	}
	s.mu.Unlock()
	s.sessions.Wait()
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/media", s.handleMedia)
	if s.cfg.Server.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleMedia upgrades to a websocket and runs the call to completion on
// the handler goroutine.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	providers, err := buildProviders(s.cfg)
	if err != nil {
		s.logger.Error("provider setup failed", slog.String("error", err.Error()))
		http.Error(w, "provider setup failed", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	sess, err := session.New(telephony.NewConn(ws), providers, s.sessionOptions())
	if err != nil {
		s.logger.Error("session setup failed", slog.String("error", err.Error()))
		ws.Close()
		return
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	s.mu.Lock()
	s.active[sess] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, sess)
		s.mu.Unlock()
	}()

	ctx := r.Context()
	s.metrics.SessionStarted(ctx)
	defer s.metrics.SessionEnded(context.WithoutCancel(ctx))

	logger := s.logger.With(slog.String("session_id", sess.ID))
	logger.Info("call started", slog.String("remote", r.RemoteAddr))
	if err := sess.Run(ctx); err != nil {
		logger.Error("call failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("call ended")
}

func (s *Server) sessionOptions() session.Options {
	return session.Options{
		SystemPrompt:       s.cfg.Agent.SystemPrompt,
		Greeting:           s.cfg.Agent.Greeting,
		Voice:              s.cfg.Providers.TTS.Voice,
		Language:           s.cfg.Providers.STT.Language,
		Stages:             s.cfg.Pipeline.Stages,
		InSampleRate:       s.cfg.Audio.InSampleRate,
		OutSampleRate:      s.cfg.Audio.OutSampleRate,
		AllowInterruptions: s.cfg.Pipeline.AllowInterruptions,
		DedupTranscripts:   s.cfg.Pipeline.DedupTranscripts,
		MaxTokens:          s.cfg.Agent.MaxTokens,
		Temperature:        s.cfg.Agent.Temperature,
		BufferDepth:        s.cfg.Pipeline.BufferDepth,
		Logger:             s.logger,
		Observers:          []pipeline.Observer{observe.NewMetricsObserver(s.metrics)},
	}
}
