// Package server exposes the Voxwire HTTP surface: the /ws conversation
// endpoint plus health, readiness, and metrics routes.
//
// Each accepted websocket becomes one [session.Session]. The server owns the
// session registry and its idle reaper; the sessions own everything below
// them (providers, turn state, outbound scheduling).
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/health"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/session"
	"github.com/voxwire/voxwire/pkg/types"
)

// shutdownGrace bounds how long Run waits for in-flight HTTP requests and
// draining sessions after ctx is cancelled.
const shutdownGrace = 10 * time.Second

// Server serves the websocket conversation endpoint and the operational
// routes. Create with New, drive with Run.
type Server struct {
	listenAddr string
	tlsCfg     *config.TLSConfig
	staticDir  string

	providers session.Providers
	registry  *session.Registry
	metrics   *observe.Metrics
	log       *slog.Logger

	// mu guards the hot-reloadable session template.
	mu    sync.RWMutex
	sess  config.SessionConfig
	voice config.VoiceConfig
}

// New creates a Server from the loaded config. The registry and metrics may
// be shared with other subsystems; nil values get defaults.
func New(cfg *config.Config, providers session.Providers, reg *session.Registry, m *observe.Metrics, log *slog.Logger) *Server {
	if reg == nil {
		reg = session.NewRegistry(cfg.Session.IdleTimeout, log)
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	return &Server{
		listenAddr: addr,
		tlsCfg:     cfg.Server.TLS,
		staticDir:  cfg.Server.StaticDir,
		providers:  providers,
		registry:   reg,
		metrics:    m,
		log:        log,
		sess:       cfg.Session,
		voice:      cfg.Voice,
	}
}

// Registry returns the session registry, for introspection and tests.
func (s *Server) Registry() *session.Registry { return s.registry }

// ApplySessionConfig swaps the session template used for new connections.
// Running sessions keep the settings they started with.
func (s *Server) ApplySessionConfig(sc config.SessionConfig, vc config.VoiceConfig) {
	s.mu.Lock()
	s.sess = sc
	s.voice = vc
	s.mu.Unlock()
	s.log.Info("session configuration updated for new connections")
}

// Handler builds the HTTP routing table wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	h := health.New(health.Checker{
		Name: "sessions",
		Check: func(context.Context) error {
			// The registry is in-process; readiness only confirms routing.
			_ = s.registry.Len()
			return nil
		},
	})
	h.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWS)

	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}

	return observe.Middleware(s.metrics)(mux)
}

// Run serves HTTP until ctx is cancelled, then drains: the listener stops
// accepting, every live session is asked to shut down, and in-flight requests
// get shutdownGrace to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.registry.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		s.log.Info("listening", "addr", s.listenAddr, "tls", s.tlsCfg != nil)
		var err error
		if s.tlsCfg != nil {
			err = srv.ListenAndServeTLS(s.tlsCfg.CertFile, s.tlsCfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("draining", "sessions", s.registry.Len())
		s.registry.ShutdownAll()

		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleWS upgrades the request and runs one session for the life of the
// connection. The session deregisters itself when it returns.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	ch := newWSChannel(conn)
	defer func() { _ = ch.Close() }()

	sess, err := session.New(s.sessionConfig(), s.providers, ch)
	if err != nil {
		s.log.Error("session setup failed", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	s.registry.Add(sess)
	defer s.registry.Remove(sess.ID())

	log := s.log.With("session_id", sess.ID())
	log.Info("session connected", "remote", r.RemoteAddr)

	if err := sess.Run(r.Context()); err != nil {
		log.Warn("session ended", "err", err)
		return
	}
	log.Info("session closed")
}

// sessionConfig snapshots the current template into a per-session config.
func (s *Server) sessionConfig() session.Config {
	s.mu.RLock()
	sc, vc := s.sess, s.voice
	s.mu.RUnlock()

	return session.Config{
		ID:           s.registry.NewID(),
		Language:     sc.Language,
		SystemPrompt: sc.SystemPrompt,
		Voice: types.VoiceProfile{
			ID:          vc.VoiceID,
			Provider:    vc.Provider,
			SampleRate:  vc.SampleRate,
			SpeedFactor: vc.SpeedFactor,
		},
		InboundSampleRate:    sc.InboundSampleRate,
		HistoryMaxMessages:   sc.HistoryMaxMessages,
		LLMFirstTokenTimeout: sc.LLMFirstTokenTimeout,
		TTSFirstChunkTimeout: sc.TTSFirstChunkTimeout,
		TurnTimeout:          sc.TurnTimeout,
		IdleTimeout:          sc.IdleTimeout,
		OutboundQueueDepth:   sc.OutboundQueueDepth,
		PCMEnqueueWait:       sc.PCMEnqueueWait,
		SegmentQueueDepth:    sc.SegmentQueueDepth,
		BargeInThreshold:     sc.BargeInThreshold,
		BargeInDwell:         sc.BargeInDwell,
		Metrics:              s.metrics,
		Logger:               s.log,
	}
}
