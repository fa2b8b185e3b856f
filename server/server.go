// Package server exposes call quality monitoring over HTTP.
//
// Clients create a call by posting a WebRTC offer; the server answers with
// pion, monitors inbound audio and connection statistics, and streams
// snapshots to WebSocket subscribers on /ws.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/opd-ai/callquality/config"
	"github.com/opd-ai/callquality/factory"
	"github.com/opd-ai/callquality/feed"
	"github.com/opd-ai/callquality/metrics"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second

// Server errors
var (
	ErrCallNotFound = errors.New("call not found")
	ErrOfferMissing = errors.New("sdp offer required")
	ErrClosed       = errors.New("server closed")
)

// Server owns the call registry, the aggregator and the snapshot feed.
type Server struct {
	cfg        *config.Config
	engines    *factory.EngineFactory
	aggregator *metrics.Aggregator
	hub        *feed.Hub
	api        *webrtc.API
	iceServers []webrtc.ICEServer

	mu     sync.RWMutex
	calls  map[string]*call
	closed bool
}

// New creates a server from cfg. The engine factory is configured from cfg
// after its environment defaults are applied.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalid)
	}

	engines := factory.NewEngineFactory()
	if err := engines.UpdateConfig(cfg.EngineSettings()); err != nil {
		return nil, fmt.Errorf("configure engines: %w", err)
	}

	api, err := newWebRTCAPI()
	if err != nil {
		return nil, err
	}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.Server.ICEServers))
	for _, url := range cfg.Server.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	s := &Server{
		cfg:        cfg,
		engines:    engines,
		aggregator: metrics.NewAggregator(cfg.ReportInterval(), cfg.Metrics.HistorySize),
		hub:        feed.NewHub(cfg.Server.AllowedOrigins, cfg.Server.FeedBuffer),
		api:        api,
		iceServers: iceServers,
		calls:      make(map[string]*call),
	}
	s.aggregator.OnReport(s.hub.PublishReport)
	if err := s.aggregator.Start(); err != nil {
		return nil, fmt.Errorf("start aggregator: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "server.New",
		"simulation":  engines.IsUsingSimulation(),
		"ice_servers": len(iceServers),
	}).Info("Call quality server created")

	return s, nil
}

func newWebRTCAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

// Hub returns the snapshot feed.
func (s *Server) Hub() *feed.Hub { return s.hub }

// Aggregator returns the metrics aggregator.
func (s *Server) Aggregator() *metrics.Aggregator { return s.aggregator }

// Engines returns the engine factory.
func (s *Server) Engines() *factory.EngineFactory { return s.engines }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /calls", s.handleCreateCall)
	mux.HandleFunc("GET /calls", s.handleListCalls)
	mux.HandleFunc("GET /calls/{id}", s.handleGetCall)
	mux.HandleFunc("DELETE /calls/{id}", s.handleDeleteCall)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /ws", s.hub)
	return mux
}

// Run serves HTTP on the configured address until ctx is done, then shuts
// down gracefully and ends every call.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "Server.Run",
			"addr":     srv.Addr,
		}).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.Close()
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.WithFields(logrus.Fields{
		"function": "Server.Run",
	}).Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	// Subscribers are hijacked connections that Shutdown does not wait for
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close ends every call, disconnects feed subscribers and stops the
// aggregator. It is idempotent.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ids := make([]string, 0, len(s.calls))
	for id := range s.calls {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.EndCall(id)
	}
	s.hub.Close()
	s.aggregator.Stop()
}
