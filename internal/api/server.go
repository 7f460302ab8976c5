// Package api exposes the offline indicator, the queue and connectivity
// signals over HTTP and a websocket status stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"famhub/internal/config"
	"famhub/internal/models"
	"famhub/internal/service"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StatusSource is the indicator as seen by the API.
type StatusSource interface {
	Snapshot() models.IndicatorSnapshot
	Subscribe(fn func(models.IndicatorSnapshot)) int
	Unsubscribe(id int)
	Retry(ctx context.Context) (models.SyncResult, error)
}

type ActionSubmitter interface {
	Submit(ctx context.Context, actionType models.ActionType, payload json.RawMessage) (service.SubmitResult, error)
	Pending(ctx context.Context) ([]models.QueuedAction, error)
	Discard(ctx context.Context, id string) error
}

type NetworkSignal interface {
	Online() bool
	SetOnline(online bool) bool
}

// HTTPServer serves the REST endpoints and the status stream.
type HTTPServer struct {
	cfg     config.APIConfig
	status  StatusSource
	actions ActionSubmitter
	network NetworkSignal
	auth    *HTTPAuth
	router  *mux.Router
	server  *http.Server
	logger  *zerolog.Logger

	upgrader     websocket.Upgrader
	pongWait     time.Duration
	pingPeriod   time.Duration
	streamCtx    context.Context
	cancelStream context.CancelFunc
}

func NewHTTPServer(cfg config.APIConfig, status StatusSource, actions ActionSubmitter, network NetworkSignal, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &HTTPServer{
		cfg:          cfg,
		status:       status,
		actions:      actions,
		network:      network,
		auth:         NewHTTPAuth(cfg),
		router:       mux.NewRouter(),
		logger:       logger,
		upgrader:     newUpgrader(cfg.AllowedOrigins),
		pongWait:     streamPongWait,
		pingPeriod:   streamPongWait * 9 / 10,
		streamCtx:    streamCtx,
		cancelStream: cancel,
	}
	s.routes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() {
	s.router.Use(requestIDMiddleware, loggingMiddleware(s.logger))

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Handle("/status", s.auth.Require(permReadStatus, s.handleStatus)).Methods(http.MethodGet)
	v1.Handle("/status/stream", s.auth.Require(permReadStatus, s.handleStream)).Methods(http.MethodGet)
	v1.Handle("/queue", s.auth.Require(permReadQueue, s.handleListQueue)).Methods(http.MethodGet)
	v1.Handle("/queue/{id}", s.auth.Require(permWriteQueue, s.handleRemoveQueued)).Methods(http.MethodDelete)
	v1.Handle("/actions", s.auth.Require(permWriteActions, s.handleSubmit)).Methods(http.MethodPost)
	v1.Handle("/sync", s.auth.Require(permWriteSync, s.handleSync)).Methods(http.MethodPost)
	v1.Handle("/network", s.auth.Require(permWriteNetwork, s.handleNetwork)).Methods(http.MethodPut)

	// Subrouters do not inherit these from the root router.
	for _, r := range []*mux.Router{s.router, v1} {
		r.NotFoundHandler = http.HandlerFunc(handleNotFound)
		r.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)
	}
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// Handler returns the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes open status streams and stops accepting requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.cancelStream()
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
