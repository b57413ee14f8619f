// Package server hosts the HTTP surface: subscription discovery for the
// sidecar, the consumer event routes, the reminder callback route, the
// audit query API, the sync WebSocket endpoint, and health probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/pbaity/herald/internal/consumer"
	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/internal/outbox"
	"github.com/pbaity/herald/pkg/models"
)

// Enqueuer accepts intents for background dispatch.
type Enqueuer interface {
	Enqueue(intent outbox.Intent) error
}

// Options carries the optional surfaces mounted on the server. Nil
// handlers leave their routes unregistered.
type Options struct {
	Outbox      Enqueuer
	Endpoints   []consumer.Endpoint
	AuditQuery  http.Handler
	SyncClients http.Handler
}

// Server is the HTTP server for the application.
type Server struct {
	cfg           *models.Config
	mux           *http.ServeMux
	server        *http.Server
	outbox        Enqueuer
	subscriptions []consumer.Subscription
}

// NewHTTPServer creates the server and registers all routes.
func NewHTTPServer(cfg *models.Config, opts Options) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cfg:    cfg,
		mux:    mux,
		outbox: opts.Outbox,
		server: &http.Server{
			Addr:         cfg.Application.ListenAddr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
	}

	for _, ep := range opts.Endpoints {
		s.subscriptions = append(s.subscriptions, ep.Subscription)
		mux.Handle(ep.Route, ep.Handler)
	}

	mux.HandleFunc("/dapr/subscribe", s.handleSubscribe)
	mux.HandleFunc("/dapr/config", s.handleDaprConfig)
	mux.HandleFunc(cfg.Reminder.CallbackRoute, s.handleReminderCallback)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleHealth)

	if opts.AuditQuery != nil {
		mux.Handle("/api/v1/audit", opts.AuditQuery)
	}
	if opts.SyncClients != nil {
		mux.Handle("/ws", opts.SyncClients)
	}

	return s
}

// handleSubscribe tells the sidecar which topics to deliver and where.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	subs := s.subscriptions
	if subs == nil {
		subs = []consumer.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// handleDaprConfig answers the sidecar's config probe; this app hosts no
// actors.
func (s *Server) handleDaprConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entities": []string{}})
}

// handleReminderCallback receives fired reminder jobs from the
// scheduler and turns each into a background reminder.triggered publish.
// The callback must answer quickly; the publish itself happens off this
// path through the outbox.
func (s *Server) handleReminderCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// The scheduler may post the job data bare or wrapped in a named
	// job envelope; accept both.
	var cb models.ReminderCallback
	var job models.JobCallback
	if err := json.Unmarshal(body, &job); err == nil && job.Data.TaskID != "" {
		cb = job.Data
	} else if err := json.Unmarshal(body, &cb); err != nil {
		logger.L().Error("Undecodable reminder callback", "error", err)
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if cb.TaskID == "" || cb.UserID == "" {
		http.Error(w, "task_id and user_id are required", http.StatusBadRequest)
		return
	}

	payload, err := json.Marshal(models.ReminderPayload{
		TaskID:    cb.TaskID,
		TaskTitle: cb.TaskTitle,
		DueAt:     cb.DueAt,
		RemindAt:  cb.RemindAt,
	})
	if err != nil {
		logger.L().Error("Failed to marshal reminder payload", "task_id", cb.TaskID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	intent := outbox.Intent{
		Kind:      outbox.KindPublish,
		Topic:     models.TopicReminders,
		EventType: models.EventReminderTriggered,
		UserID:    cb.UserID,
		Payload:   payload,
	}
	if err := s.outbox.Enqueue(intent); err != nil {
		// Losing the intent loses the reminder; a 5xx gives the
		// scheduler a chance to redeliver the callback.
		logger.L().Error("Failed to enqueue reminder publish", "task_id", cb.TaskID, "error", err)
		http.Error(w, "failed to accept reminder", http.StatusInternalServerError)
		return
	}

	logger.L().Info("Reminder callback accepted", "task_id", cb.TaskID, "user_id", cb.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "task_id": cb.TaskID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Error("Failed to encode response", "error", err)
	}
}

// Start runs the server in a background goroutine.
func (s *Server) Start() {
	logger.L().Info("Starting HTTP server", "addr", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("HTTP server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// up to the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	logger.L().Info("Stopping HTTP server...")
	err := s.server.Shutdown(ctx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.L().Info("HTTP server stopped")
	return nil
}
