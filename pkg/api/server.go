// Package api serves the HTTP front end of the orchestration engine: REST
// endpoints for book lifecycle operations, a WebSocket stream of live engine
// events, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/config"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/events"
	"github.com/inkharmony/inkharmony/pkg/logger"
	"github.com/inkharmony/inkharmony/pkg/metrics"
	"github.com/inkharmony/inkharmony/pkg/storage"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

// maestroTimeout bounds how long a request waits for the orchestrator.
const maestroTimeout = 120 * time.Second

// Server is the HTTP API server for the InkHarmony engine.
type Server struct {
	config    *config.Config
	bus       *bus.MessageBus
	books     *workflow.Manager
	collector *metrics.Collector
	registry  *prometheus.Registry
	wsHub     *WSHub
	startTime time.Time
	server    *http.Server
}

// NewServer wires the API server. collector and registry may be nil when
// metrics are not wanted (tests).
func NewServer(cfg *config.Config, b *bus.MessageBus, books *workflow.Manager, collector *metrics.Collector, registry *prometheus.Registry) *Server {
	s := &Server{
		config:    cfg,
		bus:       b,
		books:     books,
		collector: collector,
		registry:  registry,
		startTime: time.Now(),
	}
	s.wsHub = NewWSHub(s)
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/books", s.handleCreateBook)
	mux.HandleFunc("GET /api/books", s.handleListBooks)
	mux.HandleFunc("GET /api/books/{id}", s.handleBookStatus)
	mux.HandleFunc("GET /api/books/{id}/content/{component}", s.handleBookContent)
	mux.HandleFunc("GET /api/books/{id}/cover", s.handleBookCover)
	mux.HandleFunc("POST /api/books/{id}/tasks", s.handleAssignTask)
	mux.HandleFunc("POST /api/books/{id}/progress", s.handleProgress)
	mux.HandleFunc("POST /api/books/{id}/export", s.handleExport)

	mux.HandleFunc("GET /api/ws", s.wsHub.HandleWebSocket)

	if s.registry != nil {
		metricsHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
		mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
			if s.collector != nil {
				s.collector.Refresh(s.bus, s.books)
			}
			metricsHandler.ServeHTTP(w, r)
		})
	}

	return mux
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "API server starting", map[string]interface{}{"addr": addr})

	go s.wsHub.Run(ctx)
	go RunEventBridge(s.bus.Subscribe("ws"), s.wsHub)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	return nil
}

// Publish pushes an engine event to all connected WebSocket clients.
func (s *Server) Publish(event events.Event) {
	s.wsHub.Broadcast(event)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCreateBook dispatches initialize_book to the orchestrator and waits
// for its result.
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string `json:"title"`
		Genre       string `json:"genre"`
		Description string `json:"description"`
		Style       string `json:"style"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	reply, err := s.askMaestro(r.Context(), domain.TaskInitializeBook, domain.Payload{
		"metadata": domain.Payload{
			"title":       body.Title,
			"genre":       body.Genre,
			"description": body.Description,
			"style":       body.Style,
		},
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, reply.Content)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books := storage.ListBooks(s.books.Root())
	if books == nil {
		books = []domain.Payload{}
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleBookStatus(w http.ResponseWriter, r *http.Request) {
	st := s.books.Status(r.PathValue("id"))
	if st == nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleBookContent(w http.ResponseWriter, r *http.Request) {
	wf := s.books.Get(r.PathValue("id"))
	if wf == nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	component := r.PathValue("component")
	version := r.URL.Query().Get("version")
	content, err := wf.Storage().LoadComponent(component, version)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("component %q not found", component))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"component": component,
		"version":   version,
		"content":   content,
		"versions":  wf.Storage().ListVersions(component),
	})
}

func (s *Server) handleBookCover(w http.ResponseWriter, r *http.Request) {
	wf := s.books.Get(r.PathValue("id"))
	if wf == nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	data, err := wf.Storage().LoadImage("cover", "png")
	if err != nil {
		writeError(w, http.StatusNotFound, "cover not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("id")
	var body struct {
		Agent       string         `json:"agent"`
		TaskDetails domain.Payload `json:"task_details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Agent == "" {
		writeError(w, http.StatusBadRequest, "agent is required")
		return
	}

	reply, err := s.askMaestro(r.Context(), domain.TaskAssignTask, domain.Payload{
		"book_id":      bookID,
		"agent":        body.Agent,
		"task_details": body.TaskDetails,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, reply.Content)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("id")
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := s.askMaestro(r.Context(), domain.TaskProgressWorkflow, domain.Payload{
		"book_id": bookID,
		"action":  body.Action,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply.Content)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	wf := s.books.Get(r.PathValue("id"))
	if wf == nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	var body struct {
		Dir string `json:"dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Dir == "" {
		writeError(w, http.StatusBadRequest, "dir is required")
		return
	}

	files, err := wf.Storage().Export(body.Dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"book_id": wf.BookID(),
		"dir":     body.Dir,
		"files":   files,
	})
}

// askMaestro sends a task to the orchestrator and waits for its reply.
// Error replies surface as errors.
func (s *Server) askMaestro(ctx context.Context, taskType domain.TaskType, content domain.Payload) (*bus.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, maestroTimeout)
	defer cancel()

	taskID, err := s.bus.SendTask(domain.RoleSystem, domain.RoleMaestro, taskType, content, "")
	if err != nil {
		return nil, err
	}

	reply, err := s.bus.Await(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator did not answer: %w", err)
	}
	if reply.Kind == bus.KindError {
		return nil, fmt.Errorf("%s", reply.Content.GetString("error"))
	}
	return reply, nil
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
