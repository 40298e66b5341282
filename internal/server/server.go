package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude/hevysync/internal/cursor"
	"github.com/claude/hevysync/internal/upload"
)

// Server exposes sync status and a manual trigger over HTTP.
type Server struct {
	state     *upload.StateDB
	cursor    *cursor.Store
	scheduler *Scheduler
	log       *slog.Logger
	apiKey    string
	router    chi.Router
}

// New creates a new Server with all routes configured. An empty apiKey leaves
// the trigger endpoint unauthenticated.
func New(state *upload.StateDB, cur *cursor.Store, scheduler *Scheduler, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		state:     state,
		cursor:    cur,
		scheduler: scheduler,
		log:       log,
		apiKey:    apiKey,
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Mount serves h under pattern, behind the same API key as the trigger
// endpoint.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Group(func(r chi.Router) {
		if s.apiKey != "" {
			r.Use(APIKeyAuth(s.apiKey))
		}
		r.Mount(pattern, h)
	})
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/api/v1/status", s.handleStatus)

	s.router.Route("/api/v1/sync", func(r chi.Router) {
		if s.apiKey != "" {
			r.Use(APIKeyAuth(s.apiKey))
		}
		r.Post("/", s.handleTrigger)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Watermark       *time.Time         `json:"watermark"`
	WatermarkStored bool               `json:"watermark_stored"`
	LastPass        *upload.PassRecord `json:"last_pass"`
	Pending         []upload.Delivery  `json:"pending"`
	Abandoned       []upload.Delivery  `json:"abandoned"`
	Scheduler       *SchedulerStatus   `json:"scheduler,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resp statusResponse

	wm, ok, err := s.cursor.Peek()
	if err != nil {
		s.log.Warn("reading watermark", "error", err)
	} else if ok {
		resp.Watermark = &wm
		resp.WatermarkStored = true
	}

	if resp.LastPass, err = s.state.LastPass(ctx); err != nil {
		s.log.Error("querying last pass", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if resp.Pending, err = s.state.Pending(ctx); err != nil {
		s.log.Error("querying pending deliveries", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if resp.Abandoned, err = s.state.Abandoned(ctx); err != nil {
		s.log.Error("querying abandoned deliveries", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if resp.Pending == nil {
		resp.Pending = []upload.Delivery{}
	}
	if resp.Abandoned == nil {
		resp.Abandoned = []upload.Delivery{}
	}
	if s.scheduler != nil {
		st := s.scheduler.Status()
		resp.Scheduler = &st
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "scheduler not running"})
		return
	}
	queued := s.scheduler.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
