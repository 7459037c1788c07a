package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mcolletti/prepcall/internal/config"
	"github.com/mcolletti/prepcall/internal/observability"
	"github.com/mcolletti/prepcall/internal/relay"
	"github.com/mcolletti/prepcall/internal/store"
)

type Server struct {
	cfg   config.Config
	store store.Store
	relay *relay.Server
}

func New(cfg config.Config, st store.Store, relayServer *relay.Server) *Server {
	return &Server{cfg: cfg, store: st, relay: relayServer}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/ws", s.relay.HandleWS)

	r.Post("/v1/interviews", s.handleCreateInterview)
	r.Get("/v1/interviews", s.handleListInterviews)
	r.Get("/v1/interviews/{id}", s.handleGetInterview)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type createInterviewRequest struct {
	UserID    string   `json:"user_id"`
	Role      string   `json:"role"`
	Type      string   `json:"type"`
	Level     string   `json:"level"`
	Techstack []string `json:"techstack"`
	Questions []string `json:"questions"`
}

func (s *Server) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if len(req.Questions) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "at least one question is required")
		return
	}

	created, err := s.store.Create(r.Context(), store.Interview{
		UserID:    req.UserID,
		Role:      req.Role,
		Type:      req.Type,
		Level:     req.Level,
		Techstack: req.Techstack,
		Questions: req.Questions,
		Finalized: true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	iv, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "interview_not_found", "no interview with id "+id)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, iv)
}

func (s *Server) handleListInterviews(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter user_id is required")
		return
	}
	items, err := s.store.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if items == nil {
		items = []store.Interview{}
	}
	respondJSON(w, http.StatusOK, items)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
