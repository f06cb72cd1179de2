// Package server exposes a review session over JSON so a browser front end
// can drive it. Every request holds the session lock for its whole round trip.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"labeler/internal/documents"
	"labeler/internal/domain"
	"labeler/internal/review"
	"labeler/internal/suggest"
)

// Suggester is optional; a nil Suggester disables GET /session/suggestion.
type Suggester interface {
	Suggest(ctx context.Context, callID, content string) (suggest.Suggestion, error)
}

type Server struct {
	mu        sync.Mutex
	session   *review.Session
	clusters  []string
	suggester Suggester
}

func New(session *review.Session, clusters []string, suggester Suggester) *Server {
	return &Server{session: session, clusters: clusters, suggester: suggester}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/clusters", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"clusters": s.clusters, "labels": domain.LabelColumns})
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.display)
		r.Post("/cluster", s.selectCluster)
		r.Post("/next", s.move(func(sess *review.Session) { sess.Next() }))
		r.Post("/prev", s.move(func(sess *review.Session) { sess.Prev() }))
		r.Post("/seek", s.seek)
		r.Post("/labels/{label}", s.toggle)
		r.Get("/suggestion", s.suggestion)
	})
	return r
}

func (s *Server) display(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.render(w, r)
}

// render runs Display and writes the view. Callers hold s.mu.
func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	view, err := s.session.Display(r.Context())
	if err != nil {
		writeViewError(w, view, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) selectCluster(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cluster string `json:"cluster"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.SelectCluster(req.Cluster); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.render(w, r)
}

func (s *Server) move(step func(*review.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		step(s.session)
		s.render(w, r)
	}
}

func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Seek(req.Index)
	s.render(w, r)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")

	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := s.session.Toggle(r.Context(), label)
	if err != nil {
		writeViewError(w, view, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) suggestion(w http.ResponseWriter, r *http.Request) {
	if s.suggester == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "suggestions are not configured"})
		return
	}

	s.mu.Lock()
	view, err := s.session.Current()
	s.mu.Unlock()
	if err != nil {
		writeViewError(w, view, err)
		return
	}

	sug, err := s.suggester.Suggest(r.Context(), view.CallID, view.Content)
	if err != nil {
		log.Printf("server suggestion call=%s error=%v", view.CallID, err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, documents.ErrUnknownCluster), errors.Is(err, domain.ErrUnknownLabel):
		return http.StatusBadRequest
	case errors.Is(err, documents.ErrClusterNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrNoDocuments), errors.Is(err, review.ErrNoCluster):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeViewError(w http.ResponseWriter, view review.View, err error) {
	writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "view": view})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server write response error=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
