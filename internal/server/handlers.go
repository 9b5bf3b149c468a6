package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/indexer"
	"github.com/thesandybridge/kb-index/internal/query"
	"github.com/thesandybridge/kb-index/internal/remote"
	"github.com/thesandybridge/kb-index/internal/state"
)

type queryRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k,omitempty"`
	Format  string `json:"format,omitempty"`
	Session string `json:"session,omitempty"`
}

type indexRequest struct {
	Path string `json:"path"`
}

type indexResponse struct {
	Path   string        `json:"path"`
	Stats  indexer.Stats `json:"stats"`
	Errors []string      `json:"errors,omitempty"`
}

type sessionSummary struct {
	ID          string `json:"id"`
	Turns       int    `json:"turns"`
	CreatedAt   uint64 `json:"created_at"`
	LastUpdated uint64 `json:"last_updated"`
	Active      bool   `json:"active"`
}

type switchRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	format, err := query.ParseFormat(req.Format)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.String("format", string(format)))
	resp, err := s.engine.Run(r.Context(), query.Request{
		Query:   req.Query,
		TopK:    req.TopK,
		Format:  format,
		Session: req.Session,
	})
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "path not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Debug("index request", zap.String("path", abs))
	stats, err := s.indexer.IndexPath(r.Context(), abs)
	out := indexResponse{Path: abs, Stats: stats}
	if err != nil {
		s.logger.Warn("indexing finished with errors", zap.String("path", abs), zap.Error(err))
		if stats.FilesSeen == 0 {
			s.respondError(w, statusFor(err), err.Error())
			return
		}
		out.Errors = splitJoined(err)
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.snapshots.LoadSessions()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	active := sessions.ActiveID()
	list := sessions.ListSessions()
	out := make([]sessionSummary, 0, len(list))
	for _, ss := range list {
		out = append(out, sessionSummary{
			ID:          ss.ID,
			Turns:       ss.Len(),
			CreatedAt:   ss.CreatedAt,
			LastUpdated: ss.LastUpdated,
			Active:      ss.ID == active,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"active": active, "sessions": out})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.snapshots.LoadSessions()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id := sessions.CreateSession()
	if err := s.snapshots.SaveSessions(sessions); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Debug("session created", zap.String("id", id))
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "created"})
}

func (s *Server) handleSwitchSession(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		s.respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	sessions, err := s.snapshots.LoadSessions()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := sessions.SetActiveSession(req.ID); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if err := s.snapshots.SaveSessions(sessions); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": req.ID, "status": "active"})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.snapshots.LoadSessions()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id, err := sessions.ClearActive()
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if err := s.snapshots.SaveSessions(sessions); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cleared"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.snapshots.Status(s.extra...)
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps an error to the HTTP status reported to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, state.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, query.ErrEmptyQuery), errors.Is(err, query.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrRemote):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// splitJoined flattens an errors.Join result into its messages.
func splitJoined(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
