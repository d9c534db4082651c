package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

const kindBadRequest core.ErrorKind = "bad_request"

type sourceView struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Location    string            `json:"location,omitempty"`
	Credentials string            `json:"credentials,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
	Connected   bool              `json:"connected"`
}

type queryRequest struct {
	SQL    string `json:"sql"`
	Source string `json:"source"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"sources":        len(s.backend.Sources()),
		"connected":      len(s.backend.Connected()),
		"cached_results": s.backend.CachedResults(),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	connected := make(map[string]bool)
	for _, name := range s.backend.Connected() {
		connected[name] = true
	}
	descs := s.backend.Sources()
	out := make([]sourceView, 0, len(descs))
	for _, d := range descs {
		r := d.Redacted()
		out = append(out, sourceView{
			Name:        r.Name,
			Type:        r.Kind.String(),
			Location:    r.Location,
			Credentials: r.Credentials,
			Options:     r.Options,
			Connected:   connected[r.Name],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.backend.Tables(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleDF(w http.ResponseWriter, r *http.Request) {
	limit := -1
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeBadRequest(w, r, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	res, err := s.backend.GetDF(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("table"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit >= 0 {
		res = res.Head(limit)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	res, err := s.backend.Query(r.Context(), req.SQL, req.Source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.backend.Invalidate(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"invalidated": name})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		loggerFrom(r.Context(), s.logger).Error("request failed", "error", err)
	}
	writeJSON(w, status, core.Report(err))
}

func (s *Server) writeBadRequest(w http.ResponseWriter, _ *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, core.ErrorReport{Kind: kindBadRequest, Message: msg})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch core.KindOf(err) {
	case core.KindUnknownSource:
		return http.StatusNotFound
	case core.KindAmbiguousTable, core.KindInvalidSource, core.KindDuplicateSource:
		return http.StatusBadRequest
	case core.KindUnsupportedType, core.KindQueryExecution:
		if errors.Is(err, core.ErrTableNotFound) {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case core.KindNotInitialized:
		return http.StatusServiceUnavailable
	case core.KindConnection:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
