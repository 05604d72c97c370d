package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"docvault/internal/authz"
	"docvault/pkg/domain"
	"docvault/pkg/store"
)

func auditFilterFromQuery(r *http.Request) store.AuditFilter {
	q := r.URL.Query()
	f := store.AuditFilter{
		Action: domain.Action(q.Get("action")),
		Kind:   q.Get("kind"),
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	return f
}

func (s *Server) handleUserActivity(w http.ResponseWriter, r *http.Request, actor requestActor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/audit/users/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if err := authz.CanViewUserActivity(actor.User, id); err != nil {
		writeAppError(w, err)
		return
	}
	entries, err := s.audit.UserActivity(id, auditFilterFromQuery(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}

func (s *Server) handleResourceActivity(w http.ResponseWriter, r *http.Request, actor requestActor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/audit/resources/")
	kind, id, ok := strings.Cut(rest, "/")
	if !ok || kind == "" || id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if err := authz.CanViewSystemActivity(actor.User); err != nil {
		writeAppError(w, err)
		return
	}
	entries, err := s.audit.ResourceActivity(kind, id, auditFilterFromQuery(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request, actor requestActor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if err := authz.CanViewSystemActivity(actor.User); err != nil {
		writeAppError(w, err)
		return
	}
	f := auditFilterFromQuery(r)
	stats, err := s.audit.SystemStats(f.From, f.To)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": stats, "count": len(stats)})
}
