// Package server exposes the HTTP API: authentication, categories,
// documents, versions, and audit queries. Handlers stay thin; decisions live
// in the internal services and cross-cutting concerns in the middleware.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"docvault/internal/audit"
	"docvault/internal/category"
	"docvault/internal/document"
	"docvault/internal/identity"
	"docvault/internal/usertoken"
	"docvault/internal/util"
	"docvault/pkg/apperr"
	"docvault/pkg/domain"
	"docvault/pkg/store"
)

const maxJSONBody = 1 << 20

// Limiter is the rate-limit check used before handler logic. A nil Limiter
// disables the corresponding limit.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	Store      store.Store
	Identity   *identity.Service
	Categories *category.Service
	Documents  *document.Service
	Audit      *audit.Recorder
	Tokens     *usertoken.Codec

	// Sensitive guards login, registration, and password changes; General
	// guards everything else.
	Sensitive Limiter
	General   Limiter

	TrustedProxies *util.TrustedProxies
}

// Server exposes the HTTP endpoints.
type Server struct {
	store      store.Store
	identity   *identity.Service
	categories *category.Service
	documents  *document.Service
	audit      *audit.Recorder
	tokens     *usertoken.Codec
	sensitive  Limiter
	general    Limiter
	proxies    *util.TrustedProxies
	mux        *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		store:      cfg.Store,
		identity:   cfg.Identity,
		categories: cfg.Categories,
		documents:  cfg.Documents,
		audit:      cfg.Audit,
		tokens:     cfg.Tokens,
		sensitive:  cfg.Sensitive,
		general:    cfg.General,
		proxies:    cfg.TrustedProxies,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	h = util.WithCORS(h)
	h = util.WithSecurityHeaders(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/auth/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/auth/me", s.authenticated(s.handleMe))
	s.mux.Handle("/auth/me/password", s.authenticated(s.handleChangePassword))

	// admin user management
	s.mux.Handle("/admin/users", s.authenticated(s.handleUsers))
	s.mux.Handle("/admin/users/", s.authenticated(s.handleUserByID))

	// categories
	s.mux.Handle("/categories", s.authenticated(s.handleCategories))
	s.mux.Handle("/categories/tree", s.authenticated(s.handleCategoryTree))
	s.mux.Handle("/categories/", s.authenticated(s.handleCategoryByID))

	// documents
	s.mux.Handle("/documents", s.authenticated(s.handleDocuments))
	s.mux.Handle("/documents/", s.authenticated(s.handleDocumentByID))

	// audit
	s.mux.Handle("/audit/users/", s.authenticated(s.handleUserActivity))
	s.mux.Handle("/audit/resources/", s.authenticated(s.handleResourceActivity))
	s.mux.Handle("/audit/stats", s.authenticated(s.handleAuditStats))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestActor is the resolved caller of an authenticated request.
type requestActor struct {
	domain.User
	SessionID string
}

type authHandler func(http.ResponseWriter, *http.Request, requestActor)

// authenticated verifies the bearer token, re-fetches the live identity so a
// deactivated account is rejected even with a valid token, and applies the
// general rate limit keyed by user.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := usertoken.BearerToken(r)
		if !ok {
			writeAppError(w, apperr.Authentication("missing bearer token"))
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			writeAppError(w, apperr.Authentication("invalid token"))
			return
		}
		user, found, err := s.store.GetUserByID(claims.UserID)
		if err != nil {
			writeAppError(w, apperr.Infrastructure(err, "user lookup failed"))
			return
		}
		if !found || !user.Active {
			writeAppError(w, apperr.Authentication("account is not active"))
			return
		}
		if s.general != nil && !s.general.Allow("general:"+user.ID) {
			writeAppError(w, apperr.Throttled("too many requests"))
			return
		}
		next(w, r, requestActor{User: user, SessionID: claims.SessionID})
	})
}

// allowSensitive applies the tighter limit for credential operations.
func (s *Server) allowSensitive(key string) bool {
	return s.sensitive == nil || s.sensitive.Allow("sensitive:"+key)
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.proxies)
}

// record writes one audit entry for a gated operation.
func (s *Server) record(r *http.Request, actor requestActor, action domain.Action, kind, resourceID string, start time.Time, opErr error, details map[string]string) {
	entry := domain.AuditEntry{
		ActorID:      actor.ID,
		Action:       action,
		ResourceKind: kind,
		ResourceID:   resourceID,
		Details:      details,
		IP:           s.clientIP(r),
		UserAgent:    r.UserAgent(),
		SessionID:    actor.SessionID,
		Outcome:      domain.OutcomeSuccess,
		DurationMS:   time.Since(start).Milliseconds(),
	}
	if opErr != nil {
		entry.Outcome = domain.OutcomeFailure
		entry.ErrorMessage = apperr.PublicMessage(opErr)
	}
	s.audit.Record(entry)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody)).Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error  string                `json:"error"`
	Fields []apperr.FieldProblem `json:"fields,omitempty"`
}

func writeAppError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), errorResponse{
		Error:  apperr.PublicMessage(err),
		Fields: apperr.FieldsOf(err),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}
