package server

import (
	"net/http"
	"strings"
	"time"

	"docvault/internal/identity"
	"docvault/pkg/apperr"
	"docvault/pkg/domain"
)

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	ip := s.clientIP(r)
	if !s.allowSensitive(ip) {
		writeAppError(w, apperr.Throttled("too many attempts, try again later"))
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	start := time.Now()
	user, err := s.identity.Register(identity.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		Department: req.Department,
		Phone:      req.Phone,
	})
	s.record(r, requestActor{User: user}, domain.ActionRegister, domain.ResourceUser, user.ID, start, err, map[string]string{"email": strings.ToLower(strings.TrimSpace(req.Email))})
	if err != nil {
		writeAppError(w, err)
		return
	}
	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		writeAppError(w, apperr.Infrastructure(err, "token issue failed"))
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	ip := s.clientIP(r)
	if !s.allowSensitive(ip) {
		writeAppError(w, apperr.Throttled("too many attempts, try again later"))
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	start := time.Now()
	user, err := s.identity.Login(req.Email, req.Password)
	// Failed logins are recorded without an actor; there is none yet.
	s.record(r, requestActor{User: user}, domain.ActionLogin, domain.ResourceUser, user.ID, start, err, map[string]string{"email": strings.ToLower(strings.TrimSpace(req.Email))})
	if err != nil {
		writeAppError(w, err)
		return
	}
	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		writeAppError(w, apperr.Infrastructure(err, "token issue failed"))
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, actor requestActor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	// Tokens are stateless; logout exists for the audit trail.
	s.record(r, actor, domain.ActionLogout, domain.ResourceUser, actor.ID, time.Now(), nil, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, actor requestActor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, actor.User)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, actor requestActor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowSensitive(actor.ID) {
		writeAppError(w, apperr.Throttled("too many attempts, try again later"))
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	start := time.Now()
	err := s.identity.ChangePassword(actor.User, req.CurrentPassword, req.NewPassword)
	s.record(r, actor, domain.ActionPasswordChange, domain.ResourceUser, actor.ID, start, err, nil)
	if err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createUserRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, actor requestActor) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.identity.List(actor.User)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": users, "count": len(users)})
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
		start := time.Now()
		user, err := s.identity.AdminCreate(actor.User, identity.CreateInput{
			Email:      req.Email,
			Password:   req.Password,
			Role:       domain.UserRole(strings.ToLower(strings.TrimSpace(req.Role))),
			Department: req.Department,
			Phone:      req.Phone,
		})
		s.record(r, actor, domain.ActionUserCreate, domain.ResourceUser, user.ID, start, err, nil)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w)
	}
}

type updateUserRequest struct {
	Role       *string `json:"role"`
	Active     *bool   `json:"active"`
	Department *string `json:"department"`
	Phone      *string `json:"phone"`
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, actor requestActor) {
	id := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	in := identity.UpdateInput{
		Active:     req.Active,
		Department: req.Department,
		Phone:      req.Phone,
	}
	if req.Role != nil {
		role := domain.UserRole(strings.ToLower(strings.TrimSpace(*req.Role)))
		in.Role = &role
	}
	action := domain.ActionUserUpdate
	if req.Active != nil && !*req.Active {
		action = domain.ActionUserDeactivate
	}
	start := time.Now()
	user, err := s.identity.AdminUpdate(actor.User, id, in)
	s.record(r, actor, action, domain.ResourceUser, id, start, err, nil)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
