package server

import (
	"net/http"
	"strings"
	"time"

	"docvault/internal/authz"
	"docvault/internal/category"
	"docvault/pkg/apperr"
	"docvault/pkg/domain"
)

type categoryRequest struct {
	Name             *string                     `json:"name"`
	Description      *string                     `json:"description"`
	ParentID         *string                     `json:"parentId"`
	AllowedFileTypes *[]string                   `json:"allowedFileTypes"`
	MaxFileSize      *int64                      `json:"maxFileSize"`
	RequiresApproval *bool                       `json:"requiresApproval"`
	Permissions      *domain.CategoryPermissions `json:"permissions"`
	Active           *bool                       `json:"active"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request, actor requestActor) {
	switch r.Method {
	case http.MethodGet:
		includeInactive := r.URL.Query().Get("includeInactive") == "true" && authz.IsElevated(actor.User)
		cats, err := s.categories.List(includeInactive)
		if err != nil {
			writeAppError(w, err)
			return
		}
		visible := cats[:0]
		for _, cat := range cats {
			if authz.CanViewCategory(actor.User, cat) {
				visible = append(visible, cat)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": visible, "count": len(visible)})
	case http.MethodPost:
		if err := authz.RequireRole(actor.User, domain.ActionCategoryCreate); err != nil {
			writeAppError(w, err)
			return
		}
		var req categoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
		in := category.CreateInput{}
		if req.Name != nil {
			in.Name = *req.Name
		}
		if req.Description != nil {
			in.Description = *req.Description
		}
		if req.ParentID != nil {
			in.ParentID = *req.ParentID
		}
		if req.AllowedFileTypes != nil {
			in.AllowedFileTypes = *req.AllowedFileTypes
		}
		if req.MaxFileSize != nil {
			in.MaxFileSize = *req.MaxFileSize
		}
		if req.RequiresApproval != nil {
			in.RequiresApproval = *req.RequiresApproval
		}
		if req.Permissions != nil {
			in.Permissions = *req.Permissions
		}
		start := time.Now()
		cat, err := s.categories.Create(in)
		s.record(r, actor, domain.ActionCategoryCreate, domain.ResourceCategory, cat.ID, start, err, nil)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cat)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCategoryTree(w http.ResponseWriter, r *http.Request, actor requestActor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	tree, err := s.categories.BuildTree()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": visibleTree(actor.User, tree)})
}

// visibleTree drops nodes the actor may not view. A hidden node hides its
// whole subtree.
func visibleTree(actor domain.User, nodes []*domain.Category) []*domain.Category {
	out := make([]*domain.Category, 0, len(nodes))
	for _, n := range nodes {
		if !authz.CanViewCategory(actor, *n) {
			continue
		}
		n.Children = visibleTree(actor, n.Children)
		out = append(out, n)
	}
	return out
}

func (s *Server) handleCategoryByID(w http.ResponseWriter, r *http.Request, actor requestActor) {
	rest := strings.TrimPrefix(r.URL.Path, "/categories/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if sub == "path" {
		s.handleCategoryPath(w, r, id)
		return
	}
	if sub != "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cat, err := s.categories.Get(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !authz.CanViewCategory(actor.User, cat) {
			writeAppError(w, apperr.Authorization("insufficient category permissions"))
			return
		}
		writeJSON(w, http.StatusOK, cat)
	case http.MethodPatch:
		cat, err := s.categories.Get(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if err := authz.CanManageCategory(actor.User, cat); err != nil {
			writeAppError(w, err)
			return
		}
		var req categoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
		start := time.Now()
		cat, err = s.categories.Update(id, category.UpdateInput{
			Name:             req.Name,
			Description:      req.Description,
			ParentID:         req.ParentID,
			AllowedFileTypes: req.AllowedFileTypes,
			MaxFileSize:      req.MaxFileSize,
			RequiresApproval: req.RequiresApproval,
			Permissions:      req.Permissions,
			Active:           req.Active,
		})
		s.record(r, actor, domain.ActionCategoryUpdate, domain.ResourceCategory, id, start, err, nil)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cat)
	case http.MethodDelete:
		if err := authz.RequireRole(actor.User, domain.ActionCategoryDelete); err != nil {
			writeAppError(w, err)
			return
		}
		start := time.Now()
		err := s.categories.Delete(id)
		s.record(r, actor, domain.ActionCategoryDelete, domain.ResourceCategory, id, start, err, nil)
		if err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCategoryPath(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path, err := s.categories.FullPath(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}
