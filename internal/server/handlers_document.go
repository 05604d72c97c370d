package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docvault/internal/document"
	"docvault/pkg/apperr"
	"docvault/pkg/domain"
)

// Multipart uploads beyond this in-memory threshold spill to disk.
const uploadMemoryLimit = 8 << 20

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, actor requestActor) {
	switch r.Method {
	case http.MethodGet:
		s.handleDocumentList(w, r, actor)
	case http.MethodPost:
		s.handleDocumentUpload(w, r, actor)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request, actor requestActor) {
	q := r.URL.Query()
	in := document.ListInput{
		CategoryID: q.Get("categoryId"),
		Status:     domain.DocumentStatus(q.Get("status")),
		UploadedBy: q.Get("uploadedBy"),
		Tag:        q.Get("tag"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			in.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			in.Offset = n
		}
	}
	docs, err := s.documents.List(actor.User, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs, "count": len(docs)})
}

func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request, actor requestActor) {
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		writeAppError(w, apperr.Validation("invalid multipart body"))
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeAppError(w, apperr.ValidationFields("invalid upload",
			apperr.FieldProblem{Field: "file", Problem: "must not be empty"}))
		return
	}
	defer file.Close()

	in := document.UploadInput{
		CategoryID:       r.FormValue("categoryId"),
		Title:            r.FormValue("title"),
		Description:      r.FormValue("description"),
		OriginalFilename: header.Filename,
		MimeType:         header.Header.Get("Content-Type"),
		Department:       r.FormValue("department"),
		Public:           r.FormValue("public") == "true",
		Content:          file,
	}
	if tags := r.FormValue("tags"); tags != "" {
		in.Tags = splitCSV(tags)
	}
	if v := r.FormValue("expiresAt"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeAppError(w, apperr.ValidationFields("invalid upload",
				apperr.FieldProblem{Field: "expiresAt", Problem: "must be RFC 3339"}))
			return
		}
		in.ExpiresAt = &t
	}

	start := time.Now()
	doc, err := s.documents.Upload(r.Context(), actor.User, in)
	s.record(r, actor, domain.ActionDocumentUpload, domain.ResourceDocument, doc.ID, start, err, map[string]string{"filename": header.Filename})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// handleDocumentByID dispatches /documents/{id} and its sub-resources.
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, actor requestActor) {
	rest := strings.TrimPrefix(r.URL.Path, "/documents/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		s.handleDocument(w, r, actor, id)
	case "approve":
		s.handleApprove(w, r, actor, id)
	case "reject":
		s.handleReject(w, r, actor, id)
	case "archive":
		s.handleArchive(w, r, actor, id)
	case "download":
		s.handleDownload(w, r, actor, id)
	case "share":
		s.handleShare(w, r, actor, id)
	case "versions":
		s.handleVersionsRoot(w, r, actor, id)
	default:
		if number, op, ok := versionSubPath(sub); ok {
			s.handleVersionOp(w, r, actor, id, number, op)
			return
		}
		http.NotFound(w, r)
	}
}

// versionSubPath parses "versions/{n}/download" and "versions/{n}/rollback".
func versionSubPath(sub string) (int, string, bool) {
	if !strings.HasPrefix(sub, "versions/") {
		return 0, "", false
	}
	parts := strings.Split(sub, "/")
	if len(parts) != 3 {
		return 0, "", false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 1 {
		return 0, "", false
	}
	return n, parts[2], true
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, actor requestActor, id string) {
	switch r.Method {
	case http.MethodGet:
		start := time.Now()
		doc, err := s.documents.Get(actor.User, id)
		s.record(r, actor, domain.ActionDocumentView, domain.ResourceDocument, id, start, err, nil)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodPatch:
		var req documentUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
		expires, err := req.expiresAt()
		if err != nil {
			writeAppError(w, err)
			return
		}
		start := time.Now()
		doc, err := s.documents.Update(actor.User, id, document.UpdateInput{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			Public:      req.Public,
			Permissions: req.Permissions,
			ExpiresAt:   expires,
		})
		action := domain.ActionDocumentUpdate
		if req.Permissions != nil {
			action = domain.ActionPermissionGrant
		}
		s.record(r, actor, action, domain.ResourceDocument, id, start, err, nil)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		start := time.Now()
		err := s.documents.SoftDelete(actor.User, id)
		s.record(r, actor, domain.ActionDocumentDelete, domain.ResourceDocument, id, start, err, nil)
		if err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

type documentUpdateRequest struct {
	Title       *string                     `json:"title"`
	Description *string                     `json:"description"`
	Tags        *[]string                   `json:"tags"`
	ExpiresAt   *string                     `json:"expiresAt"`
	Public      *bool                       `json:"public"`
	Permissions *domain.DocumentPermissions `json:"permissions"`
}

// expiresAt maps the optional RFC 3339 string onto the service's
// set/clear/leave-alone pointer shape. An empty string clears the date; a
// malformed one is a validation error, same as on upload.
func (req documentUpdateRequest) expiresAt() (**time.Time, error) {
	if req.ExpiresAt == nil {
		return nil, nil
	}
	if *req.ExpiresAt == "" {
		cleared := (*time.Time)(nil)
		return &cleared, nil
	}
	t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
	if err != nil {
		return nil, apperr.ValidationFields("invalid document update",
			apperr.FieldProblem{Field: "expiresAt", Problem: "must be RFC 3339"})
	}
	ptr := &t
	return &ptr, nil
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, actor requestActor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	start := time.Now()
	doc, err := s.documents.Approve(actor.User, id)
	s.record(r, actor, domain.ActionDocumentApprove, domain.ResourceDocument, id, start, err, nil)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, actor requestActor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	start := time.Now()
	doc, err := s.documents.Reject(actor.User, id, req.Reason)
	s.record(r, actor, domain.ActionDocumentReject, domain.ResourceDocument, id, start, err, map[string]string{"reason": req.Reason})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request, actor requestActor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	start := time.Now()
	doc, err := s.documents.Archive(actor.User, id)
	s.record(r, actor, domain.ActionDocumentArchive, domain.ResourceDocument, id, start, err, nil)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, actor requestActor, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	start := time.Now()
	rc, doc, err := s.documents.Download(r.Context(), actor.User, id)
	s.record(r, actor, domain.ActionDocumentDownload, domain.ResourceDocument, id, start, err, nil)
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer rc.Close()
	streamBlob(w, rc, doc.OriginalFilename, doc.MimeType, doc.Size)
}

type shareRequest struct {
	ExpiresIn string `json:"expiresIn"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request, actor requestActor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req shareRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
	}
	var expiry time.Duration
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			writeAppError(w, apperr.ValidationFields("invalid share request",
				apperr.FieldProblem{Field: "expiresIn", Problem: "must be a positive duration"}))
			return
		}
		expiry = d
	}
	start := time.Now()
	url, err := s.documents.Share(r.Context(), actor.User, id, expiry)
	s.record(r, actor, domain.ActionDocumentShare, domain.ResourceDocument, id, start, err, nil)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleVersionsRoot(w http.ResponseWriter, r *http.Request, actor requestActor, id string) {
	switch r.Method {
	case http.MethodGet:
		versions, err := s.documents.Versions(actor.User, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": versions, "count": len(versions)})
	case http.MethodPost:
		if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
			writeAppError(w, apperr.Validation("invalid multipart body"))
			return
		}
		defer r.MultipartForm.RemoveAll()
		file, header, err := r.FormFile("file")
		if err != nil {
			writeAppError(w, apperr.ValidationFields("invalid upload",
				apperr.FieldProblem{Field: "file", Problem: "must not be empty"}))
			return
		}
		defer file.Close()
		start := time.Now()
		v, err := s.documents.UploadVersion(r.Context(), actor.User, id, document.VersionInput{
			OriginalFilename:  header.Filename,
			MimeType:          header.Header.Get("Content-Type"),
			ChangeDescription: r.FormValue("changeDescription"),
			Content:           file,
		})
		s.record(r, actor, domain.ActionVersionUpload, domain.ResourceDocument, id, start, err, map[string]string{"filename": header.Filename})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleVersionOp(w http.ResponseWriter, r *http.Request, actor requestActor, id string, number int, op string) {
	switch op {
	case "download":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		start := time.Now()
		rc, v, err := s.documents.DownloadVersion(r.Context(), actor.User, id, number)
		s.record(r, actor, domain.ActionVersionDownload, domain.ResourceDocument, id, start, err, map[string]string{"version": strconv.Itoa(number)})
		if err != nil {
			writeAppError(w, err)
			return
		}
		defer rc.Close()
		streamBlob(w, rc, v.StoredFilename, v.MimeType, v.Size)
	case "rollback":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		start := time.Now()
		doc, err := s.documents.Rollback(actor.User, id, number)
		s.record(r, actor, domain.ActionVersionRollback, domain.ResourceDocument, id, start, err, map[string]string{"version": strconv.Itoa(number)})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	default:
		http.NotFound(w, r)
	}
}

func streamBlob(w http.ResponseWriter, rc io.Reader, filename, contentType string, size int64) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	_, _ = io.Copy(w, rc)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
