// Package document implements the document lifecycle: upload pipeline,
// approval workflow, versioning, sharing, counters, and soft delete.
package document

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"docvault/internal/authz"
	"docvault/pkg/apperr"
	"docvault/pkg/domain"
	"docvault/pkg/storage"
	"docvault/pkg/store"
)

// Service owns document reads and writes. Blob bytes live in the object
// store; everything else lives in the metadata store.
type Service struct {
	store    store.Store
	blobs    storage.ObjectStore
	spoolDir string
}

func NewService(st store.Store, blobs storage.ObjectStore) *Service {
	return &Service{store: st, blobs: blobs, spoolDir: os.TempDir()}
}

func (s *Service) find(id string) (domain.Document, error) {
	doc, ok, err := s.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, apperr.Infrastructure(err, "document lookup failed")
	}
	if !ok {
		return domain.Document{}, apperr.NotFound("document not found")
	}
	return doc, nil
}

// Get returns a document the actor may read and bumps its view counter.
func (s *Service) Get(actor domain.User, id string) (domain.Document, error) {
	doc, err := s.find(id)
	if err != nil {
		return domain.Document{}, err
	}
	if err := authz.CanAccessDocument(actor, doc, authz.CapRead); err != nil {
		return domain.Document{}, err
	}
	if err := s.store.IncrementDocumentCounter(id, store.CounterViews); err != nil {
		slog.Warn("view counter failed", "document_id", id, "err", err)
	} else {
		doc.ViewCount++
	}
	return doc, nil
}

// ListInput narrows a document listing.
type ListInput struct {
	CategoryID string
	Status     domain.DocumentStatus
	UploadedBy string
	Tag        string
	Limit      int
	Offset     int
}

var validStatuses = map[domain.DocumentStatus]bool{
	domain.StatusDraft: true, domain.StatusPending: true, domain.StatusApproved: true,
	domain.StatusRejected: true, domain.StatusArchived: true,
}

// List returns documents visible to the actor. Soft-deleted documents never
// appear; "user"-role actors see owned, read-permitted, public, or (absent a
// status filter) approved documents.
func (s *Service) List(actor domain.User, in ListInput) ([]domain.Document, error) {
	if in.Status != "" && !validStatuses[in.Status] {
		return nil, apperr.ValidationFields("invalid filter",
			apperr.FieldProblem{Field: "status", Problem: "unknown status"})
	}
	f := store.DocumentFilter{
		CategoryID: in.CategoryID,
		Status:     in.Status,
		UploadedBy: in.UploadedBy,
		Tag:        in.Tag,
		Limit:      in.Limit,
		Offset:     in.Offset,
	}
	f = authz.ListScope(actor, f)
	docs, err := s.store.ListDocuments(f)
	if err != nil {
		return nil, apperr.Infrastructure(err, "document list failed")
	}
	return docs, nil
}

// UpdateInput carries the mutable metadata of a document. Nil pointers leave
// the corresponding field untouched.
type UpdateInput struct {
	Title       *string
	Description *string
	Tags        *[]string
	ExpiresAt   **time.Time
	Public      *bool
	Permissions *domain.DocumentPermissions
}

// Update changes document metadata. Write permission suffices for metadata;
// permission-list changes additionally require the owner or an elevated role.
func (s *Service) Update(actor domain.User, id string, in UpdateInput) (domain.Document, error) {
	doc, err := s.find(id)
	if err != nil {
		return domain.Document{}, err
	}
	if err := authz.CanAccessDocument(actor, doc, authz.CapWrite); err != nil {
		return domain.Document{}, err
	}
	if in.Permissions != nil && !authz.IsElevated(actor) && actor.ID != doc.UploadedBy {
		return domain.Document{}, apperr.Authorization("only the owner may change document permissions")
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return domain.Document{}, apperr.ValidationFields("invalid document",
				apperr.FieldProblem{Field: "title", Problem: "must not be empty"})
		}
		doc.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		doc.Description = *in.Description
	}
	if in.Tags != nil {
		doc.Tags = *in.Tags
	}
	if in.ExpiresAt != nil {
		doc.ExpiresAt = *in.ExpiresAt
	}
	if in.Public != nil {
		doc.Public = *in.Public
	}
	if in.Permissions != nil {
		doc.Permissions = *in.Permissions
	}
	doc.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveDocument(doc); err != nil {
		return domain.Document{}, apperr.Infrastructure(err, "document save failed")
	}
	return doc, nil
}

// Approve moves a pending document to approved. Any other starting status is
// a conflict naming that status.
func (s *Service) Approve(actor domain.User, id string) (domain.Document, error) {
	if err := authz.RequireRole(actor, domain.ActionDocumentApprove); err != nil {
		return domain.Document{}, err
	}
	doc, err := s.find(id)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.IsDeleted {
		return domain.Document{}, apperr.NotFound("document not found")
	}
	if doc.Status != domain.StatusPending {
		return domain.Document{}, apperr.Conflict("cannot approve a document in status %s", doc.Status)
	}
	now := time.Now().UTC()
	doc.Status = domain.StatusApproved
	doc.ApprovedBy = actor.ID
	doc.ApprovedAt = &now
	doc.RejectionReason = ""
	doc.UpdatedAt = now
	if err := s.store.SaveDocument(doc); err != nil {
		return domain.Document{}, apperr.Infrastructure(err, "document save failed")
	}
	return doc, nil
}

// Reject moves a pending document to rejected, recording the reviewer and
// timestamp like Approve does. A reason is required.
func (s *Service) Reject(actor domain.User, id, reason string) (domain.Document, error) {
	if err := authz.RequireRole(actor, domain.ActionDocumentReject); err != nil {
		return domain.Document{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return domain.Document{}, apperr.ValidationFields("invalid rejection",
			apperr.FieldProblem{Field: "reason", Problem: "must not be empty"})
	}
	doc, err := s.find(id)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.IsDeleted {
		return domain.Document{}, apperr.NotFound("document not found")
	}
	if doc.Status != domain.StatusPending {
		return domain.Document{}, apperr.Conflict("cannot reject a document in status %s", doc.Status)
	}
	now := time.Now().UTC()
	doc.Status = domain.StatusRejected
	doc.ApprovedBy = actor.ID
	doc.ApprovedAt = &now
	doc.RejectionReason = strings.TrimSpace(reason)
	doc.UpdatedAt = now
	if err := s.store.SaveDocument(doc); err != nil {
		return domain.Document{}, apperr.Infrastructure(err, "document save failed")
	}
	return doc, nil
}

// Archive sets the archived status. Admin and manager only.
func (s *Service) Archive(actor domain.User, id string) (domain.Document, error) {
	if err := authz.RequireRole(actor, domain.ActionDocumentArchive); err != nil {
		return domain.Document{}, err
	}
	doc, err := s.find(id)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.IsDeleted {
		return domain.Document{}, apperr.NotFound("document not found")
	}
	if doc.Status == domain.StatusArchived {
		return domain.Document{}, apperr.Conflict("document is already archived")
	}
	doc.Status = domain.StatusArchived
	doc.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveDocument(doc); err != nil {
		return domain.Document{}, apperr.Infrastructure(err, "document save failed")
	}
	return doc, nil
}

// SoftDelete hides a document. The blob and version history remain for
// recovery; a second delete reports not-found like any other read.
func (s *Service) SoftDelete(actor domain.User, id string) error {
	doc, err := s.find(id)
	if err != nil {
		return err
	}
	if err := authz.CanAccessDocument(actor, doc, authz.CapDelete); err != nil {
		return err
	}
	now := time.Now().UTC()
	doc.IsDeleted = true
	doc.DeletedAt = &now
	doc.DeletedBy = actor.ID
	doc.UpdatedAt = now
	if err := s.store.SaveDocument(doc); err != nil {
		return apperr.Infrastructure(err, "document save failed")
	}
	if err := s.store.AdjustDocumentCount(doc.CategoryID, -1); err != nil {
		slog.Warn("document count adjust failed", "category_id", doc.CategoryID, "err", err)
	}
	return nil
}

// Download streams the current version's bytes. The returned document carries
// the response headers' filename, size, and content type.
func (s *Service) Download(ctx context.Context, actor domain.User, id string) (io.ReadCloser, domain.Document, error) {
	doc, err := s.find(id)
	if err != nil {
		return nil, domain.Document{}, err
	}
	if err := authz.CanAccessDocument(actor, doc, authz.CapRead); err != nil {
		return nil, domain.Document{}, err
	}
	rc, err := s.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, domain.Document{}, apperr.Infrastructure(err, "blob read failed")
	}
	s.bumpDownloadCounters(doc, doc.Version)
	return rc, doc, nil
}

// DownloadVersion streams a specific version's bytes.
func (s *Service) DownloadVersion(ctx context.Context, actor domain.User, id string, number int) (io.ReadCloser, domain.Version, error) {
	doc, err := s.find(id)
	if err != nil {
		return nil, domain.Version{}, err
	}
	if err := authz.CanAccessDocument(actor, doc, authz.CapRead); err != nil {
		return nil, domain.Version{}, err
	}
	v, ok, err := s.store.GetVersion(id, number)
	if err != nil {
		return nil, domain.Version{}, apperr.Infrastructure(err, "version lookup failed")
	}
	if !ok {
		return nil, domain.Version{}, apperr.NotFound("version not found")
	}
	rc, err := s.blobs.Get(ctx, v.StorageKey)
	if err != nil {
		return nil, domain.Version{}, apperr.Infrastructure(err, "blob read failed")
	}
	s.bumpDownloadCounters(doc, number)
	return rc, v, nil
}

func (s *Service) bumpDownloadCounters(doc domain.Document, number int) {
	if err := s.store.IncrementDocumentCounter(doc.ID, store.CounterDownloads); err != nil {
		slog.Warn("download counter failed", "document_id", doc.ID, "err", err)
	}
	if v, ok, err := s.store.GetVersion(doc.ID, number); err == nil && ok {
		if err := s.store.IncrementVersionDownloads(v.ID); err != nil {
			slog.Warn("version download counter failed", "version_id", v.ID, "err", err)
		}
	}
}

// Versions lists a document's version history in ascending order.
func (s *Service) Versions(actor domain.User, id string) ([]domain.Version, error) {
	doc, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanAccessDocument(actor, doc, authz.CapRead); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(id)
	if err != nil {
		return nil, apperr.Infrastructure(err, "version list failed")
	}
	return versions, nil
}

// Rollback makes a prior version current by flipping active flags and
// repointing the document. History stays intact; the owner or an elevated
// role may roll back.
func (s *Service) Rollback(actor domain.User, id string, number int) (domain.Document, error) {
	doc, err := s.find(id)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.IsDeleted {
		return domain.Document{}, apperr.NotFound("document not found")
	}
	if !authz.IsElevated(actor) && actor.ID != doc.UploadedBy {
		return domain.Document{}, apperr.Authorization("only the owner may roll back a document")
	}
	target, ok, err := s.store.GetVersion(id, number)
	if err != nil {
		return domain.Document{}, apperr.Infrastructure(err, "version lookup failed")
	}
	if !ok {
		return domain.Document{}, apperr.NotFound("version not found")
	}
	if doc.Version == number {
		return domain.Document{}, apperr.Conflict("version %d is already current", number)
	}
	if err := s.store.SetVersionActive(id, number, true); err != nil {
		return domain.Document{}, apperr.Infrastructure(err, "version activate failed")
	}
	s.deactivateOthers(id, number)

	doc.Version = number
	doc.StoredFilename = target.StoredFilename
	doc.StorageKey = target.StorageKey
	doc.Size = target.Size
	doc.MimeType = target.MimeType
	doc.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveDocument(doc); err != nil {
		return domain.Document{}, apperr.Infrastructure(err, "document save failed")
	}
	return doc, nil
}

// Share issues a pre-signed download link and bumps the share counter.
func (s *Service) Share(ctx context.Context, actor domain.User, id string, expiry time.Duration) (string, error) {
	doc, err := s.find(id)
	if err != nil {
		return "", err
	}
	if err := authz.CanAccessDocument(actor, doc, authz.CapRead); err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	url, err := s.blobs.PresignGet(ctx, doc.StorageKey, expiry)
	if err != nil {
		return "", apperr.Infrastructure(err, "share link failed")
	}
	if err := s.store.IncrementDocumentCounter(id, store.CounterShares); err != nil {
		slog.Warn("share counter failed", "document_id", id, "err", err)
	}
	return url, nil
}
