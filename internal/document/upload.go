package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docvault/internal/authz"
	"docvault/internal/util"
	"docvault/pkg/apperr"
	"docvault/pkg/domain"
	"docvault/pkg/store"
)

const maxVersionAttempts = 3

// UploadInput carries a new document upload.
type UploadInput struct {
	CategoryID       string
	Title            string
	Description      string
	OriginalFilename string
	MimeType         string
	Tags             []string
	Department       string
	Public           bool
	Permissions      domain.DocumentPermissions
	ExpiresAt        *time.Time
	Content          io.Reader
}

// VersionInput carries a new version of an existing document.
type VersionInput struct {
	OriginalFilename  string
	MimeType          string
	ChangeDescription string
	Content           io.Reader
}

// Upload runs the full pipeline: category gates, spool with streamed
// checksum, blob write, then document and version rows. Gate failures leave
// nothing behind; failures after the blob write remove the blob.
func (s *Service) Upload(ctx context.Context, actor domain.User, in UploadInput) (domain.Document, error) {
	if in.OriginalFilename == "" {
		return domain.Document{}, apperr.ValidationFields("invalid upload",
			apperr.FieldProblem{Field: "filename", Problem: "must not be empty"})
	}
	cat, ok, err := s.store.GetCategory(in.CategoryID)
	if err != nil {
		return domain.Document{}, apperr.Infrastructure(err, "category lookup failed")
	}
	if !ok {
		return domain.Document{}, apperr.NotFound("category not found")
	}
	if err := authz.CanUploadToCategory(actor, cat); err != nil {
		return domain.Document{}, err
	}
	ext, err := gateExtension(in.OriginalFilename, cat)
	if err != nil {
		return domain.Document{}, err
	}

	spoolPath, size, checksum, err := s.spool(in.Content, cat.MaxFileSize)
	if err != nil {
		return domain.Document{}, err
	}
	defer os.Remove(spoolPath)
	if cat.MaxFileSize > 0 && size > cat.MaxFileSize {
		return domain.Document{}, apperr.Constraint("file exceeds the category limit of %d bytes", cat.MaxFileSize)
	}

	meta := extractMetadata(spoolPath, ext)

	docID := util.NewID()
	versionID := util.NewID()
	storedName := storedFilename(versionID, ext)
	key := blobKey(docID, versionID, storedName)
	if err := s.putSpool(ctx, spoolPath, key, size, in.MimeType); err != nil {
		return domain.Document{}, err
	}

	status := domain.StatusApproved
	if cat.RequiresApproval {
		status = domain.StatusPending
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(in.OriginalFilename, filepath.Ext(in.OriginalFilename))
	}
	department := in.Department
	if department == "" {
		department = actor.Department
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:               docID,
		Title:            title,
		Description:      in.Description,
		OriginalFilename: in.OriginalFilename,
		StoredFilename:   storedName,
		StorageKey:       key,
		Size:             size,
		MimeType:         in.MimeType,
		Extension:        ext,
		CategoryID:       cat.ID,
		Tags:             in.Tags,
		UploadedBy:       actor.ID,
		Department:       department,
		Version:          1,
		Status:           status,
		ExpiresAt:        in.ExpiresAt,
		Public:           in.Public,
		Permissions:      in.Permissions,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.SaveDocument(doc); err != nil {
		s.removeBlob(ctx, key)
		return domain.Document{}, apperr.Infrastructure(err, "document save failed")
	}
	v := domain.Version{
		ID:             versionID,
		DocumentID:     docID,
		VersionNumber:  1,
		StoredFilename: storedName,
		StorageKey:     key,
		Size:           size,
		MimeType:       in.MimeType,
		Checksum:       checksum,
		UploadedBy:     actor.ID,
		Metadata:       meta,
		Active:         true,
		CreatedAt:      now,
	}
	if err := s.store.CreateVersion(v); err != nil {
		s.removeBlob(ctx, key)
		return domain.Document{}, apperr.Infrastructure(err, "version save failed")
	}
	if err := s.store.AdjustDocumentCount(cat.ID, 1); err != nil {
		slog.Warn("document count adjust failed", "category_id", cat.ID, "err", err)
	}
	return doc, nil
}

// UploadVersion adds the next version of a document, re-running the category
// gates. Concurrent uploads race on the version number; the unique index
// rejects the loser, who retries with a fresh number.
func (s *Service) UploadVersion(ctx context.Context, actor domain.User, docID string, in VersionInput) (domain.Version, error) {
	doc, ok, err := s.store.GetDocument(docID)
	if err != nil {
		return domain.Version{}, apperr.Infrastructure(err, "document lookup failed")
	}
	if !ok {
		return domain.Version{}, apperr.NotFound("document not found")
	}
	if err := authz.CanAccessDocument(actor, doc, authz.CapWrite); err != nil {
		return domain.Version{}, err
	}
	cat, ok, err := s.store.GetCategory(doc.CategoryID)
	if err != nil {
		return domain.Version{}, apperr.Infrastructure(err, "category lookup failed")
	}
	if !ok {
		return domain.Version{}, apperr.NotFound("category not found")
	}
	filename := in.OriginalFilename
	if filename == "" {
		filename = doc.OriginalFilename
	}
	ext, err := gateExtension(filename, cat)
	if err != nil {
		return domain.Version{}, err
	}

	spoolPath, size, checksum, err := s.spool(in.Content, cat.MaxFileSize)
	if err != nil {
		return domain.Version{}, err
	}
	defer os.Remove(spoolPath)
	if cat.MaxFileSize > 0 && size > cat.MaxFileSize {
		return domain.Version{}, apperr.Constraint("file exceeds the category limit of %d bytes", cat.MaxFileSize)
	}

	meta := extractMetadata(spoolPath, ext)

	versionID := util.NewID()
	storedName := storedFilename(versionID, ext)
	key := blobKey(doc.ID, versionID, storedName)
	if err := s.putSpool(ctx, spoolPath, key, size, in.MimeType); err != nil {
		return domain.Version{}, err
	}

	v := domain.Version{
		ID:                versionID,
		DocumentID:        doc.ID,
		StoredFilename:    storedName,
		StorageKey:        key,
		Size:              size,
		MimeType:          in.MimeType,
		Checksum:          checksum,
		UploadedBy:        actor.ID,
		ChangeDescription: in.ChangeDescription,
		Metadata:          meta,
		Active:            true,
		CreatedAt:         time.Now().UTC(),
	}
	created := false
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		max, err := s.store.MaxVersionNumber(doc.ID)
		if err != nil {
			s.removeBlob(ctx, key)
			return domain.Version{}, apperr.Infrastructure(err, "version lookup failed")
		}
		v.VersionNumber = max + 1
		err = s.store.CreateVersion(v)
		if err == nil {
			created = true
			break
		}
		if err != store.ErrDuplicate {
			s.removeBlob(ctx, key)
			return domain.Version{}, apperr.Infrastructure(err, "version save failed")
		}
	}
	if !created {
		s.removeBlob(ctx, key)
		return domain.Version{}, apperr.Conflict("could not allocate a version number for document %s", doc.ID)
	}

	s.deactivateOthers(doc.ID, v.VersionNumber)

	doc.Version = v.VersionNumber
	doc.StoredFilename = storedName
	doc.StorageKey = key
	doc.Size = size
	doc.MimeType = in.MimeType
	doc.Extension = ext
	doc.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveDocument(doc); err != nil {
		return domain.Version{}, apperr.Infrastructure(err, "document save failed")
	}
	return v, nil
}

// spool copies the upload to a temp file while computing its sha256. When
// limit > 0 the copy stops at limit+1 bytes so oversized uploads never fill
// the disk; the caller compares the returned size against the limit.
func (s *Service) spool(r io.Reader, limit int64) (path string, size int64, checksum string, err error) {
	if r == nil {
		return "", 0, "", apperr.ValidationFields("invalid upload",
			apperr.FieldProblem{Field: "file", Problem: "must not be empty"})
	}
	f, err := os.CreateTemp(s.spoolDir, "docvault-upload-*")
	if err != nil {
		return "", 0, "", apperr.Infrastructure(err, "spool create failed")
	}
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, h), src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, "", apperr.Infrastructure(err, "spool write failed")
	}
	return f.Name(), size, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Service) putSpool(ctx context.Context, spoolPath, key string, size int64, contentType string) error {
	f, err := os.Open(spoolPath)
	if err != nil {
		return apperr.Infrastructure(err, "spool read failed")
	}
	defer f.Close()
	if err := s.blobs.Put(ctx, key, f, size, contentType); err != nil {
		return apperr.Infrastructure(err, "blob write failed")
	}
	return nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.Warn("blob cleanup failed", "key", key, "err", err)
	}
}

func (s *Service) deactivateOthers(docID string, keepNumber int) {
	versions, err := s.store.ListVersions(docID)
	if err != nil {
		slog.Warn("version list failed", "document_id", docID, "err", err)
		return
	}
	for _, old := range versions {
		if old.Active && old.VersionNumber != keepNumber {
			if err := s.store.SetVersionActive(docID, old.VersionNumber, false); err != nil {
				slog.Warn("version deactivate failed", "document_id", docID, "number", old.VersionNumber, "err", err)
			}
		}
	}
}

// gateExtension checks the filename's extension against the category's
// allowed set. An empty set accepts any type.
func gateExtension(filename string, cat domain.Category) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if len(cat.AllowedFileTypes) == 0 {
		return ext, nil
	}
	for _, allowed := range cat.AllowedFileTypes {
		if ext == allowed {
			return ext, nil
		}
	}
	return "", apperr.Constraint("file type %q is not allowed in %s (allowed: %s)",
		ext, cat.Name, strings.Join(cat.AllowedFileTypes, ", "))
}

func storedFilename(versionID, ext string) string {
	if ext == "" {
		return versionID
	}
	return fmt.Sprintf("%s.%s", versionID, ext)
}

func blobKey(docID, versionID, storedName string) string {
	return fmt.Sprintf("documents/%s/%s/%s", docID, versionID, storedName)
}
