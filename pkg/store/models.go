package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"docvault/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Active       bool   `gorm:"not null"`
	Department   string
	Phone        string
	LastLoginAt  *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type CategoryModel struct {
	ID               string `gorm:"primaryKey"`
	Name             string `gorm:"not null"`
	Slug             string `gorm:"uniqueIndex;not null"`
	Description      string
	ParentID         string `gorm:"index"`
	Level            int    `gorm:"not null"`
	Path             string `gorm:"not null"`
	AllowedFileTypes datatypes.JSON
	MaxFileSize      int64
	RequiresApproval bool `gorm:"not null"`
	PermUpload       datatypes.JSON
	PermView         datatypes.JSON
	PermManage       datatypes.JSON
	DocumentCount    int64     `gorm:"not null;default:0"`
	Active           bool      `gorm:"not null;index"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (CategoryModel) TableName() string { return "categories" }

type DocumentModel struct {
	ID               string `gorm:"primaryKey"`
	Title            string `gorm:"not null"`
	Description      string
	OriginalFilename string `gorm:"not null"`
	StoredFilename   string `gorm:"not null"`
	StorageKey       string `gorm:"not null"`
	Size             int64  `gorm:"not null"`
	MimeType         string
	Extension        string
	CategoryID       string `gorm:"not null;index:idx_documents_category_status"`
	Tags             datatypes.JSON
	UploadedBy       string `gorm:"not null;index"`
	Department       string
	Version          int    `gorm:"not null"`
	Status           string `gorm:"not null;index:idx_documents_category_status"`
	ApprovedBy       string
	ApprovedAt       *time.Time
	RejectionReason  string
	ExpiresAt        *time.Time
	Public           bool `gorm:"not null"`
	PermRead         datatypes.JSON
	PermWrite        datatypes.JSON
	PermDelete       datatypes.JSON
	ViewCount        int64 `gorm:"not null;default:0"`
	DownloadCount    int64 `gorm:"not null;default:0"`
	ShareCount       int64 `gorm:"not null;default:0"`
	IsDeleted        bool  `gorm:"not null;index"`
	DeletedAt        *time.Time
	DeletedBy        string
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }

type VersionModel struct {
	ID                string `gorm:"primaryKey"`
	DocumentID        string `gorm:"not null;uniqueIndex:idx_versions_document_number"`
	VersionNumber     int    `gorm:"not null;uniqueIndex:idx_versions_document_number"`
	StoredFilename    string `gorm:"not null"`
	StorageKey        string `gorm:"not null"`
	Size              int64  `gorm:"not null"`
	MimeType          string
	Checksum          string `gorm:"not null"`
	UploadedBy        string `gorm:"not null"`
	ChangeDescription string
	Metadata          datatypes.JSON
	Active            bool      `gorm:"not null"`
	DownloadCount     int64     `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (VersionModel) TableName() string { return "versions" }

type AuditModel struct {
	ID           string `gorm:"primaryKey"`
	ActorID      string `gorm:"index"`
	Action       string `gorm:"not null;index"`
	ResourceKind string `gorm:"index:idx_audit_resource"`
	ResourceID   string `gorm:"index:idx_audit_resource"`
	Details      datatypes.JSON
	IP           string
	UserAgent    string
	SessionID    string
	Outcome      string `gorm:"not null"`
	ErrorMessage string
	DurationMS   int64
	CreatedAt    time.Time `gorm:"not null;index:,sort:desc"`
}

func (AuditModel) TableName() string { return "audit_entries" }

// JSON column helpers. A nil or empty slice round-trips to an empty list so
// query operators never see SQL NULL.
func stringsToJSON(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}

func stringsFromJSON(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func mapToJSON(values map[string]string) datatypes.JSON {
	if values == nil {
		values = map[string]string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

func mapFromJSON(raw datatypes.JSON) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func metadataToJSON(meta domain.VersionMetadata) datatypes.JSON {
	raw, err := json.Marshal(meta)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

func metadataFromJSON(raw datatypes.JSON) domain.VersionMetadata {
	var meta domain.VersionMetadata
	if len(raw) == 0 {
		return meta
	}
	_ = json.Unmarshal(raw, &meta)
	return meta
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Active:       u.Active,
		Department:   u.Department,
		Phone:        u.Phone,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Active:       m.Active,
		Department:   m.Department,
		Phone:        m.Phone,
		LastLoginAt:  m.LastLoginAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func categoryToModel(c domain.Category) CategoryModel {
	return CategoryModel{
		ID:               c.ID,
		Name:             c.Name,
		Slug:             c.Slug,
		Description:      c.Description,
		ParentID:         c.ParentID,
		Level:            c.Level,
		Path:             c.Path,
		AllowedFileTypes: stringsToJSON(c.AllowedFileTypes),
		MaxFileSize:      c.MaxFileSize,
		RequiresApproval: c.RequiresApproval,
		PermUpload:       stringsToJSON(c.Permissions.Upload),
		PermView:         stringsToJSON(c.Permissions.View),
		PermManage:       stringsToJSON(c.Permissions.Manage),
		DocumentCount:    c.DocumentCount,
		Active:           c.Active,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func categoryFromModel(m CategoryModel) domain.Category {
	return domain.Category{
		ID:               m.ID,
		Name:             m.Name,
		Slug:             m.Slug,
		Description:      m.Description,
		ParentID:         m.ParentID,
		Level:            m.Level,
		Path:             m.Path,
		AllowedFileTypes: stringsFromJSON(m.AllowedFileTypes),
		MaxFileSize:      m.MaxFileSize,
		RequiresApproval: m.RequiresApproval,
		Permissions: domain.CategoryPermissions{
			Upload: stringsFromJSON(m.PermUpload),
			View:   stringsFromJSON(m.PermView),
			Manage: stringsFromJSON(m.PermManage),
		},
		DocumentCount: m.DocumentCount,
		Active:        m.Active,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:               d.ID,
		Title:            d.Title,
		Description:      d.Description,
		OriginalFilename: d.OriginalFilename,
		StoredFilename:   d.StoredFilename,
		StorageKey:       d.StorageKey,
		Size:             d.Size,
		MimeType:         d.MimeType,
		Extension:        d.Extension,
		CategoryID:       d.CategoryID,
		Tags:             stringsToJSON(d.Tags),
		UploadedBy:       d.UploadedBy,
		Department:       d.Department,
		Version:          d.Version,
		Status:           string(d.Status),
		ApprovedBy:       d.ApprovedBy,
		ApprovedAt:       d.ApprovedAt,
		RejectionReason:  d.RejectionReason,
		ExpiresAt:        d.ExpiresAt,
		Public:           d.Public,
		PermRead:         stringsToJSON(d.Permissions.Read),
		PermWrite:        stringsToJSON(d.Permissions.Write),
		PermDelete:       stringsToJSON(d.Permissions.Delete),
		ViewCount:        d.ViewCount,
		DownloadCount:    d.DownloadCount,
		ShareCount:       d.ShareCount,
		IsDeleted:        d.IsDeleted,
		DeletedAt:        d.DeletedAt,
		DeletedBy:        d.DeletedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		OriginalFilename: m.OriginalFilename,
		StoredFilename:   m.StoredFilename,
		StorageKey:       m.StorageKey,
		Size:             m.Size,
		MimeType:         m.MimeType,
		Extension:        m.Extension,
		CategoryID:       m.CategoryID,
		Tags:             stringsFromJSON(m.Tags),
		UploadedBy:       m.UploadedBy,
		Department:       m.Department,
		Version:          m.Version,
		Status:           domain.DocumentStatus(m.Status),
		ApprovedBy:       m.ApprovedBy,
		ApprovedAt:       m.ApprovedAt,
		RejectionReason:  m.RejectionReason,
		ExpiresAt:        m.ExpiresAt,
		Public:           m.Public,
		Permissions: domain.DocumentPermissions{
			Read:   stringsFromJSON(m.PermRead),
			Write:  stringsFromJSON(m.PermWrite),
			Delete: stringsFromJSON(m.PermDelete),
		},
		ViewCount:     m.ViewCount,
		DownloadCount: m.DownloadCount,
		ShareCount:    m.ShareCount,
		IsDeleted:     m.IsDeleted,
		DeletedAt:     m.DeletedAt,
		DeletedBy:     m.DeletedBy,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func versionToModel(v domain.Version) VersionModel {
	return VersionModel{
		ID:                v.ID,
		DocumentID:        v.DocumentID,
		VersionNumber:     v.VersionNumber,
		StoredFilename:    v.StoredFilename,
		StorageKey:        v.StorageKey,
		Size:              v.Size,
		MimeType:          v.MimeType,
		Checksum:          v.Checksum,
		UploadedBy:        v.UploadedBy,
		ChangeDescription: v.ChangeDescription,
		Metadata:          metadataToJSON(v.Metadata),
		Active:            v.Active,
		DownloadCount:     v.DownloadCount,
		CreatedAt:         v.CreatedAt,
	}
}

func versionFromModel(m VersionModel) domain.Version {
	return domain.Version{
		ID:                m.ID,
		DocumentID:        m.DocumentID,
		VersionNumber:     m.VersionNumber,
		StoredFilename:    m.StoredFilename,
		StorageKey:        m.StorageKey,
		Size:              m.Size,
		MimeType:          m.MimeType,
		Checksum:          m.Checksum,
		UploadedBy:        m.UploadedBy,
		ChangeDescription: m.ChangeDescription,
		Metadata:          metadataFromJSON(m.Metadata),
		Active:            m.Active,
		DownloadCount:     m.DownloadCount,
		CreatedAt:         m.CreatedAt,
	}
}

func auditToModel(e domain.AuditEntry) AuditModel {
	return AuditModel{
		ID:           e.ID,
		ActorID:      e.ActorID,
		Action:       string(e.Action),
		ResourceKind: e.ResourceKind,
		ResourceID:   e.ResourceID,
		Details:      mapToJSON(e.Details),
		IP:           e.IP,
		UserAgent:    e.UserAgent,
		SessionID:    e.SessionID,
		Outcome:      string(e.Outcome),
		ErrorMessage: e.ErrorMessage,
		DurationMS:   e.DurationMS,
		CreatedAt:    e.CreatedAt,
	}
}

func auditFromModel(m AuditModel) domain.AuditEntry {
	return domain.AuditEntry{
		ID:           m.ID,
		ActorID:      m.ActorID,
		Action:       domain.Action(m.Action),
		ResourceKind: m.ResourceKind,
		ResourceID:   m.ResourceID,
		Details:      mapFromJSON(m.Details),
		IP:           m.IP,
		UserAgent:    m.UserAgent,
		SessionID:    m.SessionID,
		Outcome:      domain.Outcome(m.Outcome),
		ErrorMessage: m.ErrorMessage,
		DurationMS:   m.DurationMS,
		CreatedAt:    m.CreatedAt,
	}
}
