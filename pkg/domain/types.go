package domain

import "time"

type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleUser    UserRole = "user"
)

type DocumentStatus string

const (
	StatusDraft    DocumentStatus = "draft"
	StatusPending  DocumentStatus = "pending"
	StatusApproved DocumentStatus = "approved"
	StatusRejected DocumentStatus = "rejected"
	StatusArchived DocumentStatus = "archived"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeWarning Outcome = "warning"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	Active       bool       `json:"active"`
	Department   string     `json:"department,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// CategoryPermissions holds per-capability user ID lists for a category.
type CategoryPermissions struct {
	Upload []string `json:"upload"`
	View   []string `json:"view"`
	Manage []string `json:"manage"`
}

type Category struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Slug             string              `json:"slug"`
	Description      string              `json:"description,omitempty"`
	ParentID         string              `json:"parentId,omitempty"`
	Level            int                 `json:"level"`
	Path             string              `json:"path"`
	AllowedFileTypes []string            `json:"allowedFileTypes"`
	MaxFileSize      int64               `json:"maxFileSize"`
	RequiresApproval bool                `json:"requiresApproval"`
	Permissions      CategoryPermissions `json:"permissions"`
	DocumentCount    int64               `json:"documentCount"`
	Active           bool                `json:"active"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`

	// Children is populated by tree assembly only, never persisted.
	Children []*Category `json:"children,omitempty"`
}

// DocumentPermissions holds per-capability user ID lists for a document.
type DocumentPermissions struct {
	Read   []string `json:"read"`
	Write  []string `json:"write"`
	Delete []string `json:"delete"`
}

type Document struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	OriginalFilename string              `json:"originalFilename"`
	StoredFilename   string              `json:"storedFilename"`
	StorageKey       string              `json:"-"`
	Size             int64               `json:"size"`
	MimeType         string              `json:"mimeType"`
	Extension        string              `json:"extension"`
	CategoryID       string              `json:"categoryId"`
	Tags             []string            `json:"tags,omitempty"`
	UploadedBy       string              `json:"uploadedBy"`
	Department       string              `json:"department,omitempty"`
	Version          int                 `json:"version"`
	Status           DocumentStatus      `json:"status"`
	ApprovedBy       string              `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time          `json:"approvedAt,omitempty"`
	RejectionReason  string              `json:"rejectionReason,omitempty"`
	ExpiresAt        *time.Time          `json:"expiresAt,omitempty"`
	Public           bool                `json:"public"`
	Permissions      DocumentPermissions `json:"permissions"`
	ViewCount        int64               `json:"viewCount"`
	DownloadCount    int64               `json:"downloadCount"`
	ShareCount       int64               `json:"shareCount"`
	IsDeleted        bool                `json:"isDeleted"`
	DeletedAt        *time.Time          `json:"deletedAt,omitempty"`
	DeletedBy        string              `json:"deletedBy,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// VersionMetadata carries best-effort fields extracted from file content.
type VersionMetadata struct {
	Author    string `json:"author,omitempty"`
	Title     string `json:"title,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Keywords  string `json:"keywords,omitempty"`
	PageCount int    `json:"pageCount,omitempty"`
	WordCount int    `json:"wordCount,omitempty"`
}

type Version struct {
	ID                string          `json:"id"`
	DocumentID        string          `json:"documentId"`
	VersionNumber     int             `json:"versionNumber"`
	StoredFilename    string          `json:"storedFilename"`
	StorageKey        string          `json:"-"`
	Size              int64           `json:"size"`
	MimeType          string          `json:"mimeType"`
	Checksum          string          `json:"checksum"`
	UploadedBy        string          `json:"uploadedBy"`
	ChangeDescription string          `json:"changeDescription,omitempty"`
	Metadata          VersionMetadata `json:"metadata"`
	Active            bool            `json:"active"`
	DownloadCount     int64           `json:"downloadCount"`
	CreatedAt         time.Time       `json:"createdAt"`
}

type AuditEntry struct {
	ID           string            `json:"id"`
	ActorID      string            `json:"actorId,omitempty"`
	ActorName    string            `json:"actorName,omitempty"`
	Action       Action            `json:"action"`
	ResourceKind string            `json:"resourceKind,omitempty"`
	ResourceID   string            `json:"resourceId,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	IP           string            `json:"ip,omitempty"`
	UserAgent    string            `json:"userAgent,omitempty"`
	SessionID    string            `json:"sessionId,omitempty"`
	Outcome      Outcome           `json:"outcome"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	DurationMS   int64             `json:"durationMs"`
	CreatedAt    time.Time         `json:"createdAt"`
}
