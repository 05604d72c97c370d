package store

import (
	"errors"
	"time"

	"docvault/pkg/domain"
)

// ErrDuplicate is returned when an insert violates a unique constraint,
// e.g. two writers racing on the same (document, version) pair.
var ErrDuplicate = errors.New("duplicate key")

// DocumentFilter narrows document listings. Zero values mean "no constraint".
type DocumentFilter struct {
	CategoryID string
	Status     domain.DocumentStatus
	UploadedBy string
	Tag        string

	// RestrictVisible limits results to what the user VisibleTo may see:
	// owned, read-permitted, public, or (when Status is empty) approved.
	RestrictVisible bool
	VisibleTo       string

	IncludeDeleted bool
	Limit          int
	Offset         int
}

// AuditFilter narrows audit queries.
type AuditFilter struct {
	From   time.Time
	To     time.Time
	Action domain.Action
	Kind   string
	Limit  int
}

// AuditStat is one row of the system activity aggregation.
type AuditStat struct {
	Action        domain.Action  `json:"action"`
	Outcome       domain.Outcome `json:"outcome"`
	Count         int64          `json:"count"`
	AvgDurationMS float64        `json:"avgDurationMs"`
}

// Store defines persistence operations for identities, categories, documents,
// versions, and audit entries.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)

	// categories
	SaveCategory(domain.Category) error
	GetCategory(id string) (domain.Category, bool, error)
	GetCategoryBySlug(slug string) (domain.Category, bool, error)
	ListCategories(includeInactive bool) ([]domain.Category, error)
	CountActiveChildren(parentID string) (int64, error)
	CountLiveDocuments(categoryID string) (int64, error)
	AdjustDocumentCount(categoryID string, delta int64) error

	// documents
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocuments(DocumentFilter) ([]domain.Document, error)
	IncrementDocumentCounter(id, counter string) error

	// versions
	CreateVersion(domain.Version) error
	GetVersion(documentID string, number int) (domain.Version, bool, error)
	ListVersions(documentID string) ([]domain.Version, error)
	MaxVersionNumber(documentID string) (int, error)
	SetVersionActive(documentID string, number int, active bool) error
	IncrementVersionDownloads(id string) error

	// audit
	AppendAudit(domain.AuditEntry) error
	ListAuditByActor(actorID string, f AuditFilter) ([]domain.AuditEntry, error)
	ListAuditByResource(kind, id string, f AuditFilter) ([]domain.AuditEntry, error)
	AuditStats(from, to time.Time) ([]AuditStat, error)
}

// Document counter column names accepted by IncrementDocumentCounter.
const (
	CounterViews     = "view_count"
	CounterDownloads = "download_count"
	CounterShares    = "share_count"
)
