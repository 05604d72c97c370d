package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docvault/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &CategoryModel{}, &DocumentModel{}, &VersionModel{}, &AuditModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser creates or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "role", "active", "department", "phone", "last_login_at", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// SaveCategory creates or updates a category node.
func (s *GormStore) SaveCategory(c domain.Category) error {
	model := categoryToModel(c)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// GetCategory returns a category by ID.
func (s *GormStore) GetCategory(id string) (domain.Category, bool, error) {
	var model CategoryModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Category{}, false, nil
		}
		return domain.Category{}, false, err
	}
	return categoryFromModel(model), true, nil
}

// GetCategoryBySlug returns a category by slug.
func (s *GormStore) GetCategoryBySlug(slug string) (domain.Category, bool, error) {
	var model CategoryModel
	if err := s.db.First(&model, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Category{}, false, nil
		}
		return domain.Category{}, false, err
	}
	return categoryFromModel(model), true, nil
}

// ListCategories returns categories ordered by name.
func (s *GormStore) ListCategories(includeInactive bool) ([]domain.Category, error) {
	var models []CategoryModel
	tx := s.db.Order("name ASC")
	if !includeInactive {
		tx = tx.Where("active = ?", true)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Category, 0, len(models))
	for _, m := range models {
		res = append(res, categoryFromModel(m))
	}
	return res, nil
}

// CountActiveChildren counts active direct children of a category.
func (s *GormStore) CountActiveChildren(parentID string) (int64, error) {
	var count int64
	err := s.db.Model(&CategoryModel{}).
		Where("parent_id = ? AND active = ?", parentID, true).
		Count(&count).Error
	return count, err
}

// CountLiveDocuments counts non-deleted documents in a category.
func (s *GormStore) CountLiveDocuments(categoryID string) (int64, error) {
	var count int64
	err := s.db.Model(&DocumentModel{}).
		Where("category_id = ? AND is_deleted = ?", categoryID, false).
		Count(&count).Error
	return count, err
}

// AdjustDocumentCount applies a best-effort delta, floored at zero.
func (s *GormStore) AdjustDocumentCount(categoryID string, delta int64) error {
	return s.db.Model(&CategoryModel{}).
		Where("id = ?", categoryID).
		Updates(map[string]any{
			"document_count": gorm.Expr("GREATEST(document_count + ?, 0)", delta),
			"updated_at":     time.Now().UTC(),
		}).Error
}

// SaveDocument creates or updates a document record.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&model).Error
}

// GetDocument returns a document row regardless of its soft-delete flag;
// callers decide whether deleted rows are visible.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

func jsonMember(value string) string {
	raw, _ := json.Marshal([]string{value})
	return string(raw)
}

// ListDocuments applies the filter and returns documents newest first.
func (s *GormStore) ListDocuments(f DocumentFilter) ([]domain.Document, error) {
	tx := s.db.Model(&DocumentModel{}).Order("created_at DESC")
	if !f.IncludeDeleted {
		tx = tx.Where("is_deleted = ?", false)
	}
	if f.CategoryID != "" {
		tx = tx.Where("category_id = ?", f.CategoryID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", string(f.Status))
	}
	if f.UploadedBy != "" {
		tx = tx.Where("uploaded_by = ?", f.UploadedBy)
	}
	if f.Tag != "" {
		tx = tx.Where("tags @> ?", jsonMember(f.Tag))
	}
	if f.RestrictVisible {
		visible := s.db.
			Where("uploaded_by = ?", f.VisibleTo).
			Or("public = ?", true).
			Or("perm_read @> ?", jsonMember(f.VisibleTo))
		if f.Status == "" {
			visible = visible.Or("status = ?", string(domain.StatusApproved))
		}
		tx = tx.Where(visible)
	}
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	}
	if f.Offset > 0 {
		tx = tx.Offset(f.Offset)
	}
	var models []DocumentModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// IncrementDocumentCounter bumps one of the whitelisted counters.
func (s *GormStore) IncrementDocumentCounter(id, counter string) error {
	switch counter {
	case CounterViews, CounterDownloads, CounterShares:
	default:
		return fmt.Errorf("unknown document counter %q", counter)
	}
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Update(counter, gorm.Expr(counter+" + 1")).Error
}

// CreateVersion inserts a version row. The unique (document_id, version_number)
// index is the backstop for concurrent allocation; violations map to ErrDuplicate.
func (s *GormStore) CreateVersion(v domain.Version) error {
	model := versionToModel(v)
	err := s.db.Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// GetVersion returns one version of a document.
func (s *GormStore) GetVersion(documentID string, number int) (domain.Version, bool, error) {
	var model VersionModel
	err := s.db.First(&model, "document_id = ? AND version_number = ?", documentID, number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Version{}, false, nil
		}
		return domain.Version{}, false, err
	}
	return versionFromModel(model), true, nil
}

// ListVersions returns the version history in ascending order.
func (s *GormStore) ListVersions(documentID string) ([]domain.Version, error) {
	var models []VersionModel
	err := s.db.Where("document_id = ?", documentID).
		Order("version_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Version, 0, len(models))
	for _, m := range models {
		res = append(res, versionFromModel(m))
	}
	return res, nil
}

// MaxVersionNumber returns the highest version number, 0 when none exist.
func (s *GormStore) MaxVersionNumber(documentID string) (int, error) {
	var max int
	err := s.db.Model(&VersionModel{}).
		Where("document_id = ?", documentID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&max).Error
	return max, err
}

// SetVersionActive flips the active flag on one version.
func (s *GormStore) SetVersionActive(documentID string, number int, active bool) error {
	return s.db.Model(&VersionModel{}).
		Where("document_id = ? AND version_number = ?", documentID, number).
		Update("active", active).Error
}

// IncrementVersionDownloads bumps a version download counter.
func (s *GormStore) IncrementVersionDownloads(id string) error {
	return s.db.Model(&VersionModel{}).
		Where("id = ?", id).
		Update("download_count", gorm.Expr("download_count + 1")).Error
}

// AppendAudit inserts an audit entry. Entries are never updated or deleted.
func (s *GormStore) AppendAudit(e domain.AuditEntry) error {
	model := auditToModel(e)
	return s.db.Create(&model).Error
}

type auditRow struct {
	AuditModel
	ActorName string
}

func (s *GormStore) listAudit(f AuditFilter, conds func(*gorm.DB) *gorm.DB) ([]domain.AuditEntry, error) {
	tx := s.db.Table("audit_entries").
		Select("audit_entries.*, users.email AS actor_name").
		Joins("LEFT JOIN users ON users.id = audit_entries.actor_id").
		Order("audit_entries.created_at DESC")
	tx = conds(tx)
	if !f.From.IsZero() {
		tx = tx.Where("audit_entries.created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		tx = tx.Where("audit_entries.created_at <= ?", f.To)
	}
	if f.Action != "" {
		tx = tx.Where("audit_entries.action = ?", string(f.Action))
	}
	if f.Kind != "" {
		tx = tx.Where("audit_entries.resource_kind = ?", f.Kind)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var rows []auditRow
	if err := tx.Limit(limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := auditFromModel(row.AuditModel)
		entry.ActorName = row.ActorName
		res = append(res, entry)
	}
	return res, nil
}

// ListAuditByActor returns an actor's activity, newest first.
func (s *GormStore) ListAuditByActor(actorID string, f AuditFilter) ([]domain.AuditEntry, error) {
	return s.listAudit(f, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("audit_entries.actor_id = ?", actorID)
	})
}

// ListAuditByResource returns a resource's activity, newest first.
func (s *GormStore) ListAuditByResource(kind, id string, f AuditFilter) ([]domain.AuditEntry, error) {
	return s.listAudit(f, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("audit_entries.resource_kind = ? AND audit_entries.resource_id = ?", kind, id)
	})
}

// AuditStats aggregates counts and mean duration by action and outcome.
func (s *GormStore) AuditStats(from, to time.Time) ([]AuditStat, error) {
	type statRow struct {
		Action        string
		Outcome       string
		Count         int64
		AvgDurationMS float64
	}
	tx := s.db.Model(&AuditModel{}).
		Select("action, outcome, COUNT(*) AS count, AVG(duration_ms) AS avg_duration_ms").
		Group("action, outcome").
		Order("action ASC, outcome ASC")
	if !from.IsZero() {
		tx = tx.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		tx = tx.Where("created_at <= ?", to)
	}
	var rows []statRow
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]AuditStat, 0, len(rows))
	for _, row := range rows {
		res = append(res, AuditStat{
			Action:        domain.Action(row.Action),
			Outcome:       domain.Outcome(row.Outcome),
			Count:         row.Count,
			AvgDurationMS: row.AvgDurationMS,
		})
	}
	return res, nil
}
