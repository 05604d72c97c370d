// Package category manages the hierarchical category tree: slug derivation,
// level and path maintenance, guarded deletion, and tree assembly.
package category

import (
	"sort"
	"strings"
	"time"

	"docvault/internal/util"
	"docvault/pkg/apperr"
	"docvault/pkg/domain"
	"docvault/pkg/store"
)

// Service owns category reads and writes. Upload constraints declared on a
// category apply to that category only; nothing is inherited.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CreateInput carries the caller-settable fields of a new category.
type CreateInput struct {
	Name             string
	Description      string
	ParentID         string
	AllowedFileTypes []string
	MaxFileSize      int64
	RequiresApproval bool
	Permissions      domain.CategoryPermissions
}

// Create derives slug, level, and path from the name and parent. The slug is
// unique across all categories including inactive ones.
func (s *Service) Create(in CreateInput) (domain.Category, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Category{}, apperr.ValidationFields("invalid category",
			apperr.FieldProblem{Field: "name", Problem: "must not be empty"})
	}
	if in.MaxFileSize < 0 {
		return domain.Category{}, apperr.ValidationFields("invalid category",
			apperr.FieldProblem{Field: "maxFileSize", Problem: "must not be negative"})
	}

	level, parentPath := 0, ""
	if in.ParentID != "" {
		parent, ok, err := s.store.GetCategory(in.ParentID)
		if err != nil {
			return domain.Category{}, apperr.Infrastructure(err, "category lookup failed")
		}
		if !ok || !parent.Active {
			return domain.Category{}, apperr.NotFound("parent category not found")
		}
		level = parent.Level + 1
		parentPath = parent.Path
	}

	slug, err := uniqueSlug(s.store, in.Name, "")
	if err != nil {
		return domain.Category{}, err
	}

	now := time.Now().UTC()
	c := domain.Category{
		ID:               util.NewID(),
		Name:             strings.TrimSpace(in.Name),
		Slug:             slug,
		Description:      in.Description,
		ParentID:         in.ParentID,
		Level:            level,
		Path:             joinPath(parentPath, slug),
		AllowedFileTypes: normalizeExtensions(in.AllowedFileTypes),
		MaxFileSize:      in.MaxFileSize,
		RequiresApproval: in.RequiresApproval,
		Permissions:      in.Permissions,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.SaveCategory(c); err != nil {
		if err == store.ErrDuplicate {
			return domain.Category{}, apperr.Conflict("category slug %q already exists", slug)
		}
		return domain.Category{}, apperr.Infrastructure(err, "category save failed")
	}
	return c, nil
}

// UpdateInput carries the mutable fields of a category. Nil pointers leave the
// corresponding field untouched.
type UpdateInput struct {
	Name             *string
	Description      *string
	ParentID         *string
	AllowedFileTypes *[]string
	MaxFileSize      *int64
	RequiresApproval *bool
	Permissions      *domain.CategoryPermissions
	Active           *bool
}

// Update applies the changed fields. A name or parent change re-derives slug,
// level, and path and rewrites the paths of every descendant.
func (s *Service) Update(id string, in UpdateInput) (domain.Category, error) {
	c, ok, err := s.store.GetCategory(id)
	if err != nil {
		return domain.Category{}, apperr.Infrastructure(err, "category lookup failed")
	}
	if !ok {
		return domain.Category{}, apperr.NotFound("category not found")
	}

	renamed := false
	if in.Name != nil && strings.TrimSpace(*in.Name) != c.Name {
		if strings.TrimSpace(*in.Name) == "" {
			return domain.Category{}, apperr.ValidationFields("invalid category",
				apperr.FieldProblem{Field: "name", Problem: "must not be empty"})
		}
		c.Name = strings.TrimSpace(*in.Name)
		renamed = true
	}
	reparented := in.ParentID != nil && *in.ParentID != c.ParentID
	if reparented {
		if *in.ParentID == c.ID {
			return domain.Category{}, apperr.ValidationFields("invalid category",
				apperr.FieldProblem{Field: "parentId", Problem: "category cannot be its own parent"})
		}
		c.ParentID = *in.ParentID
	}

	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.AllowedFileTypes != nil {
		c.AllowedFileTypes = normalizeExtensions(*in.AllowedFileTypes)
	}
	if in.MaxFileSize != nil {
		if *in.MaxFileSize < 0 {
			return domain.Category{}, apperr.ValidationFields("invalid category",
				apperr.FieldProblem{Field: "maxFileSize", Problem: "must not be negative"})
		}
		c.MaxFileSize = *in.MaxFileSize
	}
	if in.RequiresApproval != nil {
		c.RequiresApproval = *in.RequiresApproval
	}
	if in.Permissions != nil {
		c.Permissions = *in.Permissions
	}
	if in.Active != nil {
		if !*in.Active && c.Active {
			if err := s.guardDeactivation(c.ID); err != nil {
				return domain.Category{}, err
			}
		}
		c.Active = *in.Active
	}

	if renamed || reparented {
		all, err := s.store.ListCategories(true)
		if err != nil {
			return domain.Category{}, apperr.Infrastructure(err, "category list failed")
		}
		byID := make(map[string]domain.Category, len(all))
		for _, other := range all {
			byID[other.ID] = other
		}

		level, parentPath := 0, ""
		if c.ParentID != "" {
			parent, ok := byID[c.ParentID]
			if !ok || !parent.Active {
				return domain.Category{}, apperr.NotFound("parent category not found")
			}
			if isDescendant(byID, c.ID, parent.ID) {
				return domain.Category{}, apperr.ValidationFields("invalid category",
					apperr.FieldProblem{Field: "parentId", Problem: "parent cannot be a descendant"})
			}
			level = parent.Level + 1
			parentPath = parent.Path
		}
		if renamed {
			slug, err := uniqueSlug(s.store, c.Name, c.ID)
			if err != nil {
				return domain.Category{}, err
			}
			c.Slug = slug
		}
		c.Level = level
		c.Path = joinPath(parentPath, c.Slug)
		byID[c.ID] = c

		c.UpdatedAt = time.Now().UTC()
		if err := s.store.SaveCategory(c); err != nil {
			return domain.Category{}, apperr.Infrastructure(err, "category save failed")
		}
		if err := s.rewriteDescendants(byID, c); err != nil {
			return domain.Category{}, err
		}
		return c, nil
	}

	c.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveCategory(c); err != nil {
		return domain.Category{}, apperr.Infrastructure(err, "category save failed")
	}
	return c, nil
}

// rewriteDescendants walks the subtree under root and re-derives each child's
// level and path from its (possibly just-moved) parent.
func (s *Service) rewriteDescendants(byID map[string]domain.Category, root domain.Category) error {
	children := make(map[string][]domain.Category)
	for _, c := range byID {
		if c.ParentID != "" {
			children[c.ParentID] = append(children[c.ParentID], c)
		}
	}
	queue := []domain.Category{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range children[parent.ID] {
			child.Level = parent.Level + 1
			child.Path = joinPath(parent.Path, child.Slug)
			child.UpdatedAt = time.Now().UTC()
			if err := s.store.SaveCategory(child); err != nil {
				return apperr.Infrastructure(err, "category save failed")
			}
			queue = append(queue, child)
		}
	}
	return nil
}

// Delete deactivates a category. It refuses while live documents or active
// children remain, reporting both counts.
func (s *Service) Delete(id string) error {
	c, ok, err := s.store.GetCategory(id)
	if err != nil {
		return apperr.Infrastructure(err, "category lookup failed")
	}
	if !ok || !c.Active {
		return apperr.NotFound("category not found")
	}
	if err := s.guardDeactivation(id); err != nil {
		return err
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveCategory(c); err != nil {
		return apperr.Infrastructure(err, "category save failed")
	}
	return nil
}

// guardDeactivation refuses while live documents or active children remain,
// reporting both counts. Delete and Update(active=false) share it so neither
// path can orphan content.
func (s *Service) guardDeactivation(id string) error {
	docs, err := s.store.CountLiveDocuments(id)
	if err != nil {
		return apperr.Infrastructure(err, "document count failed")
	}
	children, err := s.store.CountActiveChildren(id)
	if err != nil {
		return apperr.Infrastructure(err, "child count failed")
	}
	if docs > 0 || children > 0 {
		return apperr.Constraint("category has %d documents and %d child categories", docs, children)
	}
	return nil
}

// Get returns one category.
func (s *Service) Get(id string) (domain.Category, error) {
	c, ok, err := s.store.GetCategory(id)
	if err != nil {
		return domain.Category{}, apperr.Infrastructure(err, "category lookup failed")
	}
	if !ok {
		return domain.Category{}, apperr.NotFound("category not found")
	}
	return c, nil
}

// List returns categories as a flat slice ordered by name.
func (s *Service) List(includeInactive bool) ([]domain.Category, error) {
	cats, err := s.store.ListCategories(includeInactive)
	if err != nil {
		return nil, apperr.Infrastructure(err, "category list failed")
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

// BuildTree assembles the active categories into root-level trees with one
// bulk fetch. Siblings are ordered by name at every depth.
func (s *Service) BuildTree() ([]*domain.Category, error) {
	cats, err := s.store.ListCategories(false)
	if err != nil {
		return nil, apperr.Infrastructure(err, "category list failed")
	}
	nodes := make(map[string]*domain.Category, len(cats))
	for i := range cats {
		c := cats[i]
		c.Children = nil
		nodes[c.ID] = &c
	}
	var roots []*domain.Category
	for _, n := range nodes {
		if n.ParentID != "" {
			if parent, ok := nodes[n.ParentID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	var sortLevel func(level []*domain.Category)
	sortLevel = func(level []*domain.Category) {
		sort.Slice(level, func(i, j int) bool { return level[i].Name < level[j].Name })
		for _, n := range level {
			sortLevel(n.Children)
		}
	}
	sortLevel(roots)
	return roots, nil
}

// FullPath returns the ancestor chain's display names joined by " / ".
func (s *Service) FullPath(id string) (string, error) {
	names := make([]string, 0, 4)
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		seen[id] = true
		c, ok, err := s.store.GetCategory(id)
		if err != nil {
			return "", apperr.Infrastructure(err, "category lookup failed")
		}
		if !ok {
			return "", apperr.NotFound("category not found")
		}
		names = append(names, c.Name)
		id = c.ParentID
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, " / "), nil
}

func joinPath(parentPath, slug string) string {
	if parentPath == "" {
		return slug
	}
	return parentPath + "/" + slug
}

// isDescendant reports whether candidate sits in the subtree rooted at
// ancestorID.
func isDescendant(byID map[string]domain.Category, ancestorID, candidateID string) bool {
	for candidateID != "" {
		c, ok := byID[candidateID]
		if !ok {
			return false
		}
		if c.ParentID == ancestorID {
			return true
		}
		candidateID = c.ParentID
	}
	return false
}

// normalizeExtensions lowercases and deduplicates an extension list, dropping
// any leading dot. An empty result means the category accepts any type.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]bool)
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
