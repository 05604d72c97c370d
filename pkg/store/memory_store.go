package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"docvault/pkg/domain"
)

// MemoryStore keeps all collections in-process. It backs service tests and
// mirrors the GormStore semantics, including the duplicate-version backstop.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	email      map[string]string // email -> user ID
	categories map[string]domain.Category
	documents  map[string]domain.Document
	versions   map[string][]domain.Version // document ID -> versions
	audits     []domain.AuditEntry
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		email:      make(map[string]string),
		categories: make(map[string]domain.Category),
		documents:  make(map[string]domain.Document),
		versions:   make(map[string][]domain.Version),
	}
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// ListUsers returns all users ordered by creation time.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// SaveCategory stores or replaces a category node.
func (m *MemoryStore) SaveCategory(c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.categories {
		if id != c.ID && existing.Slug == c.Slug {
			return ErrDuplicate
		}
	}
	c.Children = nil
	m.categories[c.ID] = c
	return nil
}

// GetCategory returns a category by ID.
func (m *MemoryStore) GetCategory(id string) (domain.Category, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	return c, ok, nil
}

// GetCategoryBySlug returns a category by slug.
func (m *MemoryStore) GetCategoryBySlug(slug string) (domain.Category, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.categories {
		if c.Slug == slug {
			return c, true, nil
		}
	}
	return domain.Category{}, false, nil
}

// ListCategories returns categories ordered by name.
func (m *MemoryStore) ListCategories(includeInactive bool) ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		if !includeInactive && !c.Active {
			continue
		}
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

// CountActiveChildren counts active direct children.
func (m *MemoryStore) CountActiveChildren(parentID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, c := range m.categories {
		if c.ParentID == parentID && c.Active {
			count++
		}
	}
	return count, nil
}

// CountLiveDocuments counts non-deleted documents in a category.
func (m *MemoryStore) CountLiveDocuments(categoryID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, d := range m.documents {
		if d.CategoryID == categoryID && !d.IsDeleted {
			count++
		}
	}
	return count, nil
}

// AdjustDocumentCount applies a best-effort delta, floored at zero.
func (m *MemoryStore) AdjustDocumentCount(categoryID string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[categoryID]
	if !ok {
		return nil
	}
	c.DocumentCount += delta
	if c.DocumentCount < 0 {
		c.DocumentCount = 0
	}
	c.UpdatedAt = time.Now().UTC()
	m.categories[categoryID] = c
	return nil
}

// SaveDocument stores or replaces a document record.
func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[d.ID] = d
	return nil
}

// GetDocument returns a document row regardless of its soft-delete flag.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	return d, ok, nil
}

func contains(values []string, v string) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}

func matchesFilter(d domain.Document, f DocumentFilter) bool {
	if !f.IncludeDeleted && d.IsDeleted {
		return false
	}
	if f.CategoryID != "" && d.CategoryID != f.CategoryID {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.UploadedBy != "" && d.UploadedBy != f.UploadedBy {
		return false
	}
	if f.Tag != "" && !contains(d.Tags, f.Tag) {
		return false
	}
	if f.RestrictVisible {
		visible := d.UploadedBy == f.VisibleTo ||
			d.Public ||
			contains(d.Permissions.Read, f.VisibleTo)
		if !visible && f.Status == "" {
			visible = d.Status == domain.StatusApproved
		}
		if !visible {
			return false
		}
	}
	return true
}

// ListDocuments applies the filter and returns documents newest first.
func (m *MemoryStore) ListDocuments(f DocumentFilter) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0)
	for _, d := range m.documents {
		if matchesFilter(d, f) {
			res = append(res, d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(res) {
			return nil, nil
		}
		res = res[f.Offset:]
	}
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

// IncrementDocumentCounter bumps one of the whitelisted counters.
func (m *MemoryStore) IncrementDocumentCounter(id, counter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil
	}
	switch counter {
	case CounterViews:
		d.ViewCount++
	case CounterDownloads:
		d.DownloadCount++
	case CounterShares:
		d.ShareCount++
	default:
		return fmt.Errorf("unknown document counter %q", counter)
	}
	m.documents[id] = d
	return nil
}

// CreateVersion appends a version; duplicate numbers yield ErrDuplicate.
func (m *MemoryStore) CreateVersion(v domain.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.versions[v.DocumentID] {
		if existing.VersionNumber == v.VersionNumber {
			return ErrDuplicate
		}
	}
	m.versions[v.DocumentID] = append(m.versions[v.DocumentID], v)
	return nil
}

// GetVersion returns one version of a document.
func (m *MemoryStore) GetVersion(documentID string, number int) (domain.Version, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.versions[documentID] {
		if v.VersionNumber == number {
			return v, true, nil
		}
	}
	return domain.Version{}, false, nil
}

// ListVersions returns the version history in ascending order.
func (m *MemoryStore) ListVersions(documentID string) ([]domain.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := append([]domain.Version(nil), m.versions[documentID]...)
	sort.Slice(res, func(i, j int) bool { return res[i].VersionNumber < res[j].VersionNumber })
	return res, nil
}

// MaxVersionNumber returns the highest version number, 0 when none exist.
func (m *MemoryStore) MaxVersionNumber(documentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, v := range m.versions[documentID] {
		if v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	return max, nil
}

// SetVersionActive flips the active flag on one version.
func (m *MemoryStore) SetVersionActive(documentID string, number int, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.versions[documentID]
	for i, v := range versions {
		if v.VersionNumber == number {
			versions[i].Active = active
			return nil
		}
	}
	return nil
}

// IncrementVersionDownloads bumps a version download counter.
func (m *MemoryStore) IncrementVersionDownloads(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for docID, versions := range m.versions {
		for i, v := range versions {
			if v.ID == id {
				m.versions[docID][i].DownloadCount++
				return nil
			}
		}
	}
	return nil
}

// AppendAudit records an entry; entries are never mutated afterwards.
func (m *MemoryStore) AppendAudit(e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, e)
	return nil
}

func matchesAuditFilter(e domain.AuditEntry, f AuditFilter) bool {
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Kind != "" && e.ResourceKind != f.Kind {
		return false
	}
	return true
}

func (m *MemoryStore) listAudit(f AuditFilter, match func(domain.AuditEntry) bool) []domain.AuditEntry {
	res := make([]domain.AuditEntry, 0)
	for _, e := range m.audits {
		if match(e) && matchesAuditFilter(e, f) {
			if u, ok := m.users[e.ActorID]; ok {
				e.ActorName = u.Email
			}
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(res) > limit {
		res = res[:limit]
	}
	return res
}

// ListAuditByActor returns an actor's activity, newest first.
func (m *MemoryStore) ListAuditByActor(actorID string, f AuditFilter) ([]domain.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAudit(f, func(e domain.AuditEntry) bool { return e.ActorID == actorID }), nil
}

// ListAuditByResource returns a resource's activity, newest first.
func (m *MemoryStore) ListAuditByResource(kind, id string, f AuditFilter) ([]domain.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAudit(f, func(e domain.AuditEntry) bool {
		return e.ResourceKind == kind && e.ResourceID == id
	}), nil
}

// AuditStats aggregates counts and mean duration by action and outcome.
func (m *MemoryStore) AuditStats(from, to time.Time) ([]AuditStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type key struct {
		action  domain.Action
		outcome domain.Outcome
	}
	totals := make(map[key]*AuditStat)
	sums := make(map[key]int64)
	for _, e := range m.audits {
		if !from.IsZero() && e.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.CreatedAt.After(to) {
			continue
		}
		k := key{e.Action, e.Outcome}
		stat, ok := totals[k]
		if !ok {
			stat = &AuditStat{Action: e.Action, Outcome: e.Outcome}
			totals[k] = stat
		}
		stat.Count++
		sums[k] += e.DurationMS
	}
	res := make([]AuditStat, 0, len(totals))
	for k, stat := range totals {
		if stat.Count > 0 {
			stat.AvgDurationMS = float64(sums[k]) / float64(stat.Count)
		}
		res = append(res, *stat)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Action != res[j].Action {
			return strings.Compare(string(res[i].Action), string(res[j].Action)) < 0
		}
		return strings.Compare(string(res[i].Outcome), string(res[j].Outcome)) < 0
	})
	return res, nil
}
