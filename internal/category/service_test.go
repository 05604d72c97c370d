package category

import (
	"testing"

	"docvault/pkg/apperr"
	"docvault/pkg/domain"
	"docvault/pkg/store"
)

func newService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st), st
}

func TestSlugify(t *testing.T) {
	cases := []struct{ name, want string }{
		{"Financial Reports", "financial-reports"},
		{"  Q3 / 2026  ", "q3-2026"},
		{"Émission", "mission"},
		{"---", ""},
	}
	for _, c := range cases {
		if got := slugify(c.name); got != c.want {
			t.Errorf("slugify(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestCreateDerivesSlugLevelPath(t *testing.T) {
	svc, _ := newService(t)
	root, err := svc.Create(CreateInput{Name: "Financial Reports"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if root.Slug != "financial-reports" || root.Level != 0 || root.Path != "financial-reports" {
		t.Fatalf("root = %+v", root)
	}
	child, err := svc.Create(CreateInput{Name: "Quarterly", ParentID: root.ID})
	if err != nil {
		t.Fatalf("Create(child) error = %v", err)
	}
	if child.Level != 1 || child.Path != "financial-reports/quarterly" {
		t.Fatalf("child = %+v", child)
	}
}

func TestCreateSuffixesDuplicateSlug(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Create(CreateInput{Name: "Reports"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := svc.Create(CreateInput{Name: "Reports"})
	if err != nil {
		t.Fatalf("Create(second) error = %v", err)
	}
	if second.Slug != "reports-1" {
		t.Fatalf("second slug = %q, want reports-1", second.Slug)
	}
	third, err := svc.Create(CreateInput{Name: "reports"})
	if err != nil {
		t.Fatalf("Create(third) error = %v", err)
	}
	if third.Slug != "reports-2" {
		t.Fatalf("third slug = %q, want reports-2", third.Slug)
	}
}

func TestCreateSlugCollisionIncludesInactive(t *testing.T) {
	svc, _ := newService(t)
	first, err := svc.Create(CreateInput{Name: "Archive"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := svc.Delete(first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	second, err := svc.Create(CreateInput{Name: "Archive"})
	if err != nil {
		t.Fatalf("Create(second) error = %v", err)
	}
	if second.Slug != "archive-1" {
		t.Fatalf("slug = %q, want archive-1 (inactive slugs still reserved)", second.Slug)
	}
}

func TestCreateRejectsMissingParent(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(CreateInput{Name: "Orphan", ParentID: "nope"})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("Create() error = %v, want not-found", err)
	}
}

func TestUpdateRenamePropagatesPaths(t *testing.T) {
	svc, _ := newService(t)
	root, _ := svc.Create(CreateInput{Name: "Finance"})
	mid, _ := svc.Create(CreateInput{Name: "Reports", ParentID: root.ID})
	leaf, _ := svc.Create(CreateInput{Name: "Q3", ParentID: mid.ID})

	name := "Accounting"
	if _, err := svc.Update(root.ID, UpdateInput{Name: &name}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := svc.Get(leaf.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Path != "accounting/reports/q3" || got.Level != 2 {
		t.Fatalf("leaf after rename = %+v", got)
	}
}

func TestUpdateReparentRecomputesLevels(t *testing.T) {
	svc, _ := newService(t)
	a, _ := svc.Create(CreateInput{Name: "A"})
	b, _ := svc.Create(CreateInput{Name: "B", ParentID: a.ID})
	c, _ := svc.Create(CreateInput{Name: "C", ParentID: b.ID})

	// Move B to the root.
	empty := ""
	if _, err := svc.Update(b.ID, UpdateInput{ParentID: &empty}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	gotB, _ := svc.Get(b.ID)
	if gotB.Level != 0 || gotB.Path != "b" {
		t.Fatalf("b after move = %+v", gotB)
	}
	gotC, _ := svc.Get(c.ID)
	if gotC.Level != 1 || gotC.Path != "b/c" {
		t.Fatalf("c after move = %+v", gotC)
	}
}

func TestUpdateRejectsSelfParent(t *testing.T) {
	svc, _ := newService(t)
	a, _ := svc.Create(CreateInput{Name: "A"})
	_, err := svc.Update(a.ID, UpdateInput{ParentID: &a.ID})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("Update() error = %v, want validation", err)
	}
}

func TestUpdateRejectsDescendantParent(t *testing.T) {
	svc, _ := newService(t)
	a, _ := svc.Create(CreateInput{Name: "A"})
	b, _ := svc.Create(CreateInput{Name: "B", ParentID: a.ID})
	_, err := svc.Update(a.ID, UpdateInput{ParentID: &b.ID})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("Update() error = %v, want validation (cycle)", err)
	}
}

func TestDeleteGuards(t *testing.T) {
	svc, st := newService(t)
	parent, _ := svc.Create(CreateInput{Name: "Parent"})
	child, _ := svc.Create(CreateInput{Name: "Child", ParentID: parent.ID})

	err := svc.Delete(parent.ID)
	if !apperr.IsKind(err, apperr.KindConstraint) {
		t.Fatalf("Delete(parent) error = %v, want constraint", err)
	}

	if err := st.SaveDocument(domain.Document{ID: "d-1", CategoryID: child.ID, Status: domain.StatusApproved}); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}
	err = svc.Delete(child.ID)
	if !apperr.IsKind(err, apperr.KindConstraint) {
		t.Fatalf("Delete(child with doc) error = %v, want constraint", err)
	}

	// Soft-deleted documents do not block.
	doc, _, _ := st.GetDocument("d-1")
	doc.IsDeleted = true
	if err := st.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}
	if err := svc.Delete(child.ID); err != nil {
		t.Fatalf("Delete(child) error = %v", err)
	}
	if err := svc.Delete(parent.ID); err != nil {
		t.Fatalf("Delete(parent) error = %v", err)
	}
	if err := svc.Delete(parent.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("Delete(parent twice) error = %v, want not-found", err)
	}
}

func TestUpdateDeactivationSharesDeleteGuard(t *testing.T) {
	svc, st := newService(t)
	cat, _ := svc.Create(CreateInput{Name: "Ledgers"})
	if err := st.SaveDocument(domain.Document{ID: "d-1", CategoryID: cat.ID, Status: domain.StatusApproved}); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}

	inactive := false
	_, err := svc.Update(cat.ID, UpdateInput{Active: &inactive})
	if !apperr.IsKind(err, apperr.KindConstraint) {
		t.Fatalf("Update(active=false) error = %v, want constraint", err)
	}
	got, _ := svc.Get(cat.ID)
	if !got.Active {
		t.Fatalf("category was deactivated past the guard")
	}

	doc, _, _ := st.GetDocument("d-1")
	doc.IsDeleted = true
	if err := st.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}
	if _, err := svc.Update(cat.ID, UpdateInput{Active: &inactive}); err != nil {
		t.Fatalf("Update(active=false) error = %v", err)
	}

	// Reactivation is not guarded.
	active := true
	if _, err := svc.Update(cat.ID, UpdateInput{Active: &active}); err != nil {
		t.Fatalf("Update(active=true) error = %v", err)
	}
}

func TestBuildTreeOrdersSiblingsByName(t *testing.T) {
	svc, _ := newService(t)
	root, _ := svc.Create(CreateInput{Name: "Root"})
	svc.Create(CreateInput{Name: "Zulu", ParentID: root.ID})
	svc.Create(CreateInput{Name: "Alpha", ParentID: root.ID})
	svc.Create(CreateInput{Name: "Mike", ParentID: root.ID})

	roots, err := svc.BuildTree()
	if err != nil {
		t.Fatalf("BuildTree() error = %v", err)
	}
	if len(roots) != 1 || roots[0].Name != "Root" {
		t.Fatalf("roots = %+v", roots)
	}
	var names []string
	for _, c := range roots[0].Children {
		names = append(names, c.Name)
	}
	want := []string{"Alpha", "Mike", "Zulu"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("children = %v, want %v", names, want)
		}
	}
}

func TestBuildTreeExcludesInactive(t *testing.T) {
	svc, _ := newService(t)
	svc.Create(CreateInput{Name: "Keep"})
	gone, _ := svc.Create(CreateInput{Name: "Gone"})
	if err := svc.Delete(gone.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	roots, err := svc.BuildTree()
	if err != nil {
		t.Fatalf("BuildTree() error = %v", err)
	}
	if len(roots) != 1 || roots[0].Name != "Keep" {
		t.Fatalf("roots = %+v", roots)
	}
}

func TestFullPathJoinsNames(t *testing.T) {
	svc, _ := newService(t)
	a, _ := svc.Create(CreateInput{Name: "Financial Reports"})
	b, _ := svc.Create(CreateInput{Name: "Quarterly", ParentID: a.ID})
	c, _ := svc.Create(CreateInput{Name: "2026", ParentID: b.ID})

	got, err := svc.FullPath(c.ID)
	if err != nil {
		t.Fatalf("FullPath() error = %v", err)
	}
	if got != "Financial Reports / Quarterly / 2026" {
		t.Fatalf("FullPath() = %q", got)
	}
}

func TestNormalizeExtensions(t *testing.T) {
	got := normalizeExtensions([]string{".PDF", "docx", "pdf", " ", "Txt"})
	want := []string{"pdf", "docx", "txt"}
	if len(got) != len(want) {
		t.Fatalf("normalizeExtensions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalizeExtensions() = %v, want %v", got, want)
		}
	}
}
