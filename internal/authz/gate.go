// Package authz is the single source of truth for authorization decisions:
// role requirements per action, ownership and permission-list checks on
// resources, and the visibility constraint applied to listings.
package authz

import (
	"docvault/pkg/apperr"
	"docvault/pkg/domain"
	"docvault/pkg/store"
)

// Capability names a document permission list.
type Capability string

const (
	CapRead   Capability = "read"
	CapWrite  Capability = "write"
	CapDelete Capability = "delete"
)

// requiredRoles maps role-gated actions to the roles that may perform them.
// Actions absent from the table carry no blanket role requirement and are
// decided by ownership/permission checks instead.
var requiredRoles = map[domain.Action][]domain.UserRole{
	domain.ActionCategoryCreate:    {domain.RoleAdmin, domain.RoleManager},
	domain.ActionCategoryDelete:    {domain.RoleAdmin},
	domain.ActionDocumentApprove:   {domain.RoleAdmin, domain.RoleManager},
	domain.ActionDocumentReject:    {domain.RoleAdmin, domain.RoleManager},
	domain.ActionDocumentArchive:   {domain.RoleAdmin, domain.RoleManager},
	domain.ActionUserCreate:        {domain.RoleAdmin},
	domain.ActionUserUpdate:        {domain.RoleAdmin},
	domain.ActionUserDeactivate:    {domain.RoleAdmin},
	domain.ActionSystemMaintenance: {domain.RoleAdmin},
}

// RequireRole denies actions whose required-role set excludes the actor.
func RequireRole(actor domain.User, action domain.Action) error {
	roles, gated := requiredRoles[action]
	if !gated {
		return nil
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return apperr.Authorization("role %s may not perform %s", actor.Role, action)
}

// IsElevated reports whether the actor has blanket resource access.
func IsElevated(actor domain.User) bool {
	return actor.Role == domain.RoleAdmin || actor.Role == domain.RoleManager
}

func inList(values []string, id string) bool {
	for _, v := range values {
		if v == id {
			return true
		}
	}
	return false
}

// CanAccessDocument decides resource-scoped document access. Soft-deleted
// documents report not-found before any ownership evaluation, so existence
// is never leaked through differing error codes.
func CanAccessDocument(actor domain.User, doc domain.Document, cap Capability) error {
	if doc.IsDeleted {
		return apperr.NotFound("document not found")
	}
	if IsElevated(actor) || actor.ID == doc.UploadedBy {
		return nil
	}
	var list []string
	switch cap {
	case CapRead:
		list = doc.Permissions.Read
		if doc.Public {
			return nil
		}
	case CapWrite:
		list = doc.Permissions.Write
	case CapDelete:
		list = doc.Permissions.Delete
	}
	if inList(list, actor.ID) {
		return nil
	}
	return apperr.Authorization("insufficient document permissions")
}

// CanUploadToCategory decides whether the actor may upload into a category.
func CanUploadToCategory(actor domain.User, cat domain.Category) error {
	if !cat.Active {
		return apperr.NotFound("category not found")
	}
	if IsElevated(actor) || inList(cat.Permissions.Upload, actor.ID) {
		return nil
	}
	// An empty upload list leaves the category open to every active user.
	if len(cat.Permissions.Upload) == 0 {
		return nil
	}
	return apperr.Authorization("insufficient category permissions")
}

// CanManageCategory decides per-category management rights: elevated roles
// or members of the category's manage list.
func CanManageCategory(actor domain.User, cat domain.Category) error {
	if IsElevated(actor) || inList(cat.Permissions.Manage, actor.ID) {
		return nil
	}
	return apperr.Authorization("insufficient category permissions")
}

// CanViewCategory decides whether a category is visible to the actor. An
// empty view list leaves the category visible to everyone; upload and manage
// list members always see the categories they are listed on.
func CanViewCategory(actor domain.User, cat domain.Category) bool {
	if IsElevated(actor) || len(cat.Permissions.View) == 0 {
		return true
	}
	return inList(cat.Permissions.View, actor.ID) ||
		inList(cat.Permissions.Upload, actor.ID) ||
		inList(cat.Permissions.Manage, actor.ID)
}

// CanViewUserActivity limits audit-by-actor queries to the actor themselves
// or an admin.
func CanViewUserActivity(actor domain.User, targetID string) error {
	if actor.Role == domain.RoleAdmin || actor.ID == targetID {
		return nil
	}
	return apperr.Authorization("may not view another user's activity")
}

// CanViewSystemActivity limits resource audit and system stats queries.
func CanViewSystemActivity(actor domain.User) error {
	if IsElevated(actor) {
		return nil
	}
	return apperr.Authorization("insufficient rights for audit queries")
}

// ListScope applies the listing visibility constraint for the actor onto a
// document filter: "user"-role actors see what they own, what they are
// read-permitted on, what is public, or (absent an explicit status filter)
// what is approved. Elevated roles see everything.
func ListScope(actor domain.User, f store.DocumentFilter) store.DocumentFilter {
	if IsElevated(actor) {
		return f
	}
	f.RestrictVisible = true
	f.VisibleTo = actor.ID
	return f
}
