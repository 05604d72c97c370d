package domain

// Action identifies an auditable operation. The catalog is closed: the audit
// recorder skips entries whose action it does not recognize.
type Action string

const (
	// auth
	ActionLogin          Action = "login"
	ActionLogout         Action = "logout"
	ActionRegister       Action = "user_register"
	ActionPasswordChange Action = "password_change"

	// documents
	ActionDocumentUpload   Action = "document_upload"
	ActionDocumentView     Action = "document_view"
	ActionDocumentUpdate   Action = "document_update"
	ActionDocumentApprove  Action = "document_approve"
	ActionDocumentReject   Action = "document_reject"
	ActionDocumentArchive  Action = "document_archive"
	ActionDocumentDelete   Action = "document_delete"
	ActionDocumentDownload Action = "document_download"
	ActionDocumentShare    Action = "document_share"
	ActionDocumentList     Action = "document_list"

	// versions
	ActionVersionUpload   Action = "version_upload"
	ActionVersionDownload Action = "version_download"
	ActionVersionRollback Action = "version_rollback"

	// categories
	ActionCategoryCreate Action = "category_create"
	ActionCategoryUpdate Action = "category_update"
	ActionCategoryDelete Action = "category_delete"

	// users
	ActionUserCreate     Action = "user_create"
	ActionUserUpdate     Action = "user_update"
	ActionUserDeactivate Action = "user_deactivate"

	// permissions
	ActionPermissionGrant  Action = "permission_grant"
	ActionPermissionRevoke Action = "permission_revoke"

	// system
	ActionSystemMaintenance Action = "system_maintenance"
)

// ResourceKind values used on audit entries.
const (
	ResourceDocument = "document"
	ResourceVersion  = "version"
	ResourceCategory = "category"
	ResourceUser     = "user"
	ResourceSystem   = "system"
)

var knownActions = map[Action]struct{}{
	ActionLogin: {}, ActionLogout: {}, ActionRegister: {}, ActionPasswordChange: {},
	ActionDocumentUpload: {}, ActionDocumentView: {}, ActionDocumentUpdate: {},
	ActionDocumentApprove: {}, ActionDocumentReject: {}, ActionDocumentArchive: {},
	ActionDocumentDelete: {}, ActionDocumentDownload: {}, ActionDocumentShare: {},
	ActionDocumentList: {},
	ActionVersionUpload: {}, ActionVersionDownload: {}, ActionVersionRollback: {},
	ActionCategoryCreate: {}, ActionCategoryUpdate: {}, ActionCategoryDelete: {},
	ActionUserCreate: {}, ActionUserUpdate: {}, ActionUserDeactivate: {},
	ActionPermissionGrant: {}, ActionPermissionRevoke: {},
	ActionSystemMaintenance: {},
}

// KnownAction reports whether a is part of the closed action catalog.
func KnownAction(a Action) bool {
	_, ok := knownActions[a]
	return ok
}

// AllowsAnonymousActor reports whether an audit entry for a may be recorded
// without a resolved actor. Only login attempts and public registration
// legitimately lack one at request time.
func AllowsAnonymousActor(a Action) bool {
	return a == ActionLogin || a == ActionRegister
}
