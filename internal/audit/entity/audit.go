package entity

import (
	"time"

	"github.com/zelyonkin/dashkeep/internal/pkg/valueobject"
)

// Action classifies a security event. Values are stable strings stored
// verbatim, never renumbered.
type Action string

const (
	ActionLogin                Action = "login"
	ActionLoginFailed          Action = "login_failed"
	ActionLogout               Action = "logout"
	ActionPasswordChange       Action = "password_change"
	ActionPasswordChangeFailed Action = "password_change_failed"
	ActionTwoFactorEnabled     Action = "2fa_enabled"
	ActionTwoFactorDisabled    Action = "2fa_disabled"
	ActionTwoFactorFailed      Action = "2fa_failed"
	ActionVaultAccess          Action = "vault_access"
	ActionFileUpload           Action = "file_upload"
	ActionFileDelete           Action = "file_delete"
	ActionExportData           Action = "export_data"
	ActionSettingsChange       Action = "settings_change"
	ActionBackupCreated        Action = "backup_created"
	ActionSuspiciousActivity   Action = "suspicious_activity"
)

func (a Action) String() string {
	return string(a)
}

// IsKnown reports whether the action is one of the recognized kinds.
func (a Action) IsKnown() bool {
	switch a {
	case ActionLogin, ActionLoginFailed, ActionLogout,
		ActionPasswordChange, ActionPasswordChangeFailed,
		ActionTwoFactorEnabled, ActionTwoFactorDisabled, ActionTwoFactorFailed,
		ActionVaultAccess, ActionFileUpload, ActionFileDelete,
		ActionExportData, ActionSettingsChange, ActionBackupCreated,
		ActionSuspiciousActivity:
		return true
	default:
		return false
	}
}

// Record is the input shape other modules hand to the audit recorder.
// IdentityID zero means the actor is unknown (failed logins).
type Record struct {
	IdentityID int64
	Action     Action
	Origin     string
	UserAgent  string
	Detail     map[string]any
}

// Event is one persisted audit log row.
type Event struct {
	ID         int64
	IdentityID int64
	Action     Action
	Origin     string
	UserAgent  string
	Detail     valueobject.JSONMap
	OccurredAt time.Time
}

// QueryFilter narrows an audit log listing. Zero values mean "no filter".
type QueryFilter struct {
	IdentityID int64
	Action     Action
	From       time.Time
	To         time.Time
	Page       int32
	Size       int32
}

// ExportFilter narrows an audit export. The row count is capped by the
// usecase regardless of the range.
type ExportFilter struct {
	IdentityID int64
	From       time.Time
	To         time.Time
}
