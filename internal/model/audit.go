package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionRevokeSessions = "REVOKE_SESSIONS"
	ActionChangePassword = "CHANGE_PASSWORD"
	ActionDeleteUser     = "DELETE_USER"
	ActionRestoreUser    = "RESTORE_USER"

	ActionCreateRole    = "CREATE_ROLE"
	ActionDeleteRole    = "DELETE_ROLE"
	ActionRestoreRole   = "RESTORE_ROLE"
	ActionSetPermission = "SET_PERMISSION"

	ActionCreateView  = "CREATE_VIEW"
	ActionDeleteView  = "DELETE_VIEW"
	ActionRestoreView = "RESTORE_VIEW"
)

// AuditLog tracks who changed which session or permission, and when.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system jobs
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
