package model

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can log in. Deleted users are kept for history and
// can be restored; they never authenticate.
type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(255)" json:"name"`
	Username  string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email     string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password  string     `gorm:"type:varchar(255);not null" json:"-"`
	RoleID    *uuid.UUID `gorm:"column:id_role;type:uuid;index" json:"id_role"`
	Role      *Role      `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	StatusID  *uuid.UUID `gorm:"column:id_status;type:uuid" json:"id_status"`
	Status    *Status    `gorm:"foreignKey:StatusID" json:"status,omitempty"`
	Deleted   bool       `gorm:"not null;default:false" json:"deleted"`
	DeletedOn *time.Time `json:"deleted_on,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RoleName returns the primary role's name, or "" when none is loaded.
func (u *User) RoleName() string {
	if u.Role == nil {
		return ""
	}
	return u.Role.Name
}
