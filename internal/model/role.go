package model

import (
	"time"

	"github.com/google/uuid"
)

// Role groups permissions. Soft-deleted roles keep their links so a restore
// brings their permissions back.
type Role struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(50);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	IsSystem    bool           `gorm:"default:false" json:"is_system"`
	StatusID    *uuid.UUID     `gorm:"column:id_status;type:uuid" json:"id_status"`
	Status      *Status        `gorm:"foreignKey:StatusID" json:"status,omitempty"`
	Links       []RoleViewLink `gorm:"foreignKey:RoleID" json:"links,omitempty"`
	Deleted     bool           `gorm:"not null;default:false" json:"deleted"`
	DeletedOn   *time.Time     `json:"deleted_on,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// View is a protected resource, identified by its path.
type View struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(100);not null" json:"name"`
	Path      string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"path"`
	StatusID  *uuid.UUID `gorm:"column:id_status;type:uuid" json:"id_status"`
	Deleted   bool       `gorm:"not null;default:false" json:"deleted"`
	DeletedOn *time.Time `json:"deleted_on,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RoleViewLink grants (Enabled) or withholds a role's access to a view.
// A missing link and a disabled link both mean "deny".
type RoleViewLink struct {
	RoleID    uuid.UUID `gorm:"column:id_role;type:uuid;primaryKey" json:"id_role"`
	ViewID    uuid.UUID `gorm:"column:id_view;type:uuid;primaryKey" json:"id_view"`
	View      *View     `gorm:"foreignKey:ViewID" json:"view,omitempty"`
	Enabled   bool      `gorm:"not null;default:false" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RoleViewLink) TableName() string { return "role_view_link" }
