package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive    = "Active"
	StatusInactive  = "Inactive"
	StatusSuspended = "Suspended"
)

// Status is a named account state referenced by users and roles.
type Status struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Status) TableName() string { return "status" }

// DisabledSet is a case-insensitive set of status names that block access.
type DisabledSet map[string]struct{}

func NewDisabledSet(names ...string) DisabledSet {
	set := make(DisabledSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

// Contains reports whether s names a disabled status. A nil status is never disabled.
func (d DisabledSet) Contains(s *Status) bool {
	if s == nil {
		return false
	}
	_, ok := d[strings.ToLower(s.Name)]
	return ok
}
