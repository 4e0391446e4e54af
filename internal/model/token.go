package model

import (
	"time"

	"github.com/google/uuid"
)

// Token is the server-side record of an issued access token. At most one row
// per user has StatusToken set; the database enforces it with a partial
// unique index.
type Token struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"column:id_user;type:uuid;not null;index" json:"id_user"`
	User        *User     `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token       string    `gorm:"type:text;uniqueIndex;not null" json:"-"`
	StatusToken bool      `gorm:"column:status_token;not null;default:true;index" json:"status_token"`
	Expiration  time.Time `gorm:"not null" json:"expiration"`
	DateToken   time.Time `gorm:"column:date_token;not null" json:"date_token"`
}

// Live reports whether the row still grants access at now.
func (t *Token) Live(now time.Time) bool {
	return t.StatusToken && now.Before(t.Expiration)
}
