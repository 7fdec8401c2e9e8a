package model

import (
	"time"

	"github.com/google/uuid"
)

// Branch is an organizational unit (depot/location) users and challans belong to.
// Name and slug are unique across the whole system.
type Branch struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Slug      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	Metadata  string    `gorm:"type:text" json:"metadata"`
	Address   string    `gorm:"type:text" json:"address"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
