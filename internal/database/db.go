package database

import (
	"echallan-backend/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM and migrates the
// core models.
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Branch{},
		&model.Invoice{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
