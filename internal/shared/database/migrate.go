package database

import (
	"authgate/internal/guard"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&guard.BlockedIP{},
	)
}
