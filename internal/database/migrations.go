package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/bloggers/internal/models"
)

// AutoMigrate creates or updates the relational schema for the user directory.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{})
}
