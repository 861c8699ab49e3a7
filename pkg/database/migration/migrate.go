package migration

import (
	"log"

	"github.com/hibikilabs/hibiki/pkg/database/models"
	"gorm.io/gorm"
)

func RunMigration(db *gorm.DB) error {

	log.Println("Starting migrations...")

	// Create postgres extension for uuid
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return err
	}

	log.Println("Running database migrations...")
	// Auto-migrate the models
	if err := db.AutoMigrate(
		&models.PlaybackRecord{},
		&models.StreamError{},
		&models.ListenerSample{},
	); err != nil {
		return err
	}

	log.Println("Migrations completed successfully!")
	return nil
}
