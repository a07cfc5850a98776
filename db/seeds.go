package db

import (
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"
)

// SeedRecord tracks which named seeds have been run.
type SeedRecord struct {
	ID        uint   `gorm:"primarykey"`
	Name      string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// Once runs a named seed only once (tracked in the seed_records table).
// It reports whether fn ran.
func Once(db *gorm.DB, name string, fn func() error) (bool, error) {
	if err := db.AutoMigrate(&SeedRecord{}); err != nil {
		return false, fmt.Errorf("seed table: %w", err)
	}

	var count int64
	if err := db.Model(&SeedRecord{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	if err := fn(); err != nil {
		return false, fmt.Errorf("seed '%s' failed: %w", name, err)
	}

	if err := db.Create(&SeedRecord{Name: name}).Error; err != nil {
		return true, err
	}
	return true, nil
}

// OnlyIn runs a function only in the specified environment.
func OnlyIn(env string, fn func() error) error {
	currentEnv := os.Getenv("APP_ENV")
	if currentEnv == "" {
		currentEnv = "development"
	}
	if currentEnv != env {
		return nil
	}
	return fn()
}
