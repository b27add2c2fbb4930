package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type VideoJob struct {
	PollCount int `gorm:"default:0"`
	Phase     string
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&VideoJob{}, "poll_count"); err != nil {
		return fmt.Errorf("error adding poll_count column: %w", err)
	}
	if err := db.Migrator().AddColumn(&VideoJob{}, "phase"); err != nil {
		return fmt.Errorf("error adding phase column: %w", err)
	}

	if err := db.Model(&VideoJob{}).
		Where("poll_count IS NULL").
		Update("poll_count", 0).Error; err != nil {
		return fmt.Errorf("error setting default value for poll_count: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&VideoJob{}, "phase"); err != nil {
		return fmt.Errorf("error dropping phase column: %w", err)
	}
	if err := db.Migrator().DropColumn(&VideoJob{}, "poll_count"); err != nil {
		return fmt.Errorf("error dropping poll_count column: %w", err)
	}
	return nil
}
