package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatSession struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind         string    `gorm:"size:20;not null"`
	Model        string    `gorm:"not null"`
	Title        string    `gorm:"not null"`
	CreationTime time.Time
}

type VideoJob struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Status string    `gorm:"size:20;not null;index"`

	Params datatypes.JSON `gorm:"type:jsonb;not null"`

	OperationName sql.NullString
	ArtifactKey   sql.NullString

	ErrorKind string `gorm:"size:30"`
	Error     string

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&ChatSession{}, &VideoJob{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
