package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ChatKindChat   string = "chat"
	ChatKindSearch string = "search"
	ChatKindPro    string = "pro"
)

type ChatSession struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind         string    `gorm:"size:20;not null"`
	Model        string    `gorm:"not null"`
	Title        string    `gorm:"not null"`
	CreationTime time.Time
}

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

type VideoJob struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Status string    `gorm:"size:20;not null;index"`

	Params datatypes.JSON `gorm:"type:jsonb;not null"` // VideoJobParams

	OperationName sql.NullString
	ArtifactKey   sql.NullString

	PollCount int    `gorm:"default:0"`
	Phase     string // progress label shown while the job runs

	ErrorKind string `gorm:"size:30"`
	Error     string

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

// VideoJobParams is the request a video job was created from. The starting
// image itself lives in the artifact store under ImageKey.
type VideoJobParams struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	ImageKey    string `json:"image_key"`
	MIMEType    string `json:"mime_type"`
}
