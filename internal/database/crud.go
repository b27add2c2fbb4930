package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return fmt.Errorf("error loading %s %s: %w", what, id, err)
}

func CreateChatSession(ctx context.Context, db *gorm.DB, session *ChatSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreationTime.IsZero() {
		session.CreationTime = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("error creating chat session: %w", err)
	}
	return nil
}

func ListChatSessions(ctx context.Context, db *gorm.DB) ([]ChatSession, error) {
	var sessions []ChatSession
	if err := db.WithContext(ctx).Order("creation_time ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("error listing chat sessions: %w", err)
	}
	return sessions, nil
}

func GetChatSession(ctx context.Context, db *gorm.DB, id uuid.UUID) (ChatSession, error) {
	var session ChatSession
	if err := db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return ChatSession{}, notFound(err, "chat session", id)
	}
	return session, nil
}

func RenameChatSession(ctx context.Context, db *gorm.DB, id uuid.UUID, title string) error {
	result := db.WithContext(ctx).Model(&ChatSession{ID: id}).Update("title", title)
	if result.Error != nil {
		return fmt.Errorf("error renaming chat session %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: chat session %s", ErrNotFound, id)
	}
	return nil
}

func DeleteChatSession(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	result := db.WithContext(ctx).Delete(&ChatSession{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("error deleting chat session %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: chat session %s", ErrNotFound, id)
	}
	return nil
}

func CreateVideoJob(ctx context.Context, db *gorm.DB, params VideoJobParams) (VideoJob, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return VideoJob{}, fmt.Errorf("error encoding video job params: %w", err)
	}

	job := VideoJob{
		ID:           uuid.New(),
		Status:       JobQueued,
		Params:       encoded,
		CreationTime: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&job).Error; err != nil {
		return VideoJob{}, fmt.Errorf("error creating video job: %w", err)
	}
	return job, nil
}

func (job VideoJob) DecodeParams() (VideoJobParams, error) {
	var params VideoJobParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return VideoJobParams{}, fmt.Errorf("invalid params for video job %s: %w", job.ID, err)
	}
	return params, nil
}

func GetVideoJob(ctx context.Context, db *gorm.DB, id uuid.UUID) (VideoJob, error) {
	var job VideoJob
	if err := db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return VideoJob{}, notFound(err, "video job", id)
	}
	return job, nil
}

// ListVideoJobs returns jobs newest first, optionally filtered by status.
func ListVideoJobs(ctx context.Context, db *gorm.DB, status string) ([]VideoJob, error) {
	query := db.WithContext(ctx).Order("creation_time DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var jobs []VideoJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("error listing video jobs: %w", err)
	}
	return jobs, nil
}

func updateVideoJob(ctx context.Context, db *gorm.DB, id uuid.UUID, updates map[string]any) error {
	if err := db.WithContext(ctx).Model(&VideoJob{ID: id}).Updates(updates).Error; err != nil {
		slog.Error("error updating video job", "job_id", id, "updates", updates, "error", err)
		return fmt.Errorf("error updating video job %s: %w", id, err)
	}
	return nil
}

func StartVideoJob(ctx context.Context, db *gorm.DB, id uuid.UUID, operationName string) error {
	return updateVideoJob(ctx, db, id, map[string]any{
		"status":         JobRunning,
		"operation_name": operationName,
	})
}

func UpdateVideoJobProgress(ctx context.Context, db *gorm.DB, id uuid.UUID, pollCount int, phase string) error {
	return updateVideoJob(ctx, db, id, map[string]any{
		"poll_count": pollCount,
		"phase":      phase,
	})
}

func CompleteVideoJob(ctx context.Context, db *gorm.DB, id uuid.UUID, artifactKey string) error {
	return updateVideoJob(ctx, db, id, map[string]any{
		"status":          JobCompleted,
		"artifact_key":    artifactKey,
		"phase":           "",
		"completion_time": time.Now().UTC(),
	})
}

func FailVideoJob(ctx context.Context, db *gorm.DB, id uuid.UUID, errorKind, message string) error {
	return updateVideoJob(ctx, db, id, map[string]any{
		"status":          JobFailed,
		"error_kind":      errorKind,
		"error":           message,
		"phase":           "",
		"completion_time": time.Now().UTC(),
	})
}
