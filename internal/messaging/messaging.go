package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	VideoJobQueue   = "video_job_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type VideoJobPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

type Publisher interface {
	PublishVideoJob(ctx context.Context, payload VideoJobPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
