//go:build integration

// Run with: go test -tags=integration ./internal/messaging

package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func setupRabbitMQContainer(t *testing.T, ctx context.Context) string {
	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.11-management")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := testcontainers.TerminateContainer(rabbitmqContainer)
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	return connStr
}

func TestRabbitMQRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url := setupRabbitMQContainer(t, ctx)

	receiver, err := NewRabbitMQReceiver(url, 1)
	require.NoError(t, err)
	defer receiver.Close()

	publisher, err := NewRabbitMQPublisher(url)
	require.NoError(t, err)
	defer publisher.Close()

	failed, succeeded := uuid.New(), uuid.New()
	require.NoError(t, publisher.PublishVideoJob(ctx, VideoJobPayload{JobID: failed}))
	require.NoError(t, publisher.PublishVideoJob(ctx, VideoJobPayload{JobID: succeeded}))

	processor := &recordingProcessor{
		done: make(chan struct{}),
		want: 2,
		fail: map[uuid.UUID]bool{failed: true},
	}
	go NewWorker(receiver, processor, 1).Run(ctx)

	select {
	case <-processor.done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for video jobs")
	}

	// A failed job is not requeued, so nothing arrives after the two deliveries.
	time.Sleep(500 * time.Millisecond)

	processor.mu.Lock()
	defer processor.mu.Unlock()
	assert.Equal(t, []uuid.UUID{failed, succeeded}, processor.seen)
}
