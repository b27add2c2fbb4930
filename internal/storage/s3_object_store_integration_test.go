//go:build integration

// Run with: go test -tags=integration ./internal/storage

package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := testcontainers.TerminateContainer(minioContainer)
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func TestS3ObjectStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := S3ClientConfig{
		Endpoint:        setupMinioContainer(t, ctx),
		Region:          "us-east-1",
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	}

	store, err := NewS3ObjectStore(ctx, cfg, "spark-artifacts")
	require.NoError(t, err)

	// The bucket already exists the second time.
	_, err = NewS3ObjectStore(ctx, cfg, "spark-artifacts")
	require.NoError(t, err)

	key := ArtifactKey("job-1")
	video := []byte("not really an mp4")

	require.NoError(t, store.PutObject(ctx, key, bytes.NewReader(video)))

	reader, err := store.GetObject(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, reader.Close())
	require.NoError(t, err)
	assert.Equal(t, video, data)

	require.NoError(t, store.PutObject(ctx, key, bytes.NewReader([]byte("replaced"))))
	reader, err = store.GetObject(ctx, key)
	require.NoError(t, err)
	data, err = io.ReadAll(reader)
	require.NoError(t, reader.Close())
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	require.NoError(t, store.DeleteObject(ctx, key))

	_, err = store.GetObject(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.GetObject(ctx, InputKey("never-written"))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
