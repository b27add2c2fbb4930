package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore holds generated artifacts and uploaded inputs under
// slash-separated keys.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) error

	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	DeleteObject(ctx context.Context, key string) error
}

const (
	InputsPrefix    = "inputs"
	ArtifactsPrefix = "videos"
)

func InputKey(id string) string {
	return InputsPrefix + "/" + id
}

func ArtifactKey(id string) string {
	return ArtifactsPrefix + "/" + id + ".mp4"
}
