package modelservice

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"spark-backend/internal/core/types"
)

const (
	ChatModel    = "gemini-2.5-flash"
	ProModel     = "gemini-2.5-pro"
	ImageModel   = "imagen-4.0-generate-001"
	EditModel    = "gemini-2.5-flash-image"
	AnalyzeModel = "gemini-2.5-flash"
	VideoModel   = "veo-3.1-fast-generate-preview"

	VideoResolution = "720p"
)

type SessionConfig struct {
	Model             string
	Search            bool
	SystemInstruction string
	// History seeds the session with earlier completed turns.
	History []types.Message
}

// Session is a conversation with a remote model. Each SendStreaming call is
// one turn; the session remembers the turn only if its stream completed.
type Session interface {
	SendStreaming(ctx context.Context, text string) iter.Seq2[types.Fragment, error]
}

type SessionFactory interface {
	CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Facade is the single entry point to the generative model service.
type Facade interface {
	SessionFactory

	GenerateImage(ctx context.Context, prompt string, aspect types.ImageAspectRatio) (types.Media, error)
	EditImage(ctx context.Context, prompt string, image types.Media) (types.Media, error)
	Analyze(ctx context.Context, prompt string, media []types.Media) (string, error)
	// AnalyzeVideoFrames sends prompt ahead of the frames, in frame order.
	AnalyzeVideoFrames(ctx context.Context, prompt string, frames []types.Media) (string, error)

	SubmitVideoJob(ctx context.Context, cred types.Credential, spec types.VideoJobSpec) (types.Operation, error)
	PollJob(ctx context.Context, cred types.Credential, op types.Operation) (types.Operation, error)
}

type ArtifactFetcher interface {
	FetchArtifact(ctx context.Context, locator string, cred types.Credential) ([]byte, error)
}

var ErrUnsupported = errors.New("operation not supported by model provider")

const entityNotFoundMessage = "Requested entity was not found"

// IsEntityNotFound reports whether err is the service's signal that the
// credential used for a job is no longer usable.
func IsEntityNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), entityNotFoundMessage)
}

func submitError(err error) error {
	if IsEntityNotFound(err) {
		return fmt.Errorf("%w: error submitting video job: %w", types.ErrAuthExpired, err)
	}
	return fmt.Errorf("%w: error submitting video job: %w", types.ErrTransport, err)
}
