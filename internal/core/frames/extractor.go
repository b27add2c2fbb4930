package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"

	"spark-backend/internal/core/types"
)

const (
	DefaultSamplesPerSecond = 1.0

	frameMIMEType = "image/jpeg"
	jpegQuality   = 92

	maxPreallocatedFrames = 1024
)

// frameCapacity is the initial capacity of a batch; longer batches grow by append.
func frameCapacity(duration, samplesPerSecond float64) int {
	expected := math.Floor(duration*samplesPerSecond) + 1
	if expected >= maxPreallocatedFrames || math.IsNaN(expected) {
		return maxPreallocatedFrames
	}
	return int(expected)
}

// Extract samples player at t = 0, 1/rate, 2/rate, ... while t <= duration and
// returns the encoded frames in temporal order. Seeks are strictly sequential:
// the next seek is only requested after the previous frame was drawn and
// encoded. The player is released on every return path. Any decode failure
// discards the frames collected so far.
func Extract(ctx context.Context, player Player, samplesPerSecond float64) (types.FrameBatch, error) {
	defer func() {
		if err := player.Release(); err != nil {
			slog.Warn("error releasing media player", "error", err)
		}
	}()

	if samplesPerSecond <= 0 || math.IsNaN(samplesPerSecond) || math.IsInf(samplesPerSecond, 0) {
		return types.FrameBatch{}, fmt.Errorf("%w: invalid sampling rate %v", types.ErrUsage, samplesPerSecond)
	}

	signal := &pendingSignal{}

	var meta Metadata
	player.OnLoadedMetadata(func(m Metadata) {
		meta = m
		signal.resolve(nil)
	})
	player.OnSeeked(func() {
		signal.resolve(nil)
	})
	player.OnError(func(err error) {
		if err == nil {
			err = errors.New("unknown media error")
		}
		signal.resolve(err)
	})

	if err := signal.await(ctx, player.Load); err != nil {
		return types.FrameBatch{}, extractionError("loading metadata", err)
	}

	if err := validateMetadata(meta); err != nil {
		return types.FrameBatch{}, extractionError("loading metadata", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, meta.Width, meta.Height))
	frames := make([]types.Frame, 0, frameCapacity(meta.Duration, samplesPerSecond))

	for i := 0; ; i++ {
		t := float64(i) / samplesPerSecond
		if t > meta.Duration {
			break
		}

		if err := signal.await(ctx, func() { player.SeekTo(t) }); err != nil {
			return types.FrameBatch{}, extractionError(fmt.Sprintf("seeking to %.3fs", t), err)
		}

		if err := player.DrawFrame(canvas); err != nil {
			return types.FrameBatch{}, extractionError(fmt.Sprintf("drawing frame at %.3fs", t), err)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return types.FrameBatch{}, extractionError(fmt.Sprintf("encoding frame at %.3fs", t), err)
		}

		frames = append(frames, types.Frame{Timestamp: t, MIMEType: frameMIMEType, Data: buf.Bytes()})
	}

	slog.Info("extracted video frames", "frames", len(frames), "duration", meta.Duration, "rate", samplesPerSecond)

	return types.FrameBatch{Frames: frames, Duration: meta.Duration}, nil
}

func validateMetadata(meta Metadata) error {
	if meta.Width <= 0 || meta.Height <= 0 {
		return fmt.Errorf("invalid video dimensions %dx%d", meta.Width, meta.Height)
	}
	if math.IsNaN(meta.Duration) || math.IsInf(meta.Duration, 0) || meta.Duration < 0 {
		return fmt.Errorf("invalid video duration %v", meta.Duration)
	}
	return nil
}

func extractionError(step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("frame extraction interrupted while %s: %w", step, err)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrMediaDecode, step, err)
}
