package video

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"spark-backend/internal/core/frames"
	"spark-backend/internal/core/types"
)

const DefaultAnalysisPrompt = "Summarize this video."

// FrameAnalyzer answers a prompt about an ordered set of video frames.
type FrameAnalyzer interface {
	AnalyzeVideoFrames(ctx context.Context, prompt string, frames []types.Media) (string, error)
}

type Analyzer struct {
	model            FrameAnalyzer
	samplesPerSecond float64
	ffmpeg           frames.FFmpegOptions
}

func NewAnalyzer(model FrameAnalyzer, samplesPerSecond float64, ffmpeg frames.FFmpegOptions) *Analyzer {
	if samplesPerSecond <= 0 {
		samplesPerSecond = frames.DefaultSamplesPerSecond
	}
	return &Analyzer{model: model, samplesPerSecond: samplesPerSecond, ffmpeg: ffmpeg}
}

// Open copies video into a player. The player is released by AnalyzePlayer.
func (a *Analyzer) Open(video io.Reader) (frames.Player, error) {
	player, err := frames.NewTempFFmpegPlayer(video, a.ffmpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMediaDecode, err)
	}
	return player, nil
}

// AnalyzeFile samples the uploaded video and asks the model about the frames.
// onProgress receives the label of each stage.
func (a *Analyzer) AnalyzeFile(ctx context.Context, video io.Reader, prompt string, onProgress func(string)) (string, error) {
	player, err := a.Open(video)
	if err != nil {
		return "", err
	}
	return a.AnalyzePlayer(ctx, player, prompt, onProgress)
}

func (a *Analyzer) AnalyzePlayer(ctx context.Context, player frames.Player, prompt string, onProgress func(string)) (string, error) {
	report(onProgress, ExtractingFramesLabel)

	batch, err := frames.Extract(ctx, player, a.samplesPerSecond)
	if err != nil {
		return "", err
	}
	return a.AnalyzeFrames(ctx, batch, prompt, onProgress)
}

// AnalyzeFrames sends every frame of batch with prompt in a single request.
// An empty batch never reaches the model.
func (a *Analyzer) AnalyzeFrames(ctx context.Context, batch types.FrameBatch, prompt string, onProgress func(string)) (string, error) {
	if batch.Len() == 0 {
		return "", fmt.Errorf("%w: could not extract any frames from the video", types.ErrUsage)
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultAnalysisPrompt
	}

	report(onProgress, fmt.Sprintf(analyzingFramesFormat, batch.Len()))
	slog.Info("analyzing video frames", "frames", batch.Len(), "duration", batch.Duration)

	return a.model.AnalyzeVideoFrames(ctx, prompt, batch.Media())
}

func report(onProgress func(string), label string) {
	if onProgress != nil {
		onProgress(label)
	}
}
