package modelservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"iter"
	"net/url"
	"strings"
	"sync"

	"spark-backend/internal/core/types"

	"github.com/google/uuid"
)

const mockArtifactScheme = "mock://"

// Mock is an in-process model service for local runs and tests. Replies echo
// the prompt, images are solid colour JPEGs and video jobs finish after a
// fixed number of polls.
type Mock struct {
	PollsUntilDone int

	mu      sync.Mutex
	polls   map[string]int
	revoked map[string]bool
}

func NewMock() *Mock {
	return &Mock{
		PollsUntilDone: 2,
		polls:          make(map[string]int),
		revoked:        make(map[string]bool),
	}
}

// Revoke makes every video call made with key fail as if the key had been
// deleted.
func (m *Mock) Revoke(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[key] = true
}

func (m *Mock) isRevoked(cred types.Credential) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[cred.Key]
}

func (m *Mock) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", types.ErrUsage)
	}
	return &mockSession{model: cfg.Model, search: cfg.Search}, nil
}

type mockSession struct {
	model  string
	search bool
}

func (s *mockSession) SendStreaming(ctx context.Context, text string) iter.Seq2[types.Fragment, error] {
	return func(yield func(types.Fragment, error) bool) {
		words := strings.Fields(fmt.Sprintf("[%s] you said: %s", s.model, text))
		for i, word := range words {
			if err := ctx.Err(); err != nil {
				yield(types.Fragment{}, err)
				return
			}
			delta := word
			if i > 0 {
				delta = " " + word
			}
			fragment := types.Fragment{TextDelta: delta}
			if s.search && i == len(words)-1 {
				fragment.Grounding = &types.Grounding{Refs: []types.RawRef{
					{URI: "https://www.google.com/search?q=" + url.QueryEscape(text), Title: "Search results"},
					{URI: "", Title: "unresolved source"},
				}}
			}
			if !yield(fragment, nil) {
				return
			}
		}
	}
}

var mockAspectSizes = map[types.ImageAspectRatio]image.Point{
	types.ImageSquare:    {64, 64},
	types.ImageLandscape: {128, 72},
	types.ImagePortrait:  {72, 128},
	types.ImageFourThree: {96, 72},
	types.ImageThreeFour: {72, 96},
}

func encodeJPEG(img image.Image) (types.Media, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return types.Media{}, fmt.Errorf("error encoding image: %w", err)
	}
	return types.Media{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}

func (m *Mock) GenerateImage(ctx context.Context, prompt string, aspect types.ImageAspectRatio) (types.Media, error) {
	if strings.TrimSpace(prompt) == "" {
		return types.Media{}, fmt.Errorf("%w: prompt is required", types.ErrUsage)
	}
	if err := aspect.Validate(); err != nil {
		return types.Media{}, err
	}

	size := mockAspectSizes[aspect]
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	shade := uint8(len(prompt) * 17 % 256)
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: shade, G: 128, B: 255 - shade, A: 255}}, image.Point{}, draw.Src)
	return encodeJPEG(img)
}

// EditImage returns the colour negative of the input.
func (m *Mock) EditImage(ctx context.Context, prompt string, input types.Media) (types.Media, error) {
	if strings.TrimSpace(prompt) == "" || len(input.Data) == 0 {
		return types.Media{}, fmt.Errorf("%w: an image and a prompt are required", types.ErrUsage)
	}

	src, _, err := image.Decode(bytes.NewReader(input.Data))
	if err != nil {
		return types.Media{}, fmt.Errorf("%w: error decoding image: %w", types.ErrMediaDecode, err)
	}

	bounds := src.Bounds()
	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			out.Set(x, y, color.RGBA64{R: 0xffff - uint16(r), G: 0xffff - uint16(g), B: 0xffff - uint16(b), A: uint16(a)})
		}
	}
	return encodeJPEG(out)
}

func (m *Mock) Analyze(ctx context.Context, prompt string, media []types.Media) (string, error) {
	if len(media) == 0 {
		return "", fmt.Errorf("%w: nothing to analyze", types.ErrUsage)
	}
	return fmt.Sprintf("analyzed %d item(s) for: %s", len(media), prompt), nil
}

func (m *Mock) AnalyzeVideoFrames(ctx context.Context, prompt string, frames []types.Media) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("%w: nothing to analyze", types.ErrUsage)
	}
	return fmt.Sprintf("%s: analyzed %d frame(s)", prompt, len(frames)), nil
}

func (m *Mock) SubmitVideoJob(ctx context.Context, cred types.Credential, spec types.VideoJobSpec) (types.Operation, error) {
	if err := spec.Validate(); err != nil {
		return types.Operation{}, err
	}
	if !cred.Valid() {
		return types.Operation{}, fmt.Errorf("%w: no credential selected for video generation", types.ErrAuthExpired)
	}
	if m.isRevoked(cred) {
		return types.Operation{}, submitError(errors.New(entityNotFoundMessage))
	}

	name := "operations/mock-" + uuid.NewString()
	m.mu.Lock()
	m.polls[name] = 0
	m.mu.Unlock()

	return types.Operation{Name: name}, nil
}

func (m *Mock) PollJob(ctx context.Context, cred types.Credential, op types.Operation) (types.Operation, error) {
	if m.isRevoked(cred) {
		return op, errors.New(entityNotFoundMessage)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count, ok := m.polls[op.Name]
	if !ok {
		return op, fmt.Errorf("unknown operation '%s'", op.Name)
	}
	count++
	m.polls[op.Name] = count

	if count >= m.PollsUntilDone {
		op.Done = true
		op.ArtifactLocator = mockArtifactScheme + op.Name
	}
	return op, nil
}

func (m *Mock) FetchArtifact(ctx context.Context, locator string, cred types.Credential) ([]byte, error) {
	name, ok := strings.CutPrefix(locator, mockArtifactScheme)
	if !ok {
		return nil, fmt.Errorf("%w: unknown artifact locator '%s'", types.ErrTransport, locator)
	}
	return []byte("mock video for " + name), nil
}

var (
	_ Facade          = (*Mock)(nil)
	_ ArtifactFetcher = (*Mock)(nil)
)
