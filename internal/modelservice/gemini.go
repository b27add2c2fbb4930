package modelservice

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"spark-backend/internal/core/types"

	"google.golang.org/genai"
)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

type GeminiOptions struct {
	Backend  string
	APIKey   string
	Project  string
	Location string
}

// Gemini talks to the Gemini API or Vertex AI. Chat, image and analysis calls
// share one client built from the configured key. Video jobs run against a
// client built from the caller's credential, since that key may be swapped at
// runtime.
type Gemini struct {
	opts   GeminiOptions
	client *genai.Client

	mu           sync.Mutex
	videoClients map[string]*genai.Client
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	g := &Gemini{opts: opts, videoClients: make(map[string]*genai.Client)}

	client, err := g.newClient(ctx, opts.APIKey)
	if err != nil {
		return nil, err
	}
	g.client = client

	return g, nil
}

func (g *Gemini) newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{}
	switch g.opts.Backend {
	case BackendVertex:
		if g.opts.Project == "" || g.opts.Location == "" {
			return nil, fmt.Errorf("GCP_PROJECT and GCP_LOCATION must be set for the vertex backend")
		}
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = g.opts.Project
		cfg.Location = g.opts.Location
	case BackendGemini, "":
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = apiKey
	default:
		return nil, fmt.Errorf("unknown gemini backend '%s'", g.opts.Backend)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}
	return client, nil
}

func (g *Gemini) videoClient(ctx context.Context, cred types.Credential) (*genai.Client, error) {
	if g.opts.Backend == BackendVertex {
		return g.client, nil
	}
	if !cred.Valid() {
		return nil, fmt.Errorf("%w: no credential selected for video generation", types.ErrAuthExpired)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.videoClients[cred.Key]; ok {
		return client, nil
	}
	client, err := g.newClient(ctx, cred.Key)
	if err != nil {
		return nil, err
	}
	g.videoClients[cred.Key] = client
	return client, nil
}

func (g *Gemini) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", types.ErrUsage)
	}

	config := &genai.GenerateContentConfig{}
	if cfg.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.Search {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	history := make([]*genai.Content, 0, len(cfg.History))
	for _, msg := range cfg.History {
		history = append(history, genai.NewContentFromText(msg.Text, toGenaiRole(msg.Role)))
	}

	return &geminiSession{
		client:  g.client,
		model:   cfg.Model,
		config:  config,
		history: history,
	}, nil
}

func toGenaiRole(role types.Role) genai.Role {
	if role == types.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

type geminiSession struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig

	mu      sync.Mutex
	history []*genai.Content
}

func (s *geminiSession) SendStreaming(ctx context.Context, text string) iter.Seq2[types.Fragment, error] {
	return func(yield func(types.Fragment, error) bool) {
		s.mu.Lock()
		contents := make([]*genai.Content, 0, len(s.history)+1)
		contents = append(contents, s.history...)
		s.mu.Unlock()
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))

		var reply strings.Builder
		for resp, err := range s.client.Models.GenerateContentStream(ctx, s.model, contents, s.config) {
			if err != nil {
				yield(types.Fragment{}, err)
				return
			}
			fragment := fragmentFromResponse(resp)
			reply.WriteString(fragment.TextDelta)
			if !yield(fragment, nil) {
				return
			}
		}

		s.mu.Lock()
		s.history = append(contents, genai.NewContentFromText(reply.String(), genai.RoleModel))
		s.mu.Unlock()
	}
}

// fragmentFromResponse converts one streamed chunk. Grounding is set only when
// the chunk carries grounding chunks, so an absent field leaves the citations
// already shown untouched.
func fragmentFromResponse(resp *genai.GenerateContentResponse) types.Fragment {
	var fragment types.Fragment
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return fragment
	}
	candidate := resp.Candidates[0]

	fragment.TextDelta = textOf(candidate.Content)

	if meta := candidate.GroundingMetadata; meta != nil && meta.GroundingChunks != nil {
		refs := make([]types.RawRef, 0, len(meta.GroundingChunks))
		for _, chunk := range meta.GroundingChunks {
			if chunk == nil || chunk.Web == nil {
				refs = append(refs, types.RawRef{})
				continue
			}
			refs = append(refs, types.RawRef{URI: chunk.Web.URI, Title: chunk.Web.Title})
		}
		fragment.Grounding = &types.Grounding{Refs: refs}
	}

	return fragment
}

func textOf(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func (g *Gemini) GenerateImage(ctx context.Context, prompt string, aspect types.ImageAspectRatio) (types.Media, error) {
	if strings.TrimSpace(prompt) == "" {
		return types.Media{}, fmt.Errorf("%w: prompt is required", types.ErrUsage)
	}
	if err := aspect.Validate(); err != nil {
		return types.Media{}, err
	}

	resp, err := g.client.Models.GenerateImages(ctx, ImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
		AspectRatio:    string(aspect),
	})
	if err != nil {
		return types.Media{}, fmt.Errorf("%w: error generating image: %w", types.ErrTransport, err)
	}

	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		return types.Media{}, fmt.Errorf("%w: no image was generated", types.ErrFatalJob)
	}

	image := resp.GeneratedImages[0].Image
	mimeType := image.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return types.Media{Data: image.ImageBytes, MIMEType: mimeType}, nil
}

func mediaParts(media []types.Media) []*genai.Part {
	parts := make([]*genai.Part, 0, len(media)+1)
	for _, m := range media {
		parts = append(parts, genai.NewPartFromBytes(m.Data, m.MIMEType))
	}
	return parts
}

func (g *Gemini) EditImage(ctx context.Context, prompt string, image types.Media) (types.Media, error) {
	if strings.TrimSpace(prompt) == "" || len(image.Data) == 0 {
		return types.Media{}, fmt.Errorf("%w: an image and a prompt are required", types.ErrUsage)
	}

	parts := append(mediaParts([]types.Media{image}), genai.NewPartFromText(prompt))
	resp, err := g.client.Models.GenerateContent(ctx, EditModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE"}},
	)
	if err != nil {
		return types.Media{}, fmt.Errorf("%w: error editing image: %w", types.ErrTransport, err)
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return types.Media{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
			}
		}
	}

	return types.Media{}, fmt.Errorf("%w: no image was generated", types.ErrFatalJob)
}

// analysisParts orders an analysis request. Images are followed by their
// question; video frames come after it.
func analysisParts(prompt string, media []types.Media, promptFirst bool) []*genai.Part {
	if !promptFirst {
		return append(mediaParts(media), genai.NewPartFromText(prompt))
	}
	return append([]*genai.Part{genai.NewPartFromText(prompt)}, mediaParts(media)...)
}

func (g *Gemini) Analyze(ctx context.Context, prompt string, media []types.Media) (string, error) {
	return g.analyze(ctx, prompt, media, false)
}

func (g *Gemini) AnalyzeVideoFrames(ctx context.Context, prompt string, frames []types.Media) (string, error) {
	return g.analyze(ctx, prompt, frames, true)
}

func (g *Gemini) analyze(ctx context.Context, prompt string, media []types.Media, promptFirst bool) (string, error) {
	if len(media) == 0 {
		return "", fmt.Errorf("%w: nothing to analyze", types.ErrUsage)
	}

	parts := analysisParts(prompt, media, promptFirst)
	resp, err := g.client.Models.GenerateContent(ctx, AnalyzeModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return "", fmt.Errorf("%w: error analyzing media: %w", types.ErrTransport, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: analysis returned no candidates", types.ErrTransport)
	}
	return textOf(resp.Candidates[0].Content), nil
}

func (g *Gemini) SubmitVideoJob(ctx context.Context, cred types.Credential, spec types.VideoJobSpec) (types.Operation, error) {
	if err := spec.Validate(); err != nil {
		return types.Operation{}, err
	}

	client, err := g.videoClient(ctx, cred)
	if err != nil {
		return types.Operation{}, err
	}

	op, err := client.Models.GenerateVideos(ctx, VideoModel, spec.Prompt,
		&genai.Image{ImageBytes: spec.Image.Data, MIMEType: spec.Image.MIMEType},
		&genai.GenerateVideosConfig{
			NumberOfVideos: 1,
			Resolution:     VideoResolution,
			AspectRatio:    string(spec.AspectRatio),
		},
	)
	if err != nil {
		return types.Operation{}, submitError(err)
	}

	slog.Info("submitted video job", "operation", op.Name)
	return operationFromGenai(op), nil
}

// PollJob returns the service's error untouched so the poller can classify it.
func (g *Gemini) PollJob(ctx context.Context, cred types.Credential, op types.Operation) (types.Operation, error) {
	client, err := g.videoClient(ctx, cred)
	if err != nil {
		return op, err
	}

	latest, err := client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: op.Name}, nil)
	if err != nil {
		return op, err
	}
	return operationFromGenai(latest), nil
}

func operationFromGenai(op *genai.GenerateVideosOperation) types.Operation {
	if op == nil {
		return types.Operation{}
	}

	result := types.Operation{Name: op.Name, Done: op.Done, ErrorKind: types.ErrorKindNone}

	if len(op.Error) > 0 {
		result.ErrorKind = types.ErrorKindFatal
		result.Err = operationErrorMessage(op.Error)
	}

	if op.Response != nil && len(op.Response.GeneratedVideos) > 0 {
		if video := op.Response.GeneratedVideos[0]; video != nil && video.Video != nil {
			result.ArtifactLocator = video.Video.URI
		}
	}

	return result
}

func operationErrorMessage(status map[string]any) string {
	if msg, ok := status["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("%v", status)
}

var _ Facade = (*Gemini)(nil)
