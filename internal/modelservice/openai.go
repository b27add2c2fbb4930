package modelservice

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"spark-backend/internal/core/types"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIChat serves conversations from the OpenAI chat completions API.
// It has no grounding, image or video support.
type OpenAIChat struct {
	client openai.Client
	models map[string]string
}

// NewOpenAIChat maps the application's model ids onto OpenAI models through
// models; ids missing from the map are sent as-is.
func NewOpenAIChat(apiKey string, models map[string]string) *OpenAIChat {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIChat{client: openai.NewClient(opts...), models: models}
}

func (o *OpenAIChat) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if cfg.Search {
		return nil, fmt.Errorf("%w: search grounding: %w", types.ErrUsage, ErrUnsupported)
	}

	model := cfg.Model
	if mapped, ok := o.models[model]; ok {
		model = mapped
	}

	var history []openai.ChatCompletionMessageParamUnion
	if cfg.SystemInstruction != "" {
		history = append(history, openai.SystemMessage(cfg.SystemInstruction))
	}
	for _, msg := range cfg.History {
		if msg.Role == types.RoleModel {
			history = append(history, openai.AssistantMessage(msg.Text))
		} else {
			history = append(history, openai.UserMessage(msg.Text))
		}
	}

	return &openaiSession{client: o.client, model: model, history: history}, nil
}

type openaiSession struct {
	client openai.Client
	model  string

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

func (s *openaiSession) SendStreaming(ctx context.Context, text string) iter.Seq2[types.Fragment, error] {
	return func(yield func(types.Fragment, error) bool) {
		s.mu.Lock()
		messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(s.history)+1)
		messages = append(messages, s.history...)
		s.mu.Unlock()
		messages = append(messages, openai.UserMessage(text))

		stream := s.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:    s.model,
			Messages: messages,
		})
		defer stream.Close()

		var reply strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			reply.WriteString(delta)
			if !yield(types.Fragment{TextDelta: delta}, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(types.Fragment{}, err)
			return
		}

		s.mu.Lock()
		s.history = append(messages, openai.AssistantMessage(reply.String()))
		s.mu.Unlock()
	}
}

func unsupported(what string) error {
	return fmt.Errorf("%w: %s: %w", types.ErrUsage, what, ErrUnsupported)
}

func (o *OpenAIChat) GenerateImage(ctx context.Context, prompt string, aspect types.ImageAspectRatio) (types.Media, error) {
	return types.Media{}, unsupported("image generation")
}

func (o *OpenAIChat) EditImage(ctx context.Context, prompt string, image types.Media) (types.Media, error) {
	return types.Media{}, unsupported("image editing")
}

func (o *OpenAIChat) Analyze(ctx context.Context, prompt string, media []types.Media) (string, error) {
	return "", unsupported("media analysis")
}

func (o *OpenAIChat) AnalyzeVideoFrames(ctx context.Context, prompt string, frames []types.Media) (string, error) {
	return "", unsupported("video analysis")
}

func (o *OpenAIChat) SubmitVideoJob(ctx context.Context, cred types.Credential, spec types.VideoJobSpec) (types.Operation, error) {
	return types.Operation{}, unsupported("video generation")
}

func (o *OpenAIChat) PollJob(ctx context.Context, cred types.Credential, op types.Operation) (types.Operation, error) {
	return op, unsupported("video generation")
}

var _ Facade = (*OpenAIChat)(nil)
