package modelservice

import (
	"errors"
	"testing"

	"spark-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestFragmentFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Hel"},
				{Text: "lo"},
			}},
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
					{},
					{Web: &genai.GroundingChunkWeb{URI: "", Title: "empty"}},
				},
			},
		}},
	}

	fragment := fragmentFromResponse(resp)

	assert.Equal(t, "Hello", fragment.TextDelta)
	if assert.NotNil(t, fragment.Grounding) {
		assert.Len(t, fragment.Grounding.Refs, 3)
		assert.Equal(t,
			[]types.Citation{{URI: "https://a.example", Title: "A"}},
			types.CitationsFromRefs(fragment.Grounding.Refs),
		)
	}
}

func TestFragmentFromResponseWithoutGrounding(t *testing.T) {
	fragment := fragmentFromResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "hi"}}}}},
	})
	assert.Equal(t, "hi", fragment.TextDelta)
	assert.Nil(t, fragment.Grounding)

	fragment = fragmentFromResponse(&genai.GenerateContentResponse{})
	assert.Equal(t, types.Fragment{}, fragment)
}

func TestFragmentFromResponseWithEmptyGrounding(t *testing.T) {
	fragment := fragmentFromResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			GroundingMetadata: &genai.GroundingMetadata{GroundingChunks: []*genai.GroundingChunk{}},
		}},
	})
	if assert.NotNil(t, fragment.Grounding) {
		assert.Empty(t, fragment.Grounding.Refs)
	}
}

func TestOperationFromGenai(t *testing.T) {
	pending := operationFromGenai(&genai.GenerateVideosOperation{Name: "operations/1"})
	assert.Equal(t, types.Operation{Name: "operations/1", ErrorKind: types.ErrorKindNone}, pending)

	done := operationFromGenai(&genai.GenerateVideosOperation{
		Name: "operations/1",
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: "https://files.example/v1?alt=media"}}},
		},
	})
	assert.True(t, done.Done)
	assert.Equal(t, "https://files.example/v1?alt=media", done.ArtifactLocator)

	failed := operationFromGenai(&genai.GenerateVideosOperation{
		Name:  "operations/1",
		Done:  true,
		Error: map[string]any{"code": 3, "message": "prompt rejected by safety filters"},
	})
	assert.Equal(t, types.ErrorKindFatal, failed.ErrorKind)
	assert.Equal(t, "prompt rejected by safety filters", failed.Err)
	assert.Empty(t, failed.ArtifactLocator)

	noLink := operationFromGenai(&genai.GenerateVideosOperation{Name: "operations/1", Done: true, Response: &genai.GenerateVideosResponse{}})
	assert.True(t, noLink.Done)
	assert.Empty(t, noLink.ArtifactLocator)
}

func TestIsEntityNotFound(t *testing.T) {
	assert.True(t, IsEntityNotFound(errors.New("Error 404: Requested entity was not found.")))
	assert.False(t, IsEntityNotFound(errors.New("quota exceeded")))
	assert.False(t, IsEntityNotFound(nil))

	assert.ErrorIs(t, submitError(errors.New("Requested entity was not found")), types.ErrAuthExpired)
	assert.ErrorIs(t, submitError(errors.New("connection reset")), types.ErrTransport)
}

func TestAnalysisPartsOrder(t *testing.T) {
	media := []types.Media{
		{Data: []byte("frame-0"), MIMEType: "image/jpeg"},
		{Data: []byte("frame-1"), MIMEType: "image/jpeg"},
	}

	frames := analysisParts("what happens?", media, true)
	assert.Len(t, frames, 3)
	assert.Equal(t, "what happens?", frames[0].Text)
	assert.Equal(t, []byte("frame-0"), frames[1].InlineData.Data)
	assert.Equal(t, []byte("frame-1"), frames[2].InlineData.Data)

	image := analysisParts("what is this?", media[:1], false)
	assert.Len(t, image, 2)
	assert.Equal(t, []byte("frame-0"), image[0].InlineData.Data)
	assert.Equal(t, "what is this?", image[1].Text)
}
