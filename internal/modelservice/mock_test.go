package modelservice

import (
	"bytes"
	"context"
	"image/jpeg"
	"testing"

	"spark-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, session Session, text string) ([]types.Fragment, error) {
	t.Helper()
	var fragments []types.Fragment
	for fragment, err := range session.SendStreaming(context.Background(), text) {
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}

func TestMockChatStreamsWords(t *testing.T) {
	mock := NewMock()
	session, err := mock.CreateSession(context.Background(), SessionConfig{Model: ChatModel})
	require.NoError(t, err)

	fragments, err := collect(t, session, "hello there")
	require.NoError(t, err)

	var text string
	for _, fragment := range fragments {
		text += fragment.TextDelta
		assert.Nil(t, fragment.Grounding)
	}
	assert.Equal(t, "[gemini-2.5-flash] you said: hello there", text)
}

func TestMockSearchAddsGrounding(t *testing.T) {
	mock := NewMock()
	session, err := mock.CreateSession(context.Background(), SessionConfig{Model: ChatModel, Search: true})
	require.NoError(t, err)

	fragments, err := collect(t, session, "weather")
	require.NoError(t, err)

	last := fragments[len(fragments)-1]
	require.NotNil(t, last.Grounding)
	assert.Len(t, types.CitationsFromRefs(last.Grounding.Refs), 1)
}

func TestMockImages(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()

	generated, err := mock.GenerateImage(ctx, "a red fox", types.ImageLandscape)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(generated.Data))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
	assert.Equal(t, 72, img.Bounds().Dy())

	_, err = mock.GenerateImage(ctx, "a red fox", types.ImageAspectRatio("2:1"))
	assert.ErrorIs(t, err, types.ErrUsage)

	edited, err := mock.EditImage(ctx, "invert it", generated)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", edited.MIMEType)

	_, err = mock.EditImage(ctx, "invert it", types.Media{Data: []byte("not an image"), MIMEType: "image/png"})
	assert.ErrorIs(t, err, types.ErrMediaDecode)
}

func TestMockVideoJobLifecycle(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()
	cred := types.Credential{Key: "key-1"}
	spec := types.VideoJobSpec{
		Prompt:      "make it move",
		Image:       types.Media{Data: []byte{1}, MIMEType: "image/png"},
		AspectRatio: types.VideoLandscape,
	}

	op, err := mock.SubmitVideoJob(ctx, cred, spec)
	require.NoError(t, err)
	assert.False(t, op.Done)

	op, err = mock.PollJob(ctx, cred, op)
	require.NoError(t, err)
	assert.False(t, op.Done)

	op, err = mock.PollJob(ctx, cred, op)
	require.NoError(t, err)
	assert.True(t, op.Done)

	data, err := mock.FetchArtifact(ctx, op.ArtifactLocator, cred)
	require.NoError(t, err)
	assert.Contains(t, string(data), op.Name)

	mock.Revoke(cred.Key)
	_, err = mock.PollJob(ctx, cred, op)
	assert.True(t, IsEntityNotFound(err))

	_, err = mock.SubmitVideoJob(ctx, cred, spec)
	assert.ErrorIs(t, err, types.ErrAuthExpired)

	_, err = mock.SubmitVideoJob(ctx, types.Credential{}, spec)
	assert.ErrorIs(t, err, types.ErrAuthExpired)
}
