package chat_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"spark-backend/internal/chat"
	"spark-backend/internal/core/types"
	"spark-backend/internal/database"
	"spark-backend/internal/modelservice"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := database.NewDatabase(database.InMemoryDSN)
	require.NoError(t, err)
	return db
}

// scriptedFactory records session configs and replays a fixed list of
// fragments, optionally failing after them or blocking until released.
type scriptedFactory struct {
	configs   []modelservice.SessionConfig
	fragments []types.Fragment
	failAfter error
	started   chan struct{}
	release   chan struct{}
}

type scriptedSession struct {
	factory *scriptedFactory
}

func (f *scriptedFactory) CreateSession(ctx context.Context, cfg modelservice.SessionConfig) (modelservice.Session, error) {
	f.configs = append(f.configs, cfg)
	return &scriptedSession{factory: f}, nil
}

func (s *scriptedSession) SendStreaming(ctx context.Context, text string) iter.Seq2[types.Fragment, error] {
	return func(yield func(types.Fragment, error) bool) {
		if s.factory.started != nil {
			close(s.factory.started)
		}
		if s.factory.release != nil {
			<-s.factory.release
		}
		for _, fragment := range s.factory.fragments {
			if !yield(fragment, nil) {
				return
			}
		}
		if s.factory.failAfter != nil {
			yield(types.Fragment{}, s.factory.failAfter)
		}
	}
}

func TestStartSessionKinds(t *testing.T) {
	factory := &scriptedFactory{}
	manager := chat.NewManager(newTestDB(t), factory, chat.Options{SystemInstruction: "be nice"})
	ctx := context.Background()

	plain, err := manager.StartSession(ctx, database.ChatKindChat, "", "")
	require.NoError(t, err)
	assert.Equal(t, modelservice.ChatModel, plain.Model)

	search, err := manager.StartSession(ctx, database.ChatKindSearch, "", "news")
	require.NoError(t, err)
	assert.Equal(t, "news", search.Title)

	pro, err := manager.StartSession(ctx, database.ChatKindPro, "", "")
	require.NoError(t, err)
	assert.Equal(t, modelservice.ProModel, pro.Model)

	require.Len(t, factory.configs, 3)
	assert.False(t, factory.configs[0].Search)
	assert.True(t, factory.configs[1].Search)
	assert.Equal(t, modelservice.ProModel, factory.configs[2].Model)
	for _, cfg := range factory.configs {
		assert.Equal(t, "be nice", cfg.SystemInstruction)
	}

	_, err = manager.StartSession(ctx, "poetry", "", "")
	assert.ErrorIs(t, err, types.ErrUsage)

	_, err = manager.StartSession(ctx, database.ChatKindChat, "gpt-4", "")
	assert.ErrorIs(t, err, types.ErrUsage)

	sessions, err := manager.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}

func TestSendAccumulatesReply(t *testing.T) {
	factory := &scriptedFactory{fragments: []types.Fragment{
		{TextDelta: "Hel"},
		{TextDelta: "lo", Grounding: &types.Grounding{Refs: []types.RawRef{{URI: "a", Title: "A"}, {URI: ""}}}},
	}}
	manager := chat.NewManager(newTestDB(t), factory, chat.Options{})
	ctx := context.Background()

	session, err := manager.StartSession(ctx, database.ChatKindSearch, "", "")
	require.NoError(t, err)

	var published []types.Message
	reply, err := manager.Send(ctx, session.ID, "say hello to everyone in the room right now please", func(m types.Message) {
		published = append(published, m)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello", reply.Text)
	assert.True(t, reply.Complete)
	assert.Equal(t, []types.Citation{{URI: "a", Title: "A"}}, reply.Citations)
	assert.Len(t, published, 3)

	history, err := manager.History(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleUser, history[0].Role)
	assert.Equal(t, types.RoleModel, history[1].Role)

	record, err := manager.Session(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "say hello to everyone in the room right...", record.Title)
}

func TestSendFailureRollsBackEmptyReply(t *testing.T) {
	factory := &scriptedFactory{failAfter: errors.New("connection reset")}
	manager := chat.NewManager(newTestDB(t), factory, chat.Options{})
	ctx := context.Background()

	session, err := manager.StartSession(ctx, database.ChatKindChat, "", "")
	require.NoError(t, err)

	_, err = manager.Send(ctx, session.ID, "hi", nil)
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.Equal(t, types.RetryMessage, types.UserMessage(err))

	history, err := manager.History(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.RoleUser, history[0].Role)
}

func TestSendFailureKeepsPartialReply(t *testing.T) {
	factory := &scriptedFactory{
		fragments: []types.Fragment{{TextDelta: "Partial"}},
		failAfter: errors.New("connection reset"),
	}
	manager := chat.NewManager(newTestDB(t), factory, chat.Options{})
	ctx := context.Background()

	session, err := manager.StartSession(ctx, database.ChatKindChat, "", "")
	require.NoError(t, err)

	reply, err := manager.Send(ctx, session.ID, "hi", nil)
	assert.Error(t, err)
	assert.Equal(t, "Partial", reply.Text)
	assert.False(t, reply.Complete)

	history, err := manager.History(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSendRejectsConcurrentSubmission(t *testing.T) {
	factory := &scriptedFactory{
		fragments: []types.Fragment{{TextDelta: "done"}},
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	manager := chat.NewManager(newTestDB(t), factory, chat.Options{})
	ctx := context.Background()

	session, err := manager.StartSession(ctx, database.ChatKindChat, "", "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := manager.Send(ctx, session.ID, "first", nil)
		done <- err
	}()

	<-factory.started
	assert.True(t, manager.Streaming(session.ID))

	_, err = manager.Send(ctx, session.ID, "second", nil)
	assert.ErrorIs(t, err, types.ErrUsage)
	assert.ErrorIs(t, manager.Delete(ctx, session.ID), types.ErrUsage)

	close(factory.release)
	require.NoError(t, <-done)
	assert.False(t, manager.Streaming(session.ID))

	history, err := manager.History(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSendValidation(t *testing.T) {
	manager := chat.NewManager(newTestDB(t), &scriptedFactory{}, chat.Options{})
	ctx := context.Background()

	session, err := manager.StartSession(ctx, database.ChatKindChat, "", "")
	require.NoError(t, err)

	_, err = manager.Send(ctx, session.ID, "   ", nil)
	assert.ErrorIs(t, err, types.ErrUsage)

	_, err = manager.Send(ctx, uuid.New(), "hi", nil)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestRenameAndDelete(t *testing.T) {
	manager := chat.NewManager(newTestDB(t), modelservice.NewMock(), chat.Options{})
	ctx := context.Background()

	session, err := manager.StartSession(ctx, database.ChatKindChat, "", "old")
	require.NoError(t, err)

	require.NoError(t, manager.Rename(ctx, session.ID, "new"))
	record, err := manager.Session(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", record.Title)

	assert.ErrorIs(t, manager.Rename(ctx, session.ID, " "), types.ErrUsage)
	assert.ErrorIs(t, manager.Rename(ctx, uuid.New(), "x"), chat.ErrSessionNotFound)

	reply, err := manager.Send(ctx, session.ID, "ping", nil)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "ping")

	require.NoError(t, manager.Delete(ctx, session.ID))
	_, err = manager.History(ctx, session.ID)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
	assert.ErrorIs(t, manager.Delete(ctx, session.ID), chat.ErrSessionNotFound)
}
