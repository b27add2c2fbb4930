package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"spark-backend/internal/core/stream"
	"spark-backend/internal/core/types"
	"spark-backend/internal/core/utils"
	"spark-backend/internal/database"
	"spark-backend/internal/modelservice"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("chat session not found")

const maxLiveSessions = 1024

type Options struct {
	ChatModel         string
	ProModel          string
	SystemInstruction string
}

type liveSession struct {
	remote     modelservice.Session
	transcript *stream.Transcript
}

// Manager owns the conversations of the process. Session metadata is kept in
// the database, transcripts and remote sessions in memory. A session streams
// at most one reply at a time.
type Manager struct {
	db      *gorm.DB
	factory modelservice.SessionFactory
	opts    Options

	models map[string]bool
	gate   *utils.MutexMap

	mu   sync.RWMutex
	live map[uuid.UUID]*liveSession
}

func NewManager(db *gorm.DB, factory modelservice.SessionFactory, opts Options) *Manager {
	if opts.ChatModel == "" {
		opts.ChatModel = modelservice.ChatModel
	}
	if opts.ProModel == "" {
		opts.ProModel = modelservice.ProModel
	}

	return &Manager{
		db:      db,
		factory: factory,
		opts:    opts,
		models: map[string]bool{
			opts.ChatModel: true,
			opts.ProModel:  true,
		},
		gate: utils.NewMutexMap(maxLiveSessions),
		live: make(map[uuid.UUID]*liveSession),
	}
}

func (m *Manager) ValidateModel(model string) error {
	if !m.models[model] {
		return fmt.Errorf("%w: model %s not supported", types.ErrUsage, model)
	}
	return nil
}

func (m *Manager) defaultModel(kind string) (string, error) {
	switch kind {
	case database.ChatKindChat, database.ChatKindSearch:
		return m.opts.ChatModel, nil
	case database.ChatKindPro:
		return m.opts.ProModel, nil
	default:
		return "", fmt.Errorf("%w: unknown conversation kind '%s'", types.ErrUsage, kind)
	}
}

// StartSession opens a conversation of the given kind. An empty model selects
// the kind's default model.
func (m *Manager) StartSession(ctx context.Context, kind, model, title string) (database.ChatSession, error) {
	defaultModel, err := m.defaultModel(kind)
	if err != nil {
		return database.ChatSession{}, err
	}
	if model == "" {
		model = defaultModel
	}
	if err := m.ValidateModel(model); err != nil {
		return database.ChatSession{}, err
	}

	cfg := modelservice.SessionConfig{
		Model:  model,
		Search: kind == database.ChatKindSearch,
	}
	if model == m.opts.ChatModel || model == m.opts.ProModel {
		cfg.SystemInstruction = m.opts.SystemInstruction
	}

	remote, err := m.factory.CreateSession(ctx, cfg)
	if err != nil {
		return database.ChatSession{}, fmt.Errorf("error creating model session: %w", err)
	}

	record := database.ChatSession{Kind: kind, Model: model, Title: strings.TrimSpace(title)}
	if err := database.CreateChatSession(ctx, m.db, &record); err != nil {
		return database.ChatSession{}, err
	}

	m.mu.Lock()
	m.live[record.ID] = &liveSession{remote: remote, transcript: stream.NewTranscript()}
	m.mu.Unlock()

	slog.Info("started chat session", "session_id", record.ID, "kind", kind, "model", model)
	return record, nil
}

func (m *Manager) Sessions(ctx context.Context) ([]database.ChatSession, error) {
	return database.ListChatSessions(ctx, m.db)
}

func (m *Manager) Session(ctx context.Context, id uuid.UUID) (database.ChatSession, error) {
	record, err := database.GetChatSession(ctx, m.db, id)
	if errors.Is(err, database.ErrNotFound) {
		return database.ChatSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return record, err
}

func (m *Manager) session(id uuid.UUID) (*liveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	live, ok := m.live[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return live, nil
}

// Send appends the user's text to the session and streams the model's reply.
// publish receives the in-progress reply after every fragment and once more
// when it completes. A second Send on a session that is still streaming is
// rejected.
func (m *Manager) Send(ctx context.Context, id uuid.UUID, text string, publish func(types.Message)) (types.Message, error) {
	if strings.TrimSpace(text) == "" {
		return types.Message{}, fmt.Errorf("%w: message must not be empty", types.ErrUsage)
	}

	live, err := m.session(id)
	if err != nil {
		return types.Message{}, err
	}

	if err := m.gate.TryLock(id.String()); err != nil {
		if errors.Is(err, utils.ErrKeyBusy) {
			return types.Message{}, fmt.Errorf("%w: a reply is still streaming for this session", types.ErrUsage)
		}
		return types.Message{}, fmt.Errorf("%w: %w", types.ErrTransport, err)
	}
	defer func() {
		if err := m.gate.Unlock(id.String()); err != nil {
			slog.Error("error releasing session gate", "session_id", id, "error", err)
		}
	}()

	firstTurn := live.transcript.Len() == 0
	live.transcript.AppendUser(text)

	if firstTurn {
		m.titleFromFirstMessage(ctx, id, text)
	}

	reply, err := stream.Accumulate(ctx, live.transcript, live.remote.SendStreaming(ctx, text), publish)
	if err != nil {
		slog.Error("chat reply failed", "session_id", id, "kind", types.KindOf(err), "error", err)
		return reply, err
	}
	return reply, nil
}

func (m *Manager) titleFromFirstMessage(ctx context.Context, id uuid.UUID, text string) {
	record, err := database.GetChatSession(ctx, m.db, id)
	if err != nil || record.Title != "" {
		return
	}
	if err := database.RenameChatSession(ctx, m.db, id, utils.DefaultTitle(text)); err != nil {
		slog.Warn("error setting session title", "session_id", id, "error", err)
	}
}

// Streaming reports whether a reply is currently being produced for id.
func (m *Manager) Streaming(id uuid.UUID) bool {
	return m.gate.Held(id.String())
}

func (m *Manager) History(ctx context.Context, id uuid.UUID) ([]types.Message, error) {
	live, err := m.session(id)
	if err != nil {
		return nil, err
	}
	return live.transcript.Snapshot(), nil
}

func (m *Manager) Rename(ctx context.Context, id uuid.UUID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title must not be empty", types.ErrUsage)
	}
	if err := database.RenameChatSession(ctx, m.db, id, title); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return err
	}
	return nil
}

func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.gate.TryLock(id.String()); err != nil {
		return fmt.Errorf("%w: cannot delete a session while a reply is streaming", types.ErrUsage)
	}
	defer func() {
		if err := m.gate.Unlock(id.String()); err != nil {
			slog.Error("error releasing session gate", "session_id", id, "error", err)
		}
	}()

	if err := database.DeleteChatSession(ctx, m.db, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return err
	}

	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()

	slog.Info("deleted chat session", "session_id", id)
	return nil
}
