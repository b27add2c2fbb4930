package api

import (
	"time"

	"github.com/google/uuid"
)

type StartSessionRequest struct {
	Kind  string `json:"kind"`
	Model string `json:"model,omitempty"`
	Title string `json:"title"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

type ChatSessionMetadata struct {
	ID           uuid.UUID `json:"id"`
	Kind         string    `json:"kind"`
	Model        string    `json:"model"`
	Title        string    `json:"title"`
	Streaming    bool      `json:"streaming"`
	CreationTime time.Time `json:"creation_time"`
}

type GetSessionsResponse struct {
	Sessions []ChatSessionMetadata `json:"sessions"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

type Message struct {
	Role      string     `json:"role"` // "user" or "model"
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	Complete  bool       `json:"complete"`
}

type ChatHistoryResponse struct {
	Messages []Message `json:"messages"`
}

type CredentialStatus struct {
	Selected           bool `json:"selected"`
	SelectionRequested bool `json:"selection_requested"`
}

type SelectCredentialRequest struct {
	APIKey string `json:"api_key"`
}
