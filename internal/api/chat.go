package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"spark-backend/internal/core/types"
	"spark-backend/pkg/api"
)

func (s *BackendService) GetSessions(r *http.Request) (any, error) {
	sessions, err := s.chat.Sessions(r.Context())
	if err != nil {
		return nil, err
	}

	out := api.GetSessionsResponse{Sessions: make([]api.ChatSessionMetadata, 0, len(sessions))}
	for _, session := range sessions {
		out.Sessions = append(out.Sessions, convertSession(session, s.chat.Streaming(session.ID)))
	}
	return out, nil
}

func (s *BackendService) StartSession(r *http.Request) (any, error) {
	req, err := ParseRequest[api.StartSessionRequest](r)
	if err != nil {
		return nil, err
	}

	session, err := s.chat.StartSession(r.Context(), req.Kind, req.Model, req.Title)
	if err != nil {
		return nil, err
	}

	return api.StartSessionResponse{SessionID: session.ID.String()}, nil
}

func (s *BackendService) GetSession(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	session, err := s.chat.Session(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}

	return convertSession(session, s.chat.Streaming(sessionID)), nil
}

func (s *BackendService) RenameSession(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.RenameSessionRequest](r)
	if err != nil {
		return nil, err
	}

	return nil, s.chat.Rename(r.Context(), sessionID, req.Title)
}

func (s *BackendService) DeleteSession(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	return nil, s.chat.Delete(r.Context(), sessionID)
}

func (s *BackendService) GetHistory(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	history, err := s.chat.History(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}

	return api.ChatHistoryResponse{Messages: convertMessages(history)}, nil
}

// SendMessage streams the model's reply as it grows, one Message per line.
// The last line carries the completed reply, or an error if the stream broke
// off. Requests that cannot start a reply are rejected before streaming.
func (s *BackendService) SendMessage(r *http.Request) (StreamResponse, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.SendMessageRequest](r)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message must not be empty", types.ErrUsage)
	}
	if _, err := s.chat.History(r.Context(), sessionID); err != nil {
		return nil, err
	}
	if s.chat.Streaming(sessionID) {
		return nil, CodedErrorf(http.StatusConflict, "a reply is still streaming for this session")
	}

	return func(yield func(any, error) bool) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		stopped := false
		_, err := s.chat.Send(ctx, sessionID, req.Message, func(msg types.Message) {
			if stopped {
				return
			}
			if !yield(convertMessage(msg), nil) {
				stopped = true
				cancel()
			}
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}, nil
}
