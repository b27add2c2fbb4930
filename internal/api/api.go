package api

import (
	"log/slog"
	"net/http"

	"spark-backend/internal/chat"
	"spark-backend/internal/credential"
	"spark-backend/internal/modelservice"
	"spark-backend/internal/video"
	"spark-backend/pkg/api"

	"github.com/go-chi/chi/v5"
)

type BackendService struct {
	chat        *chat.Manager
	media       modelservice.Facade
	generator   *video.Generator
	analyzer    *video.Analyzer
	credentials credential.Provider

	maxUploadBytes int64
}

const DefaultMaxUploadBytes = 512 << 20

func NewBackendService(
	chatManager *chat.Manager,
	media modelservice.Facade,
	generator *video.Generator,
	analyzer *video.Analyzer,
	credentials credential.Provider,
	maxUploadBytes int64,
) *BackendService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &BackendService{
		chat:           chatManager,
		media:          media,
		generator:      generator,
		analyzer:       analyzer,
		credentials:    credentials,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/credentials", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetCredentialStatus))
		r.Post("/", RestHandler(s.SelectCredential))
	})

	r.Route("/chat/sessions", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetSessions))
		r.Post("/", RestHandler(s.StartSession))
		r.Get("/{session_id}", RestHandler(s.GetSession))
		r.Delete("/{session_id}", RestHandler(s.DeleteSession))
		r.Post("/{session_id}/rename", RestHandler(s.RenameSession))
		r.Post("/{session_id}/messages", RestStreamHandler(s.SendMessage))
		r.Get("/{session_id}/history", RestHandler(s.GetHistory))
	})

	r.Route("/images", func(r chi.Router) {
		r.Post("/generate", RestHandler(s.GenerateImage))
		r.Post("/edit", RestHandler(s.EditImage))
		r.Post("/analyze", RestHandler(s.AnalyzeImage))
	})

	r.Route("/video", func(r chi.Router) {
		r.Post("/jobs", RestHandler(s.SubmitVideoJob))
		r.Get("/jobs", RestHandler(s.ListVideoJobs))
		r.Get("/jobs/{job_id}", RestHandler(s.GetVideoJob))
		r.Get("/jobs/{job_id}/artifact", s.GetVideoArtifact)
		r.Post("/analyze", RestStreamHandler(s.AnalyzeVideo))
	})
}

func (s *BackendService) GetCredentialStatus(r *http.Request) (any, error) {
	ctx := r.Context()
	return api.CredentialStatus{
		Selected:           s.credentials.HasActiveCredential(ctx),
		SelectionRequested: s.credentials.SelectionRequested(ctx),
	}, nil
}

func (s *BackendService) SelectCredential(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SelectCredentialRequest](r)
	if err != nil {
		return nil, err
	}

	if err := s.credentials.Select(r.Context(), req.APIKey); err != nil {
		return nil, err
	}

	slog.Info("api key selected through the api")
	return nil, nil
}
