package api

import (
	"log/slog"

	"spark-backend/internal/core/types"
	"spark-backend/internal/database"
	"spark-backend/pkg/api"
)

func convertMessage(m types.Message) api.Message {
	citations := make([]api.Citation, 0, len(m.Citations))
	for _, c := range m.Citations {
		citations = append(citations, api.Citation{URI: c.URI, Title: c.Title})
	}
	return api.Message{
		Role:      string(m.Role),
		Text:      m.Text,
		Citations: citations,
		Complete:  m.Complete,
	}
}

func convertMessages(messages []types.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, convertMessage(m))
	}
	return out
}

func convertSession(s database.ChatSession, streaming bool) api.ChatSessionMetadata {
	return api.ChatSessionMetadata{
		ID:           s.ID,
		Kind:         s.Kind,
		Model:        s.Model,
		Title:        s.Title,
		Streaming:    streaming,
		CreationTime: s.CreationTime,
	}
}

func convertVideoJob(job database.VideoJob) api.VideoJob {
	out := api.VideoJob{
		ID:        job.ID,
		Status:    job.Status,
		PollCount: job.PollCount,
		Phase:     job.Phase,
		ErrorKind: job.ErrorKind,
		Error:     job.Error,

		CreationTime: job.CreationTime,
	}

	if job.OperationName.Valid {
		out.OperationName = job.OperationName.String
	}
	if job.CompletionTime.Valid {
		out.CompletionTime = &job.CompletionTime.Time
	}

	params, err := job.DecodeParams()
	if err != nil {
		slog.Warn("error decoding video job params", "job_id", job.ID, "error", err)
	} else {
		out.Prompt = params.Prompt
		out.AspectRatio = params.AspectRatio
	}

	return out
}

func convertVideoJobs(jobs []database.VideoJob) []api.VideoJob {
	out := make([]api.VideoJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, convertVideoJob(job))
	}
	return out
}
