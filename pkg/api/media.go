package api

import (
	"time"

	"github.com/google/uuid"
)

type GenerateImageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

// ImageRequest carries an input image. Image is base64 encoded on the wire.
type ImageRequest struct {
	Prompt   string `json:"prompt"`
	Image    []byte `json:"image"`
	MIMEType string `json:"mime_type"`
}

type ImageResponse struct {
	Image    []byte `json:"image"`
	MIMEType string `json:"mime_type"`
}

type AnalysisResponse struct {
	Text string `json:"text"`
}

type SubmitVideoJobRequest struct {
	Prompt      string `json:"prompt"`
	Image       []byte `json:"image"`
	MIMEType    string `json:"mime_type"`
	AspectRatio string `json:"aspect_ratio"`
}

type SubmitVideoJobResponse struct {
	JobID uuid.UUID `json:"job_id"`
}

type ListVideoJobsParams struct {
	Status string `schema:"status"`
}

type VideoJob struct {
	ID          uuid.UUID `json:"id"`
	Status      string    `json:"status"`
	Prompt      string    `json:"prompt"`
	AspectRatio string    `json:"aspect_ratio"`

	OperationName string `json:"operation_name,omitempty"`
	PollCount     int    `json:"poll_count"`
	Phase         string `json:"phase,omitempty"`

	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	CreationTime   time.Time  `json:"creation_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

// VideoAnalysisUpdate is one line of the analysis stream: progress labels
// first, then the final answer.
type VideoAnalysisUpdate struct {
	Phase string `json:"phase,omitempty"`
	Text  string `json:"text,omitempty"`
}
