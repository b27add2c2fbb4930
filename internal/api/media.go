package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"spark-backend/internal/core/frames"
	"spark-backend/internal/core/types"
	"spark-backend/pkg/api"
)

func imageInput(req api.ImageRequest) (types.Media, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return types.Media{}, fmt.Errorf("%w: prompt must not be empty", types.ErrUsage)
	}
	if len(req.Image) == 0 {
		return types.Media{}, fmt.Errorf("%w: an image is required", types.ErrUsage)
	}
	return types.Media{Data: req.Image, MIMEType: req.MIMEType}, nil
}

func (s *BackendService) GenerateImage(r *http.Request) (any, error) {
	req, err := ParseRequest[api.GenerateImageRequest](r)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt must not be empty", types.ErrUsage)
	}
	aspect := types.ImageAspectRatio(req.AspectRatio)
	if err := aspect.Validate(); err != nil {
		return nil, err
	}

	image, err := s.media.GenerateImage(r.Context(), req.Prompt, aspect)
	if err != nil {
		return nil, err
	}

	return api.ImageResponse{Image: image.Data, MIMEType: image.MIMEType}, nil
}

func (s *BackendService) EditImage(r *http.Request) (any, error) {
	req, err := ParseRequest[api.ImageRequest](r)
	if err != nil {
		return nil, err
	}

	input, err := imageInput(req)
	if err != nil {
		return nil, err
	}

	image, err := s.media.EditImage(r.Context(), req.Prompt, input)
	if err != nil {
		return nil, err
	}

	return api.ImageResponse{Image: image.Data, MIMEType: image.MIMEType}, nil
}

func (s *BackendService) AnalyzeImage(r *http.Request) (any, error) {
	req, err := ParseRequest[api.ImageRequest](r)
	if err != nil {
		return nil, err
	}

	input, err := imageInput(req)
	if err != nil {
		return nil, err
	}

	text, err := s.media.Analyze(r.Context(), req.Prompt, []types.Media{input})
	if err != nil {
		return nil, err
	}

	return api.AnalysisResponse{Text: text}, nil
}

func (s *BackendService) SubmitVideoJob(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SubmitVideoJobRequest](r)
	if err != nil {
		return nil, err
	}

	job, err := s.generator.Submit(r.Context(), types.VideoJobSpec{
		Prompt:      req.Prompt,
		Image:       types.Media{Data: req.Image, MIMEType: req.MIMEType},
		AspectRatio: types.VideoAspectRatio(req.AspectRatio),
	})
	if err != nil {
		return nil, err
	}

	return api.SubmitVideoJobResponse{JobID: job.ID}, nil
}

func (s *BackendService) ListVideoJobs(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListVideoJobsParams](r)
	if err != nil {
		return nil, err
	}

	jobs, err := s.generator.Jobs(r.Context(), strings.ToUpper(params.Status))
	if err != nil {
		return nil, err
	}

	return convertVideoJobs(jobs), nil
}

func (s *BackendService) GetVideoJob(r *http.Request) (any, error) {
	jobID, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	job, err := s.generator.Job(r.Context(), jobID)
	if err != nil {
		return nil, err
	}

	return convertVideoJob(job), nil
}

func (s *BackendService) GetVideoArtifact(w http.ResponseWriter, r *http.Request) {
	jobID, err := URLParamUUID(r, "job_id")
	if err != nil {
		code, msg := errorResponse(err)
		http.Error(w, msg, code)
		return
	}

	artifact, err := s.generator.Artifact(r.Context(), jobID)
	if err != nil {
		code, msg := errorResponse(err)
		logError(code, err)
		http.Error(w, msg, code)
		return
	}
	defer artifact.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID.String()+".mp4"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, artifact); err != nil {
		slog.Error("error writing video artifact", "job_id", jobID, "error", err)
	}
}

// AnalyzeVideo accepts a multipart upload with an optional "prompt" field
// followed by a "video" file. The upload is read in full before the response
// starts; progress labels are then streamed ahead of the answer.
func (s *BackendService) AnalyzeVideo(r *http.Request) (StreamResponse, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "expected a multipart upload: %v", err)
	}

	var prompt string
	var player frames.Player
	for player == nil {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "error reading upload: %v", err)
		}

		switch part.FormName() {
		case "prompt":
			data, err := io.ReadAll(io.LimitReader(part, 64<<10))
			if err != nil {
				return nil, CodedErrorf(http.StatusBadRequest, "error reading prompt: %v", err)
			}
			prompt = string(data)
		case "video":
			if player, err = s.analyzer.Open(part); err != nil {
				return nil, err
			}
		}
	}

	if player == nil {
		return nil, CodedErrorf(http.StatusBadRequest, "a video file is required")
	}

	return func(yield func(any, error) bool) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		stopped := false
		text, err := s.analyzer.AnalyzePlayer(ctx, player, prompt, func(label string) {
			if !stopped && !yield(api.VideoAnalysisUpdate{Phase: label}, nil) {
				stopped = true
				cancel()
			}
		})
		if stopped {
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}
		yield(api.VideoAnalysisUpdate{Text: text}, nil)
	}, nil
}
