package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"spark-backend/internal/core/poller"
	"spark-backend/internal/core/types"
	"spark-backend/internal/core/utils"
	"spark-backend/internal/credential"
	"spark-backend/internal/database"
	"spark-backend/internal/messaging"
	"spark-backend/internal/modelservice"
	"spark-backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobService is the part of the model service that runs video jobs.
type JobService interface {
	SubmitVideoJob(ctx context.Context, cred types.Credential, spec types.VideoJobSpec) (types.Operation, error)
	PollJob(ctx context.Context, cred types.Credential, op types.Operation) (types.Operation, error)
}

// Progress is reported once when the job is accepted (Attempt 0) and after
// every status check that found it unfinished.
type Progress struct {
	Attempt   int
	Operation types.Operation
	Phase     string
}

type GeneratorOptions struct {
	PollInterval time.Duration
	// PollTimeout bounds the wait for a submitted job. Zero waits until the
	// caller's context is done.
	PollTimeout time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

type Generator struct {
	db          *gorm.DB
	jobs        JobService
	fetcher     modelservice.ArtifactFetcher
	store       storage.ObjectStore
	publisher   messaging.Publisher
	credentials credential.Provider

	poller  *poller.Poller
	timeout time.Duration
	running *utils.MutexMap
}

const maxConcurrentJobs = 256

func NewGenerator(
	db *gorm.DB,
	jobs JobService,
	fetcher modelservice.ArtifactFetcher,
	store storage.ObjectStore,
	publisher messaging.Publisher,
	credentials credential.Provider,
	opts GeneratorOptions,
) *Generator {
	pollOpts := []poller.Option{}
	if opts.PollInterval > 0 {
		pollOpts = append(pollOpts, poller.WithInterval(opts.PollInterval))
	}
	if opts.Sleep != nil {
		pollOpts = append(pollOpts, poller.WithSleep(opts.Sleep))
	}

	return &Generator{
		db:          db,
		jobs:        jobs,
		fetcher:     fetcher,
		store:       store,
		publisher:   publisher,
		credentials: credentials,
		poller:      poller.NewPoller(jobs, modelservice.IsEntityNotFound, pollOpts...),
		timeout:     opts.PollTimeout,
		running:     utils.NewMutexMap(maxConcurrentJobs),
	}
}

// activeCredential returns the selected key, asking the user for one when
// none is usable.
func (g *Generator) activeCredential(ctx context.Context) (types.Credential, error) {
	if !g.credentials.HasActiveCredential(ctx) {
		if err := g.credentials.RequestCredentialSelection(ctx); err != nil {
			slog.Error("error requesting credential selection", "error", err)
		}
		return types.Credential{}, fmt.Errorf("%w: select an API key to generate videos", types.ErrAuthExpired)
	}
	return g.credentials.Current(ctx)
}

// Submit records a video job and queues it for a worker. The starting image
// is kept in the object store until the job finishes.
func (g *Generator) Submit(ctx context.Context, spec types.VideoJobSpec) (database.VideoJob, error) {
	if err := spec.Validate(); err != nil {
		return database.VideoJob{}, err
	}
	if _, err := g.activeCredential(ctx); err != nil {
		return database.VideoJob{}, err
	}

	imageKey := storage.InputKey(uuid.NewString())
	if err := g.store.PutObject(ctx, imageKey, bytes.NewReader(spec.Image.Data)); err != nil {
		return database.VideoJob{}, fmt.Errorf("%w: error storing starting image: %w", types.ErrTransport, err)
	}

	job, err := database.CreateVideoJob(ctx, g.db, database.VideoJobParams{
		Prompt:      spec.Prompt,
		AspectRatio: string(spec.AspectRatio),
		ImageKey:    imageKey,
		MIMEType:    spec.Image.MIMEType,
	})
	if err != nil {
		g.deleteInput(ctx, imageKey)
		return database.VideoJob{}, err
	}

	if err := g.publisher.PublishVideoJob(ctx, messaging.VideoJobPayload{JobID: job.ID}); err != nil {
		err = fmt.Errorf("%w: error queueing video job: %w", types.ErrTransport, err)
		g.recordFailure(ctx, job.ID, err)
		g.deleteInput(ctx, imageKey)
		return database.VideoJob{}, err
	}

	slog.Info("queued video job", "job_id", job.ID, "aspect_ratio", spec.AspectRatio)
	return job, nil
}

// Generate submits spec, waits for the job to finish and downloads the
// result. An expired credential is invalidated so the user is asked for a new
// one.
func (g *Generator) Generate(ctx context.Context, cred types.Credential, spec types.VideoJobSpec, onProgress func(Progress)) ([]byte, error) {
	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	data, err := g.generate(ctx, cred, spec, report)
	if err != nil && types.KindOf(err) == types.FailureAuthExpired {
		g.credentials.Invalidate(ctx, cred)
	}
	return data, err
}

func (g *Generator) generate(ctx context.Context, cred types.Credential, spec types.VideoJobSpec, report func(Progress)) ([]byte, error) {
	op, err := g.jobs.SubmitVideoJob(ctx, cred, spec)
	if err != nil {
		return nil, err
	}
	report(Progress{Attempt: 0, Operation: op, Phase: PhaseLabel(0)})

	pollCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	op, err = g.poller.Run(pollCtx, cred, op, func(tick poller.Tick) {
		report(Progress{Attempt: tick.Attempt, Operation: tick.Operation, Phase: PhaseLabel(tick.Attempt)})
	})
	if err != nil {
		return nil, err
	}

	locator, err := poller.Locator(op)
	if err != nil {
		return nil, err
	}

	return g.fetcher.FetchArtifact(ctx, locator, cred)
}

// ProcessVideoJob runs a queued job and records its outcome. Deliveries of a
// job that is already running or finished are ignored.
func (g *Generator) ProcessVideoJob(ctx context.Context, payload messaging.VideoJobPayload) error {
	key := payload.JobID.String()
	if err := g.running.TryLock(key); err != nil {
		slog.Warn("video job already being processed", "job_id", payload.JobID, "error", err)
		return nil
	}
	defer func() {
		if err := g.running.Unlock(key); err != nil {
			slog.Error("error releasing video job lock", "job_id", payload.JobID, "error", err)
		}
	}()

	job, err := database.GetVideoJob(ctx, g.db, payload.JobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			slog.Warn("video job no longer exists", "job_id", payload.JobID)
			return nil
		}
		return err
	}
	if job.Status != database.JobQueued {
		slog.Info("skipping video job that is not queued", "job_id", job.ID, "status", job.Status)
		return nil
	}

	params, err := job.DecodeParams()
	if err != nil {
		return g.recordFailure(ctx, job.ID, fmt.Errorf("%w: %w", types.ErrUsage, err))
	}
	defer g.deleteInput(ctx, params.ImageKey)

	image, err := g.loadInput(ctx, params.ImageKey)
	if err != nil {
		return g.recordFailure(ctx, job.ID, err)
	}

	cred, err := g.activeCredential(ctx)
	if err != nil {
		return g.recordFailure(ctx, job.ID, err)
	}

	spec := types.VideoJobSpec{
		Prompt:      params.Prompt,
		Image:       types.Media{Data: image, MIMEType: params.MIMEType},
		AspectRatio: types.VideoAspectRatio(params.AspectRatio),
	}

	data, err := g.Generate(ctx, cred, spec, func(p Progress) {
		g.recordProgress(ctx, job.ID, p)
	})
	if err != nil {
		return g.recordFailure(ctx, job.ID, err)
	}

	artifactKey := storage.ArtifactKey(job.ID.String())
	if err := g.store.PutObject(ctx, artifactKey, bytes.NewReader(data)); err != nil {
		return g.recordFailure(ctx, job.ID, fmt.Errorf("%w: error storing video: %w", types.ErrTransport, err))
	}

	if err := database.CompleteVideoJob(ctx, g.db, job.ID, artifactKey); err != nil {
		return err
	}
	slog.Info("video job completed", "job_id", job.ID, "artifact_key", artifactKey, "bytes", len(data))
	return nil
}

func (g *Generator) recordProgress(ctx context.Context, jobID uuid.UUID, p Progress) {
	var err error
	if p.Attempt == 0 {
		err = database.StartVideoJob(ctx, g.db, jobID, p.Operation.Name)
		if err == nil {
			err = database.UpdateVideoJobProgress(ctx, g.db, jobID, 0, p.Phase)
		}
	} else {
		err = database.UpdateVideoJobProgress(ctx, g.db, jobID, p.Attempt, p.Phase)
	}
	if err != nil {
		slog.Warn("error recording video job progress", "job_id", jobID, "attempt", p.Attempt, "error", err)
	}
}

// recordFailure marks the job failed with a message fit for the user. It
// only returns an error when the failure itself could not be recorded.
func (g *Generator) recordFailure(ctx context.Context, jobID uuid.UUID, cause error) error {
	slog.Error("video job failed", "job_id", jobID, "kind", types.KindOf(cause), "error", cause)
	return database.FailVideoJob(context.WithoutCancel(ctx), g.db, jobID, string(types.KindOf(cause)), types.UserMessage(cause))
}

func (g *Generator) loadInput(ctx context.Context, key string) ([]byte, error) {
	reader, err := g.store.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: error loading starting image: %w", types.ErrTransport, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading starting image: %w", types.ErrTransport, err)
	}
	return data, nil
}

func (g *Generator) deleteInput(ctx context.Context, key string) {
	if err := g.store.DeleteObject(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("error deleting starting image", "key", key, "error", err)
	}
}

// Artifact opens the stored video of a completed job.
func (g *Generator) Artifact(ctx context.Context, jobID uuid.UUID) (io.ReadCloser, error) {
	job, err := database.GetVideoJob(ctx, g.db, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != database.JobCompleted || !job.ArtifactKey.Valid {
		return nil, fmt.Errorf("%w: video job %s has no video yet (status %s)", types.ErrUsage, jobID, job.Status)
	}
	return g.store.GetObject(ctx, job.ArtifactKey.String)
}

func (g *Generator) Job(ctx context.Context, jobID uuid.UUID) (database.VideoJob, error) {
	return database.GetVideoJob(ctx, g.db, jobID)
}

func (g *Generator) Jobs(ctx context.Context, status string) ([]database.VideoJob, error) {
	return database.ListVideoJobs(ctx, g.db, status)
}
