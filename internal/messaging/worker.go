package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// VideoJobProcessor runs one queued video job to its terminal state. It
// returns an error only when the job could not be recorded as finished.
type VideoJobProcessor interface {
	ProcessVideoJob(ctx context.Context, payload VideoJobPayload) error
}

type Worker struct {
	receiver    Receiver
	processor   VideoJobProcessor
	concurrency int
}

func NewWorker(receiver Receiver, processor VideoJobProcessor, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{receiver: receiver, processor: processor, concurrency: concurrency}
}

// Run consumes tasks until ctx is done or the receiver's channel is closed.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("starting worker", "concurrency", w.concurrency)

	var wg sync.WaitGroup
	wg.Add(w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()

	slog.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context, id int) {
	tasks := w.receiver.Tasks()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			w.process(ctx, id, task)
		}
	}
}

func (w *Worker) process(ctx context.Context, id int, task Task) {
	switch task.Type() {
	case VideoJobQueue:
		var payload VideoJobPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("received malformed video job payload", "worker", id, "error", err)
			ackOrLog(task.Reject, "reject")
			return
		}

		slog.Info("received video job", "worker", id, "job_id", payload.JobID)
		if err := w.processor.ProcessVideoJob(ctx, payload); err != nil {
			slog.Error("error processing video job", "worker", id, "job_id", payload.JobID, "error", err)
			ackOrLog(task.Nack, "nack")
			return
		}
		slog.Info("video job processed", "worker", id, "job_id", payload.JobID)
		ackOrLog(task.Ack, "ack")

	default:
		slog.Error("received task of unknown type", "worker", id, "type", task.Type())
		ackOrLog(task.Reject, "reject")
	}
}

func ackOrLog(fn func() error, action string) {
	if err := fn(); err != nil {
		slog.Error("error acknowledging task", "action", action, "error", err)
	}
}
