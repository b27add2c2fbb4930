package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []uuid.UUID
	fail map[uuid.UUID]bool
	done chan struct{}
	want int
}

func (p *recordingProcessor) ProcessVideoJob(ctx context.Context, payload VideoJobPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen = append(p.seen, payload.JobID)
	if len(p.seen) == p.want {
		close(p.done)
	}
	if p.fail[payload.JobID] {
		return errors.New("could not record result")
	}
	return nil
}

type trackedTask struct {
	inMemoryTask
	mu     sync.Mutex
	result string
}

func (t *trackedTask) record(result string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = result
	return nil
}

func (t *trackedTask) Ack() error    { return t.record("ack") }
func (t *trackedTask) Nack() error   { return t.record("nack") }
func (t *trackedTask) Reject() error { return t.record("reject") }

func (t *trackedTask) Result() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func TestWorkerProcessesQueuedJobs(t *testing.T) {
	queue := NewInMemoryQueue()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	processor := &recordingProcessor{done: make(chan struct{}), want: len(ids)}

	for _, id := range ids {
		require.NoError(t, queue.PublishVideoJob(context.Background(), VideoJobPayload{JobID: id}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		NewWorker(queue, processor, 2).Run(ctx)
		close(stopped)
	}()

	select {
	case <-processor.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}

	processor.mu.Lock()
	assert.ElementsMatch(t, ids, processor.seen)
	processor.mu.Unlock()

	queue.Close()
	<-stopped
}

func TestWorkerAcknowledgement(t *testing.T) {
	good, bad := uuid.New(), uuid.New()
	processor := &recordingProcessor{done: make(chan struct{}), want: 2, fail: map[uuid.UUID]bool{bad: true}}
	worker := NewWorker(NewInMemoryQueue(), processor, 1)

	tasks := map[string]*trackedTask{
		"good":      {inMemoryTask: inMemoryTask{queue: VideoJobQueue, payload: []byte(`{"job_id":"` + good.String() + `"}`)}},
		"bad":       {inMemoryTask: inMemoryTask{queue: VideoJobQueue, payload: []byte(`{"job_id":"` + bad.String() + `"}`)}},
		"malformed": {inMemoryTask: inMemoryTask{queue: VideoJobQueue, payload: []byte(`not json`)}},
		"unknown":   {inMemoryTask: inMemoryTask{queue: "other_queue", payload: []byte(`{}`)}},
	}
	for _, task := range tasks {
		worker.process(context.Background(), 0, task)
	}

	assert.Equal(t, "ack", tasks["good"].Result())
	assert.Equal(t, "nack", tasks["bad"].Result())
	assert.Equal(t, "reject", tasks["malformed"].Result())
	assert.Equal(t, "reject", tasks["unknown"].Result())
}

func TestInMemoryQueueClosed(t *testing.T) {
	queue := NewInMemoryQueue()
	queue.Close()
	queue.Close()

	err := queue.PublishVideoJob(context.Background(), VideoJobPayload{JobID: uuid.New()})
	assert.Error(t, err)
}
