// Package tasks runs long operations (ingestion, graph builds, indexing) off
// the request path on a worker pool, persisting job state so callers can
// poll for completion.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/citeweave/citeweave/internal/storage"
)

// Job types.
const (
	TypeIngestPDF   = "ingest_pdf"
	TypeIngestTopic = "ingest_topic"
	TypeGraphBuild  = "graph_build"
	TypeIndexPaper  = "index_paper"
)

// Handler executes one job type. The returned value is JSON-encoded into the
// job's detail on success; an error fails the job with the error text.
type Handler func(ctx context.Context, job *storage.Job, payload json.RawMessage) (any, error)

// queued pairs a persisted job with its payload for delivery to a worker.
type queued struct {
	job     storage.Job
	payload json.RawMessage
}

// Queue is a persistent job queue backed by a fixed worker pool. Job rows
// survive process restarts; the in-memory channel does not, so restarted
// processes see interrupted jobs still PENDING or RUNNING and can report
// them.
type Queue struct {
	db         *storage.DB
	numWorkers int

	handlers map[string]Handler
	jobs     chan queued
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue with the given number of workers.
func NewQueue(db *storage.DB, numWorkers int) *Queue {
	if numWorkers <= 0 {
		numWorkers = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		db:         db,
		numWorkers: numWorkers,
		handlers:   make(map[string]Handler),
		jobs:       make(chan queued, numWorkers*2),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register binds a handler to a job type. Must be called before Start.
func (q *Queue) Register(jobType string, h Handler) {
	q.handlers[jobType] = h
}

// Start launches the workers.
func (q *Queue) Start() {
	for i := 0; i < q.numWorkers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Enqueue persists a PENDING job and hands it to the pool. The payload must
// be JSON-encodable. Returns the job ID immediately; execution is
// asynchronous.
func (q *Queue) Enqueue(collectionID, jobType string, payload any) (string, error) {
	if _, ok := q.handlers[jobType]; !ok {
		return "", fmt.Errorf("no handler registered for job type %q", jobType)
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", fmt.Errorf("queue is shut down")
	}
	q.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}

	job := storage.Job{
		ID:           uuid.New().String(),
		CollectionID: collectionID,
		Type:         jobType,
		State:        storage.JobPending,
	}
	if err := q.db.CreateJob(&job); err != nil {
		return "", err
	}

	select {
	case q.jobs <- queued{job: job, payload: raw}:
	case <-q.ctx.Done():
		return "", q.ctx.Err()
	}
	return job.ID, nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case item, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(item)
		}
	}
}

// run drives one job through its state transitions. Handler failures mark
// the job FAILED; they never take down the worker.
func (q *Queue) run(item queued) {
	if err := q.db.UpdateJobState(item.job.ID, storage.JobRunning, ""); err != nil {
		slog.Error("job state update failed", "job", item.job.ID, "error", err)
		return
	}

	handler := q.handlers[item.job.Type]
	result, err := handler(q.ctx, &item.job, item.payload)
	if err != nil {
		slog.Warn("job failed", "job", item.job.ID, "type", item.job.Type, "error", err)
		q.db.UpdateJobState(item.job.ID, storage.JobFailed, err.Error())
		return
	}

	detail := ""
	if result != nil {
		if encoded, err := json.Marshal(result); err == nil {
			detail = string(encoded)
		}
	}
	q.db.UpdateJobState(item.job.ID, storage.JobCompleted, detail)
}

// Drain waits for every queued job to finish, then stops the workers. New
// enqueues after Drain are rejected.
func (q *Queue) Drain() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
	q.cancel()
}

// Shutdown cancels running jobs and stops the workers without waiting for
// the backlog.
func (q *Queue) Shutdown() {
	q.cancel()
	q.wg.Wait()
}
