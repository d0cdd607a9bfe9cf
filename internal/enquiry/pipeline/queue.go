package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
)

var (
	// ErrQueueFull is returned when a lane's buffer is full.
	ErrQueueFull = errors.New("pipeline: queue full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("pipeline: queue closed")
)

// Queue accepts jobs for asynchronous delivery.
type Queue interface {
	Enqueue(ctx context.Context, job Job) (JobHandle, error)
}

// Handler processes one dequeued job.
type Handler func(ctx context.Context, job Job)

// MemoryQueue is an in-process queue split into lanes. A company always maps to the same lane and
// each lane is drained in FIFO order by exactly one worker.
type MemoryQueue struct {
	mu     sync.RWMutex
	lanes  []chan Job
	closed bool
	wg     sync.WaitGroup
}

// NewMemoryQueue returns a queue with the given number of lanes, each buffering up to size jobs.
func NewMemoryQueue(lanes, size int) *MemoryQueue {
	if lanes <= 0 {
		lanes = 1
	}
	if size <= 0 {
		size = 1
	}
	q := &MemoryQueue{lanes: make([]chan Job, lanes)}
	for i := range q.lanes {
		q.lanes[i] = make(chan Job, size)
	}
	return q
}

// LaneFor returns the lane index for key.
func LaneFor(key string, lanes int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(lanes))
}

// Enqueue adds job to its company's lane without blocking.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) (JobHandle, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return JobHandle{}, ErrQueueClosed
	}
	lane := LaneFor(job.CompanyID, len(q.lanes))
	select {
	case q.lanes[lane] <- job:
		return JobHandle{ID: job.ID, Lane: lane}, nil
	default:
		return JobHandle{}, ErrQueueFull
	}
}

// Start runs one worker per lane. Handlers get a context detached from ctx's cancellation so
// in-flight jobs are not cut short; workers exit once Close has been called and their lane is empty.
func (q *MemoryQueue) Start(ctx context.Context, h Handler) {
	jobCtx := context.WithoutCancel(ctx)
	for i, lane := range q.lanes {
		q.wg.Add(1)
		go func(i int, lane <-chan Job) {
			defer q.wg.Done()
			for job := range lane {
				h(jobCtx, job)
			}
			slog.Debug("pipeline: lane drained", "lane", i)
		}(i, lane)
	}
}

// Close stops accepting jobs and waits for queued jobs to finish or ctx to end. Jobs still queued
// when ctx ends are lost and reported in the returned error.
func (q *MemoryQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		pending := 0
		for _, lane := range q.lanes {
			pending += len(lane)
		}
		slog.Error("pipeline: shutdown before queue drained, jobs lost", "pending", pending)
		return ctx.Err()
	}
}
