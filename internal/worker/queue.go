package worker

import (
	"sync"

	"vodscribe/internal/models"
)

// Queue is an unbounded FIFO of jobs with filtered removal.
// Push never blocks; consumers wait on Ready and then call TryPop.
type Queue struct {
	mu    sync.Mutex
	jobs  []models.Job
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends a job and wakes the consumer.
func (q *Queue) Push(job models.Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the oldest job, if any.
func (q *Queue) TryPop() (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return models.Job{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = models.Job{}
	q.jobs = q.jobs[1:]
	return job, true
}

// Ready is signalled after a Push. A signal may be stale; always re-check with TryPop.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// RemoveIf rebuilds the queue without the jobs matching fn and returns the removed jobs in order.
func (q *Queue) RemoveIf(fn func(models.Job) bool) []models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []models.Job
	kept := make([]models.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if fn(job) {
			removed = append(removed, job)
			continue
		}
		kept = append(kept, job)
	}
	q.jobs = kept
	return removed
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Pending returns a copy of the pending jobs in order.
func (q *Queue) Pending() []models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}
