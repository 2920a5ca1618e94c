package worker

import (
	"sync"
	"time"

	"vodscribe/internal/models"
	"vodscribe/internal/progress"
)

const defaultLogLimit = 800

// logRing keeps the most recent lines.
type logRing struct {
	lines []string
	start int
	limit int
}

func newLogRing(limit int) *logRing {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	return &logRing{limit: limit}
}

func (r *logRing) push(line string) {
	if len(r.lines) < r.limit {
		r.lines = append(r.lines, line)
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % r.limit
}

func (r *logRing) snapshot() []string {
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.start:]...)
	out = append(out, r.lines[:r.start]...)
	return out
}

// runState is the process-wide run status. Only the worker goroutine (and the heartbeat it
// starts) writes it; API callers read copies through snapshot.
type runState struct {
	mu          sync.RWMutex
	status      models.OverallStatus
	jobID       string
	sourceLabel string
	itemTitle   string
	lastSaved   models.SavedArtifact
	logs        *logRing

	progress progress.Tracker
	now      func() time.Time
}

func newRunState(logLimit int) *runState {
	return &runState{
		status: models.OverallIdle,
		logs:   newLogRing(logLimit),
		now:    time.Now,
	}
}

func (s *runState) begin(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = models.OverallRunning
	s.jobID = job.ID
	s.sourceLabel = job.Label()
	s.itemTitle = ""
	if job.Item != nil {
		s.itemTitle = job.Item.Title
	}
	s.progress.Reset()
}

func (s *runState) setCurrent(sourceLabel, itemTitle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceLabel = sourceLabel
	s.itemTitle = itemTitle
}

func (s *runState) saved(jobID, path, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSaved = models.SavedArtifact{JobID: jobID, Path: path, Name: name, At: s.now()}
}

// finish settles the overall status after a job. failed keeps the error state visible.
func (s *runState) finish(queueEmpty, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case failed:
		s.status = models.OverallError
	case queueEmpty:
		s.status = models.OverallIdle
	}
	if queueEmpty {
		s.jobID = ""
		s.sourceLabel = ""
		s.itemTitle = ""
	}
}

func (s *runState) appendLog(msg string) {
	line := "[" + s.now().Format("15:04:05") + "] " + msg
	s.mu.Lock()
	s.logs.push(line)
	s.mu.Unlock()
}

func (s *runState) snapshot(queueSize int) models.RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.RunSnapshot{
		OverallStatus:      s.status,
		Progress:           s.progress.Value(),
		Logs:               s.logs.snapshot(),
		QueueSize:          queueSize,
		CurrentJobID:       s.jobID,
		CurrentSourceLabel: s.sourceLabel,
		CurrentItemTitle:   s.itemTitle,
		LastSaved:          s.lastSaved,
	}
}
