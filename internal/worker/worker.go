package worker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vodscribe/internal/models"
)

var (
	// ErrStopRequested is the cancel cause of a user stop or terminate request.
	ErrStopRequested = errors.New("stop requested")
	// ErrEngineInit aborts the current job before any item is processed.
	ErrEngineInit = errors.New("engine initialization failed")
)

// Defaults.
const (
	DefaultTerminateWait = 15 * time.Second
	DiagnosticsClip      = 30 * time.Second
)

// Reporter is how a running job reports back into the run state.
type Reporter interface {
	// Progress raises the job progress (0..100); lower values are ignored.
	Progress(pct int)
	// Current sets the source label and item title shown as in-flight.
	Current(sourceLabel, itemTitle string)
	// Logf appends a line to the run log.
	Logf(format string, args ...any)
	// Saved binds the artifact path of the current job as last saved.
	Saved(path string)
	// Abort sets the cancellation flag with the given cause.
	Abort(cause error)
}

// Runner executes one job. It returns nil for normal completion and for cancellation; a
// non-nil error means the job could not run at all.
type Runner interface {
	Run(ctx context.Context, job models.Job, rep Reporter) error
}

// Options configures a Worker.
type Options struct {
	TerminateWait time.Duration
	StatusLimit   int
	LogLimit      int
	Logger        *zap.Logger
}

// Worker consumes the job queue with a single goroutine.
type Worker struct {
	runner        Runner
	queue         *Queue
	statuses      *statusTable
	state         *runState
	logger        *zap.Logger
	terminateWait time.Duration

	// mu orders dispatch against enqueue and terminate so a job is always either
	// pending in the queue or the current job.
	mu          sync.Mutex
	active      bool
	currentID   string
	cancel      context.CancelCauseFunc
	currentDone chan struct{}

	stopFlag atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a worker around runner.
func New(runner Runner, opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	wait := opts.TerminateWait
	if wait <= 0 {
		wait = DefaultTerminateWait
	}
	return &Worker{
		runner:        runner,
		queue:         NewQueue(),
		statuses:      newStatusTable(opts.StatusLimit),
		state:         newRunState(opts.LogLimit),
		logger:        logger,
		terminateWait: wait,
		stop:          make(chan struct{}),
	}
}

// Start begins processing jobs.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("worker started")
}

// Stop cancels the current job, stops the loop and waits for it to exit.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.mu.Lock()
		if w.active {
			w.stopFlag.Store(true)
			w.cancel(ErrStopRequested)
		}
		w.mu.Unlock()
	})
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		default:
		}

		job, jobCtx, ok := w.dispatch(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-w.queue.Ready():
			}
			continue
		}
		w.execute(jobCtx, job)
	}
}

// dispatch pops the next job and makes it current in one step.
func (w *Worker) dispatch(ctx context.Context) (models.Job, context.Context, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	job, ok := w.queue.TryPop()
	if !ok {
		return models.Job{}, nil, false
	}
	jobCtx, cancel := context.WithCancelCause(ctx)
	w.active = true
	w.currentID = job.ID
	w.cancel = cancel
	w.currentDone = make(chan struct{})
	w.stopFlag.Store(false)

	w.state.begin(job)
	w.statuses.transition(job.ID, models.JobStatusRunning)
	return job, jobCtx, true
}

func (w *Worker) execute(ctx context.Context, job models.Job) {
	started := time.Now()
	rep := &jobReporter{w: w, job: job}
	rep.Logf("job started: %s", describe(job))

	err := w.runSafely(ctx, job, rep)
	cancelled := w.stopFlag.Load() || ctx.Err() != nil

	status := models.JobStatusCompleted
	if cancelled {
		status = models.JobStatusTerminated
	}
	switch {
	case err != nil:
		w.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)), zap.Error(err))
		rep.Logf("job aborted: %v", err)
	case cancelled:
		rep.Logf("job stopped after %s", time.Since(started).Round(time.Second))
	default:
		rep.Logf("job finished in %s", time.Since(started).Round(time.Second))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.cancel(nil)
	w.statuses.transition(job.ID, status)
	w.state.finish(w.queue.Len() == 0, err != nil)
	close(w.currentDone)
	w.active = false
	w.currentID = ""
	w.cancel = nil
	w.currentDone = nil
}

func (w *Worker) runSafely(ctx context.Context, job models.Job, rep Reporter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.runner.Run(ctx, job, rep)
}

// Enqueue appends job to the queue. It never blocks. A job whose id is still pending or
// running is queued without an id so the live job's status stays untouched.
func (w *Worker) Enqueue(job models.Job) models.Job {
	w.mu.Lock()
	if !w.statuses.enqueued(job.ID) {
		w.logger.Warn("job id already in use, queued without id", zap.String("job_id", job.ID))
		job.ID = ""
	}
	w.queue.Push(job)
	w.mu.Unlock()

	w.logger.Debug("job queued", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	return job
}

// EnqueueAll queues a run over every tracked source.
func (w *Worker) EnqueueAll(jobID string) models.Job {
	return w.Enqueue(models.NewRunAll(jobID))
}

// EnqueueSource queues a run over one source. maxItems <= 0 means all items.
func (w *Worker) EnqueueSource(source models.Source, force bool, maxItems int, jobID string) models.Job {
	return w.Enqueue(models.NewRunSource(jobID, source, force, maxItems))
}

// EnqueueItem queues a run over exactly one item.
func (w *Worker) EnqueueItem(sourceLabel string, item models.Item, force bool, jobID string) models.Job {
	return w.Enqueue(models.NewRunItem(jobID, sourceLabel, item, force))
}

// EnqueueDiagnostics queues a forced single-item run with a short transcription clip.
func (w *Worker) EnqueueDiagnostics(sourceLabel string, item models.Item, jobID string) models.Job {
	job := models.NewRunItem(jobID, sourceLabel, item, true)
	job.Clip = DiagnosticsClip
	return w.Enqueue(job)
}

// StopResult reports what a stop request affected.
type StopResult struct {
	Removed      []string `json:"removed"`
	RemovedCount int      `json:"removed_count"`
	Stopping     bool     `json:"stopping"`
	CurrentJobID string   `json:"current_job_id,omitempty"`
}

// RequestStop drops every pending job and signals the current job to stop at its next checkpoint.
func (w *Worker) RequestStop() StopResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := w.queue.RemoveIf(func(models.Job) bool { return true })
	res := StopResult{RemovedCount: len(removed), Removed: []string{}}
	for _, job := range removed {
		if w.statuses.transition(job.ID, models.JobStatusTerminated) {
			res.Removed = append(res.Removed, job.ID)
		}
	}
	if w.active {
		w.stopFlag.Store(true)
		w.cancel(ErrStopRequested)
		res.Stopping = true
		res.CurrentJobID = w.currentID
	}
	w.state.appendLog(fmt.Sprintf("stop requested: %d pending job(s) removed", len(removed)))
	w.logger.Info("stop requested", zap.Int("removed", len(removed)), zap.Bool("stopping", res.Stopping))
	return res
}

// TerminateResult reports the outcome of terminating one job id.
type TerminateResult struct {
	JobID    string           `json:"job_id"`
	Status   models.JobStatus `json:"status"`
	Removed  bool             `json:"removed"`
	Signaled bool             `json:"signaled"`
	TimedOut bool             `json:"timed_out"`
}

// Terminate cancels one job. A pending job is removed from the queue; the current job is
// signalled and waited for up to the terminate wait.
func (w *Worker) Terminate(ctx context.Context, jobID string) TerminateResult {
	return w.TerminateBatch(ctx, []string{jobID})[0]
}

// TerminateBatch cancels several jobs with a single wait for the current one.
func (w *Worker) TerminateBatch(ctx context.Context, jobIDs []string) []TerminateResult {
	targets := make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		if id != "" {
			targets[id] = true
		}
	}

	w.mu.Lock()
	removed := map[string]bool{}
	for _, job := range w.queue.RemoveIf(func(j models.Job) bool { return targets[j.ID] }) {
		w.statuses.transition(job.ID, models.JobStatusTerminated)
		removed[job.ID] = true
	}
	var done chan struct{}
	signaled := ""
	if w.active && targets[w.currentID] {
		w.stopFlag.Store(true)
		w.cancel(ErrStopRequested)
		done = w.currentDone
		signaled = w.currentID
	}
	w.mu.Unlock()

	if len(removed) > 0 || signaled != "" {
		w.state.appendLog(fmt.Sprintf("terminate: %d pending removed, current signaled=%t", len(removed), signaled != ""))
	}

	timedOut := false
	if done != nil {
		timer := time.NewTimer(w.terminateWait)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			timedOut = true
		case <-ctx.Done():
			timedOut = true
		}
	}

	results := make([]TerminateResult, 0, len(jobIDs))
	for _, id := range jobIDs {
		res := TerminateResult{JobID: id, Removed: removed[id]}
		if id != "" && id == signaled {
			res.Signaled = true
			res.TimedOut = timedOut
		}
		res.Status = w.statuses.get(id)
		results = append(results, res)
	}
	return results
}

// JobStatus returns the stored status for id, or unknown.
func (w *Worker) JobStatus(jobID string) models.JobStatus {
	if jobID == "" {
		return models.JobStatusUnknown
	}
	return w.statuses.get(jobID)
}

// Snapshot returns a read-only copy of the run state.
func (w *Worker) Snapshot() models.RunSnapshot {
	return w.state.snapshot(w.queue.Len())
}

// Pending returns the queued jobs in run order.
func (w *Worker) Pending() []models.Job {
	return w.queue.Pending()
}

// jobReporter binds Reporter calls to the job that is currently running.
type jobReporter struct {
	w   *Worker
	job models.Job
}

func (r *jobReporter) Progress(pct int) {
	r.w.state.progress.Advance(pct)
}

func (r *jobReporter) Current(sourceLabel, itemTitle string) {
	r.w.state.setCurrent(sourceLabel, itemTitle)
}

func (r *jobReporter) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.w.state.appendLog(msg)
	r.w.logger.Info(msg, zap.String("job_id", r.job.ID))
}

func (r *jobReporter) Saved(p string) {
	r.w.state.saved(r.job.ID, p, path.Base(p))
}

func (r *jobReporter) Abort(cause error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if !r.w.active || r.w.currentID != r.job.ID {
		return
	}
	r.w.stopFlag.Store(true)
	r.w.cancel(cause)
}

func describe(job models.Job) string {
	switch job.Kind {
	case models.JobKindRunSource:
		return fmt.Sprintf("source %s (force=%t)", job.Source.Label(), job.Force)
	case models.JobKindRunItem:
		title := ""
		if job.Item != nil {
			title = job.Item.Title
		}
		return fmt.Sprintf("item %q from %s (force=%t)", title, job.SourceLabel, job.Force)
	}
	return "all sources"
}
