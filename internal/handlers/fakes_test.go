package handlers

import (
	"context"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"vodscribe/internal/models"
	"vodscribe/internal/storage"
	"vodscribe/internal/worker"
)

type fakeQueue struct {
	mu       sync.Mutex
	jobs     []models.Job
	statuses map[string]models.JobStatus
	stopped  int
	snapshot models.RunSnapshot
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: make(map[string]models.JobStatus)}
}

func (q *fakeQueue) push(job models.Job) models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	q.statuses[job.ID] = models.JobStatusPending
	return job
}

func (q *fakeQueue) EnqueueAll(id string) models.Job { return q.push(models.NewRunAll(id)) }

func (q *fakeQueue) EnqueueSource(src models.Source, force bool, max int, id string) models.Job {
	return q.push(models.NewRunSource(id, src, force, max))
}

func (q *fakeQueue) EnqueueItem(label string, item models.Item, force bool, id string) models.Job {
	return q.push(models.NewRunItem(id, label, item, force))
}

func (q *fakeQueue) EnqueueDiagnostics(label string, item models.Item, id string) models.Job {
	job := models.NewRunItem(id, label, item, true)
	job.Clip = worker.DiagnosticsClip
	return q.push(job)
}

func (q *fakeQueue) RequestStop() worker.StopResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped++
	var removed []string
	for _, j := range q.jobs {
		if q.statuses[j.ID] == models.JobStatusPending {
			q.statuses[j.ID] = models.JobStatusTerminated
			removed = append(removed, j.ID)
		}
	}
	return worker.StopResult{Removed: removed, RemovedCount: len(removed)}
}

func (q *fakeQueue) Terminate(_ context.Context, id string) worker.TerminateResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.statuses[id]
	if !ok {
		return worker.TerminateResult{JobID: id, Status: models.JobStatusUnknown}
	}
	if st == models.JobStatusPending {
		q.statuses[id] = models.JobStatusTerminated
		return worker.TerminateResult{JobID: id, Status: models.JobStatusTerminated, Removed: true}
	}
	return worker.TerminateResult{JobID: id, Status: st}
}

func (q *fakeQueue) TerminateBatch(ctx context.Context, ids []string) []worker.TerminateResult {
	out := make([]worker.TerminateResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, q.Terminate(ctx, id))
	}
	return out
}

func (q *fakeQueue) JobStatus(id string) models.JobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	if st, ok := q.statuses[id]; ok {
		return st
	}
	return models.JobStatusUnknown
}

func (q *fakeQueue) Snapshot() models.RunSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot
}

func (q *fakeQueue) last() models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[len(q.jobs)-1]
}

type fakeCatalog struct {
	ItemsFunc      func(ctx context.Context, sourceID string) ([]models.Item, error)
	SourceInfoFunc func(ctx context.Context, input string) (models.SourceInfo, error)
	VideoFunc      func(ctx context.Context, idOrURL string) (models.Item, error)
}

func (f *fakeCatalog) Items(ctx context.Context, id string) ([]models.Item, error) {
	return f.ItemsFunc(ctx, id)
}

func (f *fakeCatalog) SourceInfo(ctx context.Context, input string) (models.SourceInfo, error) {
	return f.SourceInfoFunc(ctx, input)
}

func (f *fakeCatalog) Video(ctx context.Context, idOrURL string) (models.Item, error) {
	return f.VideoFunc(ctx, idOrURL)
}

type fakePoller struct {
	mu   sync.Mutex
	caps []int
}

func (p *fakePoller) Poll(_ context.Context, max int) (models.PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caps = append(p.caps, max)
	return models.PollResult{Events: []models.MonitorEvent{}}, nil
}

type testServer struct {
	e         *echo.Echo
	queue     *fakeQueue
	catalog   *fakeCatalog
	poller    *fakePoller
	registry  *storage.SourceRegistry
	history   *storage.HistoryLedger
	artifacts *storage.ArtifactStore
	state     *storage.MonitorStateStore
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	dir := t.TempDir()

	registry, err := storage.OpenSourceRegistry(dir+"/sources.json", []models.Source{{ID: "UCaaa", Name: "Alpha"}})
	require.NoError(t, err)
	history, err := storage.OpenHistoryLedger(dir+"/history.json", 100)
	require.NoError(t, err)
	artifacts, err := storage.NewArtifactStore(dir + "/output")
	require.NoError(t, err)
	state := storage.NewMonitorStateStore(dir + "/monitor.json")

	ts := &testServer{
		e:     echo.New(),
		queue: newFakeQueue(),
		catalog: &fakeCatalog{
			ItemsFunc: func(context.Context, string) ([]models.Item, error) {
				return []models.Item{{ID: "v2", Title: "Newest"}, {ID: "v1", Title: "Older"}}, nil
			},
			SourceInfoFunc: func(_ context.Context, input string) (models.SourceInfo, error) {
				return models.SourceInfo{ID: "UCbbb", DisplayName: "Beta", URL: "https://www.youtube.com/channel/UCbbb"}, nil
			},
			VideoFunc: func(_ context.Context, idOrURL string) (models.Item, error) {
				return models.Item{ID: "vx", Title: "From URL", Author: "Uploader"}, nil
			},
		},
		poller:    &fakePoller{},
		registry:  registry,
		history:   history,
		artifacts: artifacts,
		state:     state,
	}

	Register(ts.e, Routes{
		Run:         NewRunHandler(ts.queue, ts.catalog, history, artifacts, nil),
		Sources:     NewSourceHandler(registry, state, ts.catalog, ts.queue, nil),
		Files:       NewFileHandler(artifacts, nil),
		Monitor:     NewMonitorHandler(ts.poller, state),
		Diagnostics: NewDiagnosticsHandler(registry, ts.catalog, ts.queue, history, nil),
		Page:        NewPageHandler(ts.queue, history),
		APIKey:      apiKey,
	})
	return ts
}
