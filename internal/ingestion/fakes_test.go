package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"vodscribe/internal/models"
)

type fakeSources struct {
	sources []models.Source
}

func (f *fakeSources) List() []models.Source { return f.sources }

type fakeLister struct {
	mu    sync.Mutex
	items map[string][]models.Item
	errs  map[string]error
	calls int
}

func (f *fakeLister) Items(_ context.Context, sourceID string) ([]models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[sourceID]; err != nil {
		return nil, err
	}
	return f.items[sourceID], nil
}

type fakeDownloader struct {
	mu      sync.Mutex
	calls   []string
	cleaned []string
	errFor  map[string]error
	stall   bool
}

func (f *fakeDownloader) FetchAudio(ctx context.Context, item models.Item, onProgress func(float64)) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.ID)
	err := f.errFor[item.ID]
	stall := f.stall
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	if stall {
		onProgress(5)
		<-ctx.Done()
		return "", ctx.Err()
	}
	for _, pct := range []float64{10, 50, 100} {
		onProgress(pct)
	}
	return "/tmp/audio-" + item.ID + ".m4a", nil
}

func (f *fakeDownloader) Cleanup(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, path)
}

func (f *fakeDownloader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeTranscriber struct {
	mu       sync.Mutex
	calls    int
	clips    []time.Duration
	text     string
	err      error
	started  chan struct{}
	blocking bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string, onProgress func(float64), clip time.Duration) (string, error) {
	f.mu.Lock()
	f.calls++
	f.clips = append(f.clips, clip)
	started, blocking := f.started, f.blocking
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if blocking {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	for _, frac := range []float64{0.25, 0.5, 1} {
		onProgress(frac)
	}
	return f.text, nil
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	summary models.Summary
	err     error
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string, _ models.Item) (models.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.Summary{}, f.err
	}
	if f.summary.Kind == "" {
		return models.Summary{Kind: models.SummaryReady, Text: "## Summary\n" + transcript}, nil
	}
	return f.summary, nil
}

func (f *fakeSummarizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRemote struct {
	mu        sync.Mutex
	submitted []string
	polls     int
	statuses  []models.RemoteStatus
	submitErr error
}

func (f *fakeRemote) Submit(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, url)
	return "task-1", nil
}

func (f *fakeRemote) Poll(_ context.Context, _ string) (models.RemoteStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if len(f.statuses) == 0 {
		return models.RemoteStatus{}, errors.New("no statuses")
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

// recordingReporter captures reporter calls for direct Processor.Run tests.
type recordingReporter struct {
	mu       sync.Mutex
	progress []int
	saved    []string
	logs     []string
	cancel   context.CancelCauseFunc
}

func (r *recordingReporter) Progress(pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, pct)
}

func (r *recordingReporter) Current(string, string) {}

func (r *recordingReporter) Logf(format string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, format)
}

func (r *recordingReporter) Saved(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, path)
}

func (r *recordingReporter) Abort(cause error) {
	if r.cancel != nil {
		r.cancel(cause)
	}
}

func (r *recordingReporter) Progresses() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.progress))
	copy(out, r.progress)
	return out
}
