package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodscribe/internal/models"
	"vodscribe/internal/storage"
	"vodscribe/internal/worker"
)

type fixture struct {
	sources     *fakeSources
	lister      *fakeLister
	downloader  *fakeDownloader
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	remote      *fakeRemote
	artifacts   *storage.ArtifactStore
	history     *storage.HistoryLedger
	processor   *Processor
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatTick = 2 * time.Millisecond
	cfg.HeartbeatLogEvery = 10 * time.Millisecond
	cfg.DownloadThrottle = time.Millisecond
	cfg.RemotePollInterval = time.Millisecond
	return cfg
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()
	artifacts, err := storage.NewArtifactStore(filepath.Join(dir, "output"))
	require.NoError(t, err)
	history, err := storage.OpenHistoryLedger(filepath.Join(dir, "history.json"), 100)
	require.NoError(t, err)

	f := &fixture{
		sources:     &fakeSources{},
		lister:      &fakeLister{items: map[string][]models.Item{}, errs: map[string]error{}},
		downloader:  &fakeDownloader{errFor: map[string]error{}},
		transcriber: &fakeTranscriber{text: "hello world"},
		summarizer:  &fakeSummarizer{},
		remote:      &fakeRemote{},
		artifacts:   artifacts,
		history:     history,
	}
	f.processor = NewProcessor(Deps{
		Sources:         f.sources,
		Lister:          f.lister,
		Downloader:      f.downloader,
		LoadTranscriber: func() (Transcriber, error) { return f.transcriber, nil },
		Summarizer:      f.summarizer,
		Remote:          f.remote,
		Artifacts:       artifacts,
		History:         history,
	}, cfg)
	return f
}

func (f *fixture) seedArtifact(t *testing.T, rel string) {
	t.Helper()
	abs := filepath.Join(f.artifacts.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte("existing"), 0o644))
}

func (f *fixture) startWorker(t *testing.T) *worker.Worker {
	t.Helper()
	w := worker.New(f.processor, worker.Options{TerminateWait: 2 * time.Second})
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	return w
}

func waitStatus(t *testing.T, w *worker.Worker, id string, want models.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool { return w.JobStatus(id) == want },
		3*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
}

var (
	itemA = models.Item{ID: "vidA", Title: "Episode A", URL: "https://example.com/a", UploadDate: "20240101"}
	itemB = models.Item{ID: "vidB", Title: "Episode B", URL: "https://example.com/b", UploadDate: "20240102"}
)

func TestSkipsExistingArtifactWithoutRunningStages(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedArtifact(t, "Channel/[2024-01-01] Episode A.md")
	rep := &recordingReporter{}

	err := f.processor.Run(context.Background(), models.NewRunItem("j1", "Channel", itemA, false), rep)
	require.NoError(t, err)

	assert.Equal(t, 0, f.downloader.Calls())
	assert.Equal(t, 0, f.transcriber.Calls())
	assert.Equal(t, 0, f.summarizer.Calls())

	records := f.history.List()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeSuccess, records[0].Outcome)
	assert.Equal(t, "Channel/[2024-01-01] Episode A.md", records[0].ArtifactPath)
	assert.Equal(t, "already exists, skipped", records[0].Detail)
	assert.Equal(t, "j1", records[0].JobID)
	assert.Equal(t, []string{"Channel/[2024-01-01] Episode A.md"}, rep.saved)
}

func TestUnbindableArtifactRecordsFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedArtifact(t, "Channel/vidA.txt")

	err := f.processor.Run(context.Background(), models.NewRunItem("j1", "Channel", itemA, false), &recordingReporter{})
	require.NoError(t, err)

	assert.Equal(t, 0, f.downloader.Calls())
	records := f.history.List()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeFailure, records[0].Outcome)
	assert.Contains(t, records[0].Detail, "could not be bound")
}

func TestForceRunsPipelineDespiteArtifact(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedArtifact(t, "Channel/[2024-01-01] Episode A.md")

	err := f.processor.Run(context.Background(), models.NewRunItem("j1", "Channel", itemA, true), &recordingReporter{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.downloader.Calls())
	assert.Equal(t, 1, f.transcriber.Calls())
	assert.Equal(t, 1, f.summarizer.Calls())
	assert.Equal(t, []string{"/tmp/audio-vidA.m4a"}, f.downloader.cleaned)

	records := f.history.List()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, models.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, "processed", rec.Detail)
	require.NotNil(t, rec.StageDurations.Download)
	require.NotNil(t, rec.StageDurations.Transcribe)
	require.NotNil(t, rec.StageDurations.Summarize)

	content, err := f.artifacts.Read(rec.ArtifactPath)
	require.NoError(t, err)
	assert.Contains(t, content, "origin: summary")
	assert.Contains(t, content, "## Summary\nhello world")
}

func TestSummaryUnavailableSavesTranscript(t *testing.T) {
	f := newFixture(t, testConfig())
	f.summarizer.summary = models.Summary{Kind: models.SummaryUnavailable, Reason: "no api key"}

	require.NoError(t, f.processor.Run(context.Background(), models.NewRunItem("", "Channel", itemB, false), &recordingReporter{}))

	records := f.history.List()
	require.Len(t, records, 1)
	content, err := f.artifacts.Read(records[0].ArtifactPath)
	require.NoError(t, err)
	assert.Contains(t, content, "origin: transcript")
	assert.True(t, strings.HasSuffix(content, "\nhello world\n"))
}

func TestStageFailuresAreRecordedAndBatchContinues(t *testing.T) {
	f := newFixture(t, testConfig())
	f.lister.items["UC1"] = []models.Item{itemA, itemB}
	f.downloader.errFor["vidA"] = errors.New("403 forbidden")

	job := models.NewRunSource("j1", models.Source{ID: "UC1", Name: "Channel"}, false, 0)
	rep := &recordingReporter{}
	require.NoError(t, f.processor.Run(context.Background(), job, rep))

	records := f.history.List()
	require.Len(t, records, 2)
	assert.Equal(t, models.OutcomeFailure, records[0].Outcome)
	assert.Contains(t, records[0].Detail, "download failed: 403 forbidden")
	assert.Equal(t, models.OutcomeSuccess, records[1].Outcome)
	assert.Equal(t, "Episode B", records[1].ItemTitle)

	p := rep.Progresses()
	assert.Equal(t, 100, p[len(p)-1])
}

func TestSummarizerErrorIsItemFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.summarizer.err = errors.New("rate limited")

	require.NoError(t, f.processor.Run(context.Background(), models.NewRunItem("j", "Channel", itemA, false), &recordingReporter{}))
	records := f.history.List()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeFailure, records[0].Outcome)
	assert.Contains(t, records[0].Detail, "summarization failed")
}

func TestEmptyTranscriptIsFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.transcriber.text = "   "

	require.NoError(t, f.processor.Run(context.Background(), models.NewRunItem("j", "Channel", itemA, false), &recordingReporter{}))
	records := f.history.List()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeFailure, records[0].Outcome)
	assert.Equal(t, 0, f.summarizer.Calls())
}

func TestSourceListingFailureIsSkipped(t *testing.T) {
	f := newFixture(t, testConfig())
	f.sources.sources = []models.Source{{ID: "bad", Name: "Bad"}, {ID: "UC1", Name: "Good"}}
	f.lister.errs["bad"] = errors.New("network down")
	f.lister.items["UC1"] = []models.Item{itemA}

	rep := &recordingReporter{}
	require.NoError(t, f.processor.Run(context.Background(), models.NewRunAll(""), rep))

	records := f.history.List()
	require.Len(t, records, 1)
	assert.Equal(t, "Good", records[0].SourceLabel)

	p := rep.Progresses()
	assert.Contains(t, p, 50)
	assert.Equal(t, 100, p[len(p)-1])
}

func TestMaxItemsLimitsSource(t *testing.T) {
	f := newFixture(t, testConfig())
	f.lister.items["UC1"] = []models.Item{itemA, itemB}

	job := models.NewRunSource("", models.Source{ID: "UC1"}, false, 1)
	require.NoError(t, f.processor.Run(context.Background(), job, &recordingReporter{}))

	assert.Equal(t, 1, f.downloader.Calls())
	records := f.history.List()
	require.Len(t, records, 1)
	assert.Equal(t, "UC1", records[0].SourceLabel)
}

func TestProgressNonDecreasingWithinItem(t *testing.T) {
	f := newFixture(t, testConfig())
	rep := &recordingReporter{}

	require.NoError(t, f.processor.Run(context.Background(), models.NewRunItem("", "Channel", itemA, false), rep))

	p := rep.Progresses()
	require.NotEmpty(t, p)
	for i := 1; i < len(p); i++ {
		assert.GreaterOrEqual(t, p[i], p[i-1], "progress went backwards at %d: %v", i, p)
	}
	assert.Equal(t, 100, p[len(p)-1])
}

func TestEngineInitFailureIsRetriedLazily(t *testing.T) {
	f := newFixture(t, testConfig())
	loads := 0
	f.processor.deps.LoadTranscriber = func() (Transcriber, error) {
		loads++
		if loads == 1 {
			return nil, errors.New("model files missing")
		}
		return f.transcriber, nil
	}
	job := models.NewRunItem("", "Channel", itemA, false)

	err := f.processor.Run(context.Background(), job, &recordingReporter{})
	require.ErrorIs(t, err, worker.ErrEngineInit)
	assert.Empty(t, f.history.List())
	assert.Equal(t, 0, f.downloader.Calls())

	require.NoError(t, f.processor.Run(context.Background(), job, &recordingReporter{}))
	require.NoError(t, f.processor.Run(context.Background(), models.NewRunItem("", "Channel", itemB, false), &recordingReporter{}))
	assert.Equal(t, 2, loads)
	assert.Len(t, f.history.List(), 2)
}

func TestClipIsPassedToTranscriber(t *testing.T) {
	f := newFixture(t, testConfig())
	job := models.NewRunItem("diagnostics-1", "Channel", itemA, true)
	job.Clip = 30 * time.Second

	require.NoError(t, f.processor.Run(context.Background(), job, &recordingReporter{}))
	assert.Equal(t, []time.Duration{30 * time.Second}, f.transcriber.clips)
}

func TestRemoteModeSavesRemoteSummary(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeRemote
	f := newFixture(t, cfg)
	f.remote.statuses = []models.RemoteStatus{
		{State: models.RemotePending},
		{State: models.RemotePending},
		{State: models.RemoteDone, Summary: "remote body"},
	}
	rep := &recordingReporter{}

	require.NoError(t, f.processor.Run(context.Background(), models.NewRunItem("j", "Channel", itemA, false), rep))

	assert.Equal(t, 0, f.downloader.Calls())
	assert.Equal(t, 0, f.transcriber.Calls())
	assert.Equal(t, []string{"https://example.com/a"}, f.remote.submitted)
	assert.Equal(t, 3, f.remote.polls)

	records := f.history.List()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeSuccess, records[0].Outcome)
	content, err := f.artifacts.Read(records[0].ArtifactPath)
	require.NoError(t, err)
	assert.Contains(t, content, "origin: remote")
	assert.Contains(t, content, "remote body")

	p := rep.Progresses()
	assert.Equal(t, 100, p[len(p)-1])
}

func TestRemoteFailureAndTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeRemote
	f := newFixture(t, cfg)
	f.remote.statuses = []models.RemoteStatus{{State: models.RemoteFailed, Message: "video unavailable"}}

	require.NoError(t, f.processor.Run(context.Background(), models.NewRunItem("j", "Channel", itemA, false), &recordingReporter{}))
	records := f.history.List()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Detail, "video unavailable")

	cfg.RemoteMaxWait = 20 * time.Millisecond
	g := newFixture(t, cfg)
	g.remote.statuses = []models.RemoteStatus{{State: models.RemotePending}}
	require.NoError(t, g.processor.Run(context.Background(), models.NewRunItem("j", "Channel", itemA, false), &recordingReporter{}))
	records = g.history.List()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Detail, ErrRemoteTimeout.Error())
}

func TestRemoteModeWithoutClientIsInitFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeRemote
	f := newFixture(t, cfg)
	f.processor.deps.Remote = nil

	err := f.processor.Run(context.Background(), models.NewRunAll(""), &recordingReporter{})
	assert.ErrorIs(t, err, worker.ErrEngineInit)
}

func TestEnqueueItemTwiceRunsPipelineOnce(t *testing.T) {
	f := newFixture(t, testConfig())
	w := f.startWorker(t)

	w.EnqueueItem("Channel", itemA, false, "first")
	w.EnqueueItem("Channel", itemA, false, "second")
	waitStatus(t, w, "second", models.JobStatusCompleted)

	assert.Equal(t, 1, f.downloader.Calls())
	assert.Equal(t, 1, f.transcriber.Calls())

	records := f.history.List()
	require.Len(t, records, 2)
	assert.Equal(t, "processed", records[0].Detail)
	assert.Equal(t, "already exists, skipped", records[1].Detail)
	assert.Equal(t, records[0].ArtifactPath, records[1].ArtifactPath)
}

func TestBatchWithOneSkippedAndOneFreshItem(t *testing.T) {
	f := newFixture(t, testConfig())
	f.sources.sources = []models.Source{{ID: "UC1", Name: "Channel"}}
	f.lister.items["UC1"] = []models.Item{itemA, itemB}
	f.seedArtifact(t, "Channel/[2024-01-01] Episode A.md")
	w := f.startWorker(t)

	w.EnqueueAll("batch")
	waitStatus(t, w, "batch", models.JobStatusCompleted)
	require.Eventually(t, func() bool { return w.Snapshot().OverallStatus == models.OverallIdle },
		time.Second, 5*time.Millisecond)

	snap := w.Snapshot()
	assert.Equal(t, 100, snap.Progress)
	assert.Empty(t, snap.CurrentJobID)

	records := f.history.List()
	require.Len(t, records, 2)
	assert.Equal(t, "already exists, skipped", records[0].Detail)
	assert.Equal(t, models.OutcomeSuccess, records[1].Outcome)
	assert.Equal(t, "processed", records[1].Detail)
	assert.Equal(t, 1, f.transcriber.Calls())
}

func TestStopAbandonsInFlightItem(t *testing.T) {
	f := newFixture(t, testConfig())
	f.lister.items["UC1"] = []models.Item{itemA, itemB}
	f.transcriber.blocking = true
	f.transcriber.started = make(chan struct{}, 1)
	w := f.startWorker(t)

	w.EnqueueSource(models.Source{ID: "UC1", Name: "Channel"}, false, 0, "job")
	<-f.transcriber.started
	w.EnqueueAll("pending")

	res := w.RequestStop()
	assert.Equal(t, 1, res.RemovedCount)
	waitStatus(t, w, "job", models.JobStatusTerminated)
	assert.Equal(t, models.JobStatusTerminated, w.JobStatus("pending"))

	assert.Empty(t, f.history.List())
	assert.Equal(t, 1, f.downloader.Calls())
	assert.Equal(t, []string{"/tmp/audio-vidA.m4a"}, f.downloader.cleaned)
}

func TestHungStageIsRecordedAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.HangAfter = 40 * time.Millisecond
	f := newFixture(t, cfg)
	f.lister.items["UC1"] = []models.Item{itemA, itemB}
	f.transcriber.blocking = true
	w := f.startWorker(t)

	w.EnqueueSource(models.Source{ID: "UC1", Name: "Channel"}, false, 0, "job")
	waitStatus(t, w, "job", models.JobStatusTerminated)

	records := f.history.List()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeFailure, records[0].Outcome)
	assert.Contains(t, records[0].Detail, ErrStageHung.Error())
	assert.Equal(t, "Episode A", records[0].ItemTitle)
}

func TestStalledDownloadIsRecordedAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.HangAfter = 40 * time.Millisecond
	f := newFixture(t, cfg)
	f.lister.items["UC1"] = []models.Item{itemA, itemB}
	f.downloader.stall = true
	w := f.startWorker(t)

	w.EnqueueSource(models.Source{ID: "UC1", Name: "Channel"}, false, 0, "job")
	waitStatus(t, w, "job", models.JobStatusTerminated)

	records := f.history.List()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeFailure, records[0].Outcome)
	assert.Contains(t, records[0].Detail, ErrStageHung.Error())
	assert.Contains(t, records[0].Detail, "download failed")
	assert.Equal(t, 0, f.transcriber.Calls())
	assert.Empty(t, f.downloader.cleaned)
}
