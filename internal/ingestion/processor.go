// Package ingestion runs the per-item pipeline: skip check, download, transcription,
// summarization (or remote summarization) and saving, with history records per item.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"vodscribe/internal/models"
	"vodscribe/internal/progress"
	"vodscribe/internal/storage"
	"vodscribe/internal/worker"
)

var (
	// ErrStageHung is the cancel cause set when a stage shows no activity for too long.
	ErrStageHung = errors.New("stage hung")
	// ErrRemoteTimeout is returned when a remote summary task does not finish in time.
	ErrRemoteTimeout = errors.New("remote summary timed out")
)

// Mode selects the pipeline.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// Artifact origins written into the document header.
const (
	OriginSummary    = "summary"
	OriginTranscript = "transcript"
	OriginRemote     = "remote"
)

// Config holds pipeline timings.
type Config struct {
	Mode Mode

	HeartbeatTick     time.Duration
	HeartbeatLogEvery time.Duration
	HangAfter         time.Duration

	DownloadThrottle  time.Duration
	DownloadHorizon   time.Duration
	TranscribeHorizon time.Duration
	SummarizeHorizon  time.Duration

	RemotePollInterval time.Duration
	RemoteMaxWait      time.Duration
	RemoteHorizon      time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeLocal,
		HeartbeatTick:      progress.DefaultTick,
		HeartbeatLogEvery:  progress.DefaultLogEvery,
		HangAfter:          progress.DefaultHangAfter,
		DownloadThrottle:   400 * time.Millisecond,
		DownloadHorizon:    2 * time.Minute,
		TranscribeHorizon:  2 * time.Minute,
		SummarizeHorizon:   2 * time.Minute,
		RemotePollInterval: 3 * time.Second,
		RemoteMaxWait:      30 * time.Minute,
		RemoteHorizon:      15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	setDefault := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	setDefault(&c.HeartbeatTick, d.HeartbeatTick)
	setDefault(&c.HeartbeatLogEvery, d.HeartbeatLogEvery)
	setDefault(&c.HangAfter, d.HangAfter)
	setDefault(&c.DownloadThrottle, d.DownloadThrottle)
	setDefault(&c.DownloadHorizon, d.DownloadHorizon)
	setDefault(&c.TranscribeHorizon, d.TranscribeHorizon)
	setDefault(&c.SummarizeHorizon, d.SummarizeHorizon)
	setDefault(&c.RemotePollInterval, d.RemotePollInterval)
	setDefault(&c.RemoteMaxWait, d.RemoteMaxWait)
	setDefault(&c.RemoteHorizon, d.RemoteHorizon)
	return c
}

// Deps are the collaborators of a Processor. Summarizer may be nil (transcripts are saved as is);
// Remote is only needed in remote mode.
type Deps struct {
	Sources         SourceLister
	Lister          Lister
	Downloader      Downloader
	LoadTranscriber TranscriberLoader
	Summarizer      Summarizer
	Remote          RemoteSummaryClient
	Artifacts       *storage.ArtifactStore
	History         *storage.HistoryLedger
	Logger          *zap.Logger
}

// Processor implements worker.Runner.
type Processor struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu          sync.Mutex
	transcriber Transcriber
}

// NewProcessor creates a Processor.
func NewProcessor(deps Deps, cfg Config) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{cfg: cfg.withDefaults(), deps: deps, log: logger}
}

// Close releases the transcriber if one was loaded.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.transcriber.(io.Closer); ok {
		p.transcriber = nil
		return c.Close()
	}
	return nil
}

// Run executes one job.
func (p *Processor) Run(ctx context.Context, job models.Job, rep worker.Reporter) error {
	if err := p.prepare(); err != nil {
		return err
	}

	switch job.Kind {
	case models.JobKindRunAll:
		sources := p.deps.Sources.List()
		if len(sources) == 0 {
			rep.Logf("no tracked sources")
			rep.Progress(100)
			return nil
		}
		p.runSources(ctx, job, sources, rep)
	case models.JobKindRunSource:
		p.runSources(ctx, job, []models.Source{job.Source}, rep)
	case models.JobKindRunItem:
		if job.Item == nil {
			return fmt.Errorf("run_item job %q has no item", job.ID)
		}
		p.processItem(ctx, job, job.SourceLabel, *job.Item, progress.Single, rep)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
	return nil
}

// prepare loads the engine the current mode needs.
func (p *Processor) prepare() error {
	if p.cfg.Mode == ModeRemote {
		if p.deps.Remote == nil {
			return fmt.Errorf("%w: remote summary client is not configured", worker.ErrEngineInit)
		}
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transcriber != nil {
		return nil
	}
	if p.deps.LoadTranscriber == nil {
		return fmt.Errorf("%w: no transcriber configured", worker.ErrEngineInit)
	}
	tr, err := p.deps.LoadTranscriber()
	if err != nil {
		return fmt.Errorf("%w: %v", worker.ErrEngineInit, err)
	}
	p.transcriber = tr
	return nil
}

func (p *Processor) currentTranscriber() Transcriber {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transcriber
}

func (p *Processor) runSources(ctx context.Context, job models.Job, sources []models.Source, rep worker.Reporter) {
	total := len(sources)
	for i, src := range sources {
		if ctx.Err() != nil {
			return
		}
		label := src.Label()
		rep.Current(label, "")
		sourceDone := progress.Estimate(progress.Position{SourcesDone: i + 1, SourcesTotal: total}, 0)

		items, err := p.deps.Lister.Items(ctx, src.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("failed to list source", zap.String("source", src.ID), zap.Error(err))
			rep.Logf("failed to list %s: %v", label, err)
			rep.Progress(sourceDone)
			continue
		}
		if job.MaxItems > 0 && len(items) > job.MaxItems {
			items = items[:job.MaxItems]
		}
		rep.Logf("%s: %d item(s)", label, len(items))

		for j, item := range items {
			if ctx.Err() != nil {
				return
			}
			pos := progress.Position{SourcesDone: i, SourcesTotal: total, ItemsDone: j, ItemsTotal: len(items)}
			p.processItem(ctx, job, label, item, pos, rep)
		}
		if ctx.Err() != nil {
			return
		}
		rep.Progress(sourceDone)
	}
}

// stageResult is what the stages hand to the save step.
type stageResult struct {
	body      string
	origin    string
	durations models.StageDurations
}

func (p *Processor) processItem(ctx context.Context, job models.Job, label string, item models.Item, pos progress.Position, rep worker.Reporter) {
	rep.Current(label, item.Title)
	report := func(span progress.Span, fraction float64) {
		rep.Progress(progress.Estimate(pos, span.At(fraction)))
	}

	if !job.Force && p.skipExisting(job, label, item, rep) {
		report(progress.Save, 1)
		return
	}

	started := time.Now()
	rep.Logf("processing %q", item.Title)

	var (
		res stageResult
		err error
	)
	if p.cfg.Mode == ModeRemote {
		res, err = p.runRemote(ctx, item, report, rep)
	} else {
		res, err = p.runLocal(ctx, job, item, report, rep)
	}
	if err != nil {
		if abandoned(ctx) {
			rep.Logf("stopped while processing %q", item.Title)
			return
		}
		detail := err.Error()
		if errors.Is(context.Cause(ctx), ErrStageHung) {
			detail = fmt.Sprintf("%v: %v", ErrStageHung, err)
		}
		p.log.Warn("item failed", zap.String("job_id", job.ID), zap.String("item", item.ID), zap.Error(err))
		rep.Logf("failed %q: %s", item.Title, detail)
		p.record(job, label, item, models.HistoryRecord{
			Outcome:        models.OutcomeFailure,
			Detail:         detail,
			DurationSec:    models.Seconds(time.Since(started)),
			StageDurations: res.durations,
		})
		return
	}

	report(progress.Save, 0)
	rel, err := p.save(label, item, res)
	if err != nil {
		p.log.Warn("save failed", zap.String("job_id", job.ID), zap.String("item", item.ID), zap.Error(err))
		rep.Logf("failed to save %q: %v", item.Title, err)
		p.record(job, label, item, models.HistoryRecord{
			Outcome:        models.OutcomeFailure,
			Detail:         fmt.Sprintf("save failed: %v", err),
			DurationSec:    models.Seconds(time.Since(started)),
			StageDurations: res.durations,
		})
		return
	}

	rep.Saved(rel)
	rep.Logf("saved %s", rel)
	p.record(job, label, item, models.HistoryRecord{
		Outcome:        models.OutcomeSuccess,
		ArtifactPath:   rel,
		Detail:         "processed",
		DurationSec:    models.Seconds(time.Since(started)),
		StageDurations: res.durations,
	})
	report(progress.Save, 1)
}

// skipExisting binds an existing artifact instead of running the pipeline. It reports whether
// the item was handled.
func (p *Processor) skipExisting(job models.Job, label string, item models.Item, rep worker.Reporter) bool {
	match, err := p.deps.Artifacts.Lookup(label, item)
	if err != nil {
		p.log.Warn("artifact lookup failed", zap.String("item", item.ID), zap.Error(err))
		return false
	}
	if !match.Exists {
		return false
	}
	if match.Path == "" {
		rep.Logf("artifact for %q exists but could not be bound", item.Title)
		p.record(job, label, item, models.HistoryRecord{
			Outcome: models.OutcomeFailure,
			Detail:  "artifact already exists but its path could not be bound",
		})
		return true
	}

	rep.Saved(match.Path)
	rep.Logf("skipped %q: already exists", item.Title)
	p.record(job, label, item, models.HistoryRecord{
		Outcome:      models.OutcomeSuccess,
		ArtifactPath: match.Path,
		Detail:       "already exists, skipped",
	})
	return true
}

func (p *Processor) save(label string, item models.Item, res stageResult) (string, error) {
	doc, err := storage.RenderDocument(item, res.body, res.origin)
	if err != nil {
		return "", err
	}
	return p.deps.Artifacts.Save(label, item, doc)
}

func (p *Processor) record(job models.Job, label string, item models.Item, rec models.HistoryRecord) {
	rec.SourceLabel = label
	rec.ItemTitle = item.Title
	rec.JobID = job.ID
	if err := p.deps.History.Append(rec); err != nil {
		p.log.Error("failed to append history", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// abandoned reports a user stop. Hang detection also cancels the context but is recorded as a failure.
func abandoned(ctx context.Context) bool {
	return ctx.Err() != nil && !errors.Is(context.Cause(ctx), ErrStageHung)
}
