package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vodscribe/internal/models"
	"vodscribe/internal/progress"
	"vodscribe/internal/worker"
)

// elapsedCeiling caps time-based estimates so a slow stage never looks finished.
const elapsedCeiling = 0.95

type reportFunc func(span progress.Span, fraction float64)

// runLocal is download -> transcribe -> summarize. The context is checked between stages.
func (p *Processor) runLocal(ctx context.Context, job models.Job, item models.Item, report reportFunc, rep worker.Reporter) (stageResult, error) {
	var res stageResult

	// download
	start := time.Now()
	report(progress.Download, 0)
	throttle := rate.Sometimes{Interval: p.cfg.DownloadThrottle}
	signal := progress.NewSignal()
	stop := p.heartbeat(ctx, "downloading", signal, p.cfg.DownloadHorizon, func(f float64) {
		report(progress.Download, f)
	}, rep)
	audioPath, err := p.deps.Downloader.FetchAudio(ctx, item, func(percent float64) {
		signal.Report(percent / 100)
		throttle.Do(func() { report(progress.Download, percent/100) })
	})
	stop()
	if err != nil {
		return res, fmt.Errorf("download failed: %w", err)
	}
	defer p.deps.Downloader.Cleanup(audioPath)
	res.durations.Download = models.Seconds(time.Since(start))
	report(progress.Download, 1)
	rep.Logf("downloaded %q in %s", item.Title, time.Since(start).Round(time.Second))
	if err := ctx.Err(); err != nil {
		return res, err
	}

	// transcribe
	start = time.Now()
	signal = progress.NewSignal()
	stop = p.heartbeat(ctx, "transcribing", signal, p.cfg.TranscribeHorizon, func(f float64) {
		report(progress.Transcribe, f)
	}, rep)
	text, err := p.currentTranscriber().Transcribe(ctx, audioPath, signal.Report, job.Clip)
	stop()
	if err != nil {
		return res, fmt.Errorf("transcription failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.durations.Transcribe = models.Seconds(time.Since(start))
	report(progress.Transcribe, 1)
	if strings.TrimSpace(text) == "" {
		return res, errors.New("transcription produced no text")
	}
	rep.Logf("transcribed %q (%d chars)", item.Title, len([]rune(text)))

	// summarize
	start = time.Now()
	summary := models.Summary{Kind: models.SummaryUnavailable, Reason: "summarizer disabled"}
	if p.deps.Summarizer != nil {
		signal = progress.NewSignal()
		stop = p.heartbeat(ctx, "summarizing", signal, p.cfg.SummarizeHorizon, func(f float64) {
			report(progress.Summarize, f)
		}, rep)
		summary, err = p.deps.Summarizer.Summarize(ctx, text, item)
		stop()
		if err != nil {
			return res, fmt.Errorf("summarization failed: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	res.durations.Summarize = models.Seconds(time.Since(start))
	report(progress.Summarize, 1)

	switch summary.Kind {
	case models.SummaryReady:
		res.body = summary.Text
		res.origin = OriginSummary
	default:
		rep.Logf("summary unavailable (%s), saving transcript", summary.Reason)
		res.body = text
		res.origin = OriginTranscript
	}
	return res, nil
}

// runRemote submits the item URL to the remote summarizer and polls until it settles.
func (p *Processor) runRemote(ctx context.Context, item models.Item, report reportFunc, rep worker.Reporter) (stageResult, error) {
	var res stageResult
	if item.URL == "" {
		return res, errors.New("item has no url")
	}

	report(progress.Remote, 0)
	taskID, err := p.deps.Remote.Submit(ctx, item.URL)
	if err != nil {
		return res, fmt.Errorf("remote submit failed: %w", err)
	}
	rep.Logf("remote task %s submitted for %q", taskID, item.Title)

	signal := progress.NewSignal()
	stop := p.heartbeat(ctx, "waiting for remote summary", signal, p.cfg.RemoteHorizon, func(f float64) {
		report(progress.Remote, f)
	}, rep)
	defer stop()

	limiter := rate.NewLimiter(rate.Every(p.cfg.RemotePollInterval), 1)
	deadline := time.Now().Add(p.cfg.RemoteMaxWait)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, err
		}
		if time.Now().After(deadline) {
			return res, fmt.Errorf("%w after %s", ErrRemoteTimeout, p.cfg.RemoteMaxWait)
		}

		status, err := p.deps.Remote.Poll(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.log.Warn("remote poll failed", zap.String("task_id", taskID), zap.Error(err))
			continue
		}
		signal.Touch()

		switch status.State {
		case models.RemoteDone:
			if strings.TrimSpace(status.Summary) == "" {
				return res, errors.New("remote summary is empty")
			}
			res.body = status.Summary
			res.origin = OriginRemote
			report(progress.Remote, 1)
			return res, nil
		case models.RemoteFailed:
			return res, fmt.Errorf("remote task failed: %s", status.Message)
		}
	}
}

// heartbeat re-estimates progress for a blocking stage and aborts the job if it stalls.
func (p *Processor) heartbeat(ctx context.Context, stage string, signal *progress.Signal, horizon time.Duration, onProgress func(float64), rep worker.Reporter) func() {
	return progress.StartHeartbeat(ctx, progress.HeartbeatConfig{
		Tick:      p.cfg.HeartbeatTick,
		LogEvery:  p.cfg.HeartbeatLogEvery,
		HangAfter: p.cfg.HangAfter,
		Signal:    signal,
		Estimate: func(elapsed time.Duration) float64 {
			if f := signal.Fraction(); f > 0 {
				return f
			}
			return math.Min(progress.ElapsedFraction(elapsed, horizon), elapsedCeiling)
		},
		OnProgress: onProgress,
		OnLog: func(elapsed time.Duration, fraction float64) {
			rep.Logf("%s... %ds elapsed (%d%%)", stage, int(elapsed.Seconds()), int(fraction*100))
		},
		OnHang: func(idle time.Duration) {
			rep.Logf("%s stalled for %s, stopping", stage, idle.Round(time.Second))
			rep.Abort(ErrStageHung)
		},
	})
}
