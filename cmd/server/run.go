package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vodscribe/internal/models"
)

const waitTick = 500 * time.Millisecond

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		sourceID string
		itemURL  string
		force    bool
		maxItems int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process all sources, one source or one item, then exit",
		Long: `Run one job in the foreground.

Without flags every tracked source is processed. --source limits the run to one
source (an unregistered channel or playlist id is resolved on the fly) and
--item-url processes exactly one video. Ctrl-C requests a cooperative stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceID != "" && itemURL != "" {
				return fmt.Errorf("--source and --item-url are mutually exclusive")
			}
			if maxItems < 0 {
				return fmt.Errorf("--max must not be negative")
			}
			a, err := loadApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return a.runOnce(cmd.Context(), sourceID, itemURL, force, maxItems)
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "source id to process")
	cmd.Flags().StringVar(&itemURL, "item-url", "", "single video URL or id to process")
	cmd.Flags().BoolVar(&force, "force", false, "process items even when an artifact already exists")
	cmd.Flags().IntVar(&maxItems, "max", 0, "maximum items per source (0 means all)")
	return cmd
}

func (a *app) runOnce(parent context.Context, sourceID, itemURL string, force bool, maxItems int) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := a.buildJob(ctx, sourceID, itemURL, force, maxItems)
	if err != nil {
		return err
	}

	// The worker outlives ctx so a stop request can finish the current item.
	workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(parent))
	defer cancelWorker()
	a.worker.Start(workerCtx)
	defer a.worker.Stop()

	a.worker.Enqueue(job)
	status := a.waitFor(ctx, job.ID)

	snap := a.worker.Snapshot()
	fmt.Fprintf(os.Stderr, "job %s: %s (%s)\n", job.ID, status, snap.OverallStatus)
	if snap.LastSaved.JobID == job.ID && snap.LastSaved.Path != "" {
		fmt.Println(snap.LastSaved.Path)
	}
	return nil
}

func (a *app) buildJob(ctx context.Context, sourceID, itemURL string, force bool, maxItems int) (models.Job, error) {
	id := uuid.NewString()
	switch {
	case itemURL != "":
		item, err := a.catalog.Video(ctx, itemURL)
		if err != nil {
			return models.Job{}, fmt.Errorf("resolve item: %w", err)
		}
		return models.NewRunItem(id, item.Author, item, force), nil
	case sourceID != "":
		src, ok := a.sources.Get(sourceID)
		if !ok {
			info, err := a.catalog.SourceInfo(ctx, sourceID)
			if err != nil {
				return models.Job{}, fmt.Errorf("resolve source: %w", err)
			}
			src = models.Source{ID: info.ID, Name: info.DisplayName}
		}
		return models.NewRunSource(id, src, force, maxItems), nil
	default:
		job := models.NewRunAll(id)
		job.Force = force
		job.MaxItems = maxItems
		return job, nil
	}
}

// waitFor streams new log lines to stderr until the job reaches a terminal status.
// The first interrupt requests a stop; waiting continues until the worker lets go.
func (a *app) waitFor(ctx context.Context, jobID string) models.JobStatus {
	ticker := time.NewTicker(waitTick)
	defer ticker.Stop()

	var last string
	done := ctx.Done()
	for {
		select {
		case <-done:
			res := a.worker.RequestStop()
			a.logger.Info("stop requested", zap.Int("removed", res.RemovedCount), zap.Bool("stopping", res.Stopping))
			done = nil
		case <-ticker.C:
		}

		snap := a.worker.Snapshot()
		last = printNewLines(snap.Logs, last)
		if st := a.worker.JobStatus(jobID); st.Terminal() {
			return st
		}
	}
}

// printNewLines prints the lines after last. The ring rotates once full, so the
// position is found by content; when last has rotated out everything is new.
func printNewLines(lines []string, last string) string {
	start := 0
	if last != "" {
		for i := len(lines) - 1; i >= 0; i-- {
			if lines[i] == last {
				start = i + 1
				break
			}
		}
	}
	for _, l := range lines[start:] {
		fmt.Fprintln(os.Stderr, l)
	}
	if len(lines) == 0 {
		return last
	}
	return lines[len(lines)-1]
}
