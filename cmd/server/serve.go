package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vodscribe/internal/handlers"
	"vodscribe/internal/models"
)

const shutdownTimeout = 20 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr         string
		pollEvery    time.Duration
		maxPerSource int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the job worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(cmd.Context(), pollEvery, maxPerSource)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().DurationVar(&pollEvery, "poll-every", 0, "poll sources and enqueue new items at this interval (0 disables)")
	cmd.Flags().IntVar(&maxPerSource, "max-per-source", 1, "new items taken per source on each scheduled poll")
	return cmd
}

func (a *app) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				a.logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			a.logger.Debug("request", fields...)
			return nil
		},
	}))

	log := a.logger.Named("http")
	handlers.Register(e, handlers.Routes{
		Run:         handlers.NewRunHandler(a.worker, a.catalog, a.history, a.artifacts, log),
		Sources:     handlers.NewSourceHandler(a.sources, a.monitorState, a.catalog, a.worker, log),
		Files:       handlers.NewFileHandler(a.artifacts, log),
		Monitor:     handlers.NewMonitorHandler(a.poller, a.monitorState),
		Diagnostics: handlers.NewDiagnosticsHandler(a.sources, a.catalog, a.worker, a.history, log),
		Page:        handlers.NewPageHandler(a.worker, a.history),
		APIKey:      a.cfg.Server.APIKey,
	})
	return e
}

func (a *app) serve(parent context.Context, pollEvery time.Duration, maxPerSource int) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Server.APIKey == "" {
		a.logger.Warn("server.api_key is empty; mutating routes are unauthenticated")
	}

	a.worker.Start(ctx)
	e := a.newEcho()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server starting", zap.String("addr", a.cfg.Server.Addr), zap.String("mode", a.cfg.Pipeline.Mode))
		if err := e.Start(a.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		a.worker.Stop()
		return err
	})
	if pollEvery > 0 {
		g.Go(func() error {
			a.pollLoop(gctx, pollEvery, maxPerSource)
			return nil
		})
	}
	return g.Wait()
}

// pollLoop enqueues new items found by the poller until ctx ends.
func (a *app) pollLoop(ctx context.Context, every time.Duration, maxPerSource int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		res, err := a.poller.Poll(ctx, maxPerSource)
		if err != nil {
			a.logger.Warn("scheduled poll failed", zap.Error(err))
			continue
		}
		for _, job := range a.enqueueEvents(res) {
			a.logger.Info("new item enqueued", zap.String("job_id", job.ID), zap.String("source", job.SourceLabel))
		}
	}
}

// enqueueEvents queues a run-item job per new item, oldest first.
func (a *app) enqueueEvents(res models.PollResult) []models.Job {
	var jobs []models.Job
	for _, ev := range res.Events {
		label := ev.SourceName
		if label == "" {
			label = ev.SourceID
		}
		for i := len(ev.Items) - 1; i >= 0; i-- {
			jobs = append(jobs, a.worker.EnqueueItem(label, ev.Items[i], false, uuid.NewString()))
		}
	}
	return jobs
}
