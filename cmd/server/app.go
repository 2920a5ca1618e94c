package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"vodscribe/internal/asr"
	"vodscribe/internal/config"
	"vodscribe/internal/ingestion"
	"vodscribe/internal/logging"
	"vodscribe/internal/monitor"
	"vodscribe/internal/storage"
	"vodscribe/internal/summarize"
	"vodscribe/internal/webfetch"
	"vodscribe/internal/worker"
	"vodscribe/internal/youtube"
)

// State documents under data.state_dir.
const (
	historyFile      = "history.json"
	monitorStateFile = "monitor_state.json"
	sourcesFile      = "sources.json"
)

// app holds every long-lived component of the process.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	artifacts    *storage.ArtifactStore
	history      *storage.HistoryLedger
	sources      *storage.SourceRegistry
	monitorState *storage.MonitorStateStore

	pages     *webfetch.Client
	catalog   *youtube.Client
	processor *ingestion.Processor
	worker    *worker.Worker
	poller    *monitor.Poller
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var err error
	if a.artifacts, err = storage.NewArtifactStore(cfg.Data.OutputDir); err != nil {
		return nil, fmt.Errorf("open output dir: %w", err)
	}
	if a.history, err = storage.OpenHistoryLedger(filepath.Join(cfg.Data.StateDir, historyFile), cfg.Worker.HistoryLimit); err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if a.sources, err = storage.OpenSourceRegistry(filepath.Join(cfg.Data.StateDir, sourcesFile), cfg.Sources); err != nil {
		return nil, fmt.Errorf("open sources: %w", err)
	}
	a.monitorState = storage.NewMonitorStateStore(filepath.Join(cfg.Data.StateDir, monitorStateFile))

	a.pages = webfetch.NewClient(webfetch.Options{Stealth: true})
	a.catalog = youtube.NewClient(youtube.Options{
		TempDir:  cfg.Data.TempDir,
		Language: cfg.Transcribe.Language,
		Resolver: a.pages,
	})

	deps := ingestion.Deps{
		Sources:         a.sources,
		Lister:          a.catalog,
		Downloader:      a.catalog,
		LoadTranscriber: transcriberLoader(cfg.Transcribe),
		Summarizer: summarize.NewLLM(summarize.LLMConfig{
			Enabled:      cfg.LLM.Enabled,
			BaseURL:      cfg.LLM.BaseURL,
			APIKey:       cfg.LLM.APIKey,
			Model:        cfg.LLM.Model,
			SystemPrompt: cfg.LLM.SystemPrompt,
			Temperature:  cfg.LLM.Temperature,
			MaxTokens:    cfg.LLM.MaxTokens,
		}),
		Artifacts: a.artifacts,
		History:   a.history,
		Logger:    logger.Named("ingestion"),
	}
	mode := ingestion.Mode(cfg.Pipeline.Mode)
	if mode == ingestion.ModeRemote {
		remote, err := summarize.NewRemoteClient(cfg.Remote.BaseURL, cfg.Remote.APIToken, 0)
		if err != nil {
			// Jobs fail at engine init until a token is configured.
			logger.Warn("remote summarization unavailable", zap.Error(err))
		} else {
			deps.Remote = remote
		}
	}

	a.processor = ingestion.NewProcessor(deps, ingestion.Config{
		Mode:               mode,
		HeartbeatTick:      cfg.Worker.HeartbeatTick,
		HeartbeatLogEvery:  cfg.Worker.HeartbeatLogEvery,
		HangAfter:          cfg.Worker.HangAfter,
		RemotePollInterval: cfg.Remote.PollInterval,
		RemoteMaxWait:      cfg.Remote.MaxWait,
		RemoteHorizon:      cfg.Remote.ProgressHorizon,
	})
	a.worker = worker.New(a.processor, worker.Options{
		TerminateWait: cfg.Worker.TerminateWait,
		Logger:        logger.Named("worker"),
	})
	a.poller = monitor.NewPoller(a.sources, a.catalog, a.monitorState, logger.Named("monitor"))
	return a, nil
}

// transcriberLoader defers loading the speech model until the first local job needs it.
func transcriberLoader(cfg config.TranscribeConfig) ingestion.TranscriberLoader {
	return func() (ingestion.Transcriber, error) {
		r, err := asr.NewRecognizer(asr.Config{
			Engine:     asr.Engine(cfg.Engine),
			ModelDir:   cfg.ModelDir,
			Language:   cfg.Language,
			NumThreads: cfg.NumThreads,
			ChunkSec:   cfg.ChunkSec,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

func (a *app) close() error {
	err := errors.Join(a.processor.Close(), a.pages.Close())
	_ = a.logger.Sync()
	return err
}
