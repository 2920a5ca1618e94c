package ingestion

import (
	"context"
	"time"

	"vodscribe/internal/models"
)

// Lister lists the items of a source, newest first.
type Lister interface {
	Items(ctx context.Context, sourceID string) ([]models.Item, error)
}

// SourceLister returns the tracked sources for run-all jobs.
type SourceLister interface {
	List() []models.Source
}

// Downloader fetches an item's audio to a local file.
type Downloader interface {
	FetchAudio(ctx context.Context, item models.Item, onProgress func(percent float64)) (string, error)
	Cleanup(path string)
}

// Transcriber turns an audio file into text. onProgress receives the fraction of audio processed.
// clip > 0 limits transcription to the first clip of audio.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, onProgress func(fraction float64), clip time.Duration) (string, error)
}

// TranscriberLoader creates the transcriber on first use. A failed load is retried on the next job.
type TranscriberLoader func() (Transcriber, error)

// Summarizer turns a transcript into the document body.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string, item models.Item) (models.Summary, error)
}

// RemoteSummaryClient delegates the whole summarization of an item URL to an external job API.
type RemoteSummaryClient interface {
	Submit(ctx context.Context, url string) (string, error)
	Poll(ctx context.Context, taskID string) (models.RemoteStatus, error)
}
