package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"vodscribe/internal/models"
	"vodscribe/internal/storage"
	"vodscribe/internal/version"
	"vodscribe/internal/worker"
)

// Queue is the part of the worker the API drives.
type Queue interface {
	EnqueueAll(jobID string) models.Job
	EnqueueSource(source models.Source, force bool, maxItems int, jobID string) models.Job
	EnqueueItem(sourceLabel string, item models.Item, force bool, jobID string) models.Job
	EnqueueDiagnostics(sourceLabel string, item models.Item, jobID string) models.Job
	RequestStop() worker.StopResult
	Terminate(ctx context.Context, jobID string) worker.TerminateResult
	TerminateBatch(ctx context.Context, jobIDs []string) []worker.TerminateResult
	JobStatus(jobID string) models.JobStatus
	Snapshot() models.RunSnapshot
}

// Catalog looks up sources and items on the video platform.
type Catalog interface {
	Items(ctx context.Context, sourceID string) ([]models.Item, error)
	SourceInfo(ctx context.Context, input string) (models.SourceInfo, error)
	Video(ctx context.Context, idOrURL string) (models.Item, error)
}

// Poller runs one monitor poll.
type Poller interface {
	Poll(ctx context.Context, maxPerSource int) (models.PollResult, error)
}

// Routes bundles every handler registered on the server.
type Routes struct {
	Run         *RunHandler
	Sources     *SourceHandler
	Files       *FileHandler
	Monitor     *MonitorHandler
	Diagnostics *DiagnosticsHandler
	Page        *PageHandler
	APIKey      string
}

// Register mounts the routes on e. When APIKey is set, every mutating /api route
// requires a matching X-API-Key header.
func Register(e *echo.Echo, r Routes) {
	e.GET("/health", Health)
	e.GET("/", r.Page.Status)

	api := e.Group("/api")
	api.GET("/status", r.Run.Status)
	api.GET("/history", r.Run.History)
	api.GET("/jobs/:id", r.Run.JobStatus)

	guarded := api.Group("")
	if r.APIKey != "" {
		guarded.Use(apiKeyAuth(r.APIKey))
	}

	guarded.POST("/run", r.Run.RunAll)
	guarded.POST("/items/run", r.Run.RunItem)
	guarded.POST("/stop", r.Run.Stop)
	guarded.POST("/jobs/terminate", r.Run.TerminateBatch)
	guarded.DELETE("/jobs/:id", r.Run.Terminate)
	guarded.GET("/jobs/:id/output", r.Run.Output)

	guarded.GET("/sources", r.Sources.List)
	guarded.POST("/sources", r.Sources.Add)
	guarded.DELETE("/sources/:id", r.Sources.Remove)
	guarded.GET("/sources/:id/items", r.Sources.Items)
	guarded.POST("/sources/:id/run", r.Sources.Run)
	guarded.GET("/items/meta", r.Sources.ItemMeta)

	guarded.POST("/monitor/poll", r.Monitor.Poll)
	guarded.GET("/monitor/state", r.Monitor.State)

	guarded.GET("/files", r.Files.List)
	guarded.GET("/files/content", r.Files.Content)
	guarded.GET("/files/download", r.Files.Download)
	guarded.DELETE("/files", r.Files.Delete)

	guarded.POST("/diagnostics", r.Diagnostics.Start)
	guarded.GET("/diagnostics/:id", r.Diagnostics.Report)
}

func apiKeyAuth(key string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:X-API-Key",
		Validator: func(got string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1, nil
		},
		ErrorHandler: func(_ error, c echo.Context) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or missing API key"})
		},
	})
}

// Health はヘルスチェック
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func render(c echo.Context, component templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	return component.Render(c.Request().Context(), c.Response())
}

func errorJSON(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// storageStatus maps artifact path errors to HTTP statuses.
func storageStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
