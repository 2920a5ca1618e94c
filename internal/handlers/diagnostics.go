package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vodscribe/internal/logging"
	"vodscribe/internal/models"
	"vodscribe/internal/storage"
)

const (
	// DiagnosticsPrefix starts every diagnostics job id.
	DiagnosticsPrefix = "diagnostics-"
	// DiagnosticsLabel keeps diagnostics output apart from real source folders.
	DiagnosticsLabel = "diagnostics"
)

// DiagnosticsHandler は動作確認ジョブのハンドラー
type DiagnosticsHandler struct {
	registry *storage.SourceRegistry
	catalog  Catalog
	queue    Queue
	history  *storage.HistoryLedger
	logger   *zap.Logger
}

// NewDiagnosticsHandler は新しいDiagnosticsHandlerを作成
func NewDiagnosticsHandler(registry *storage.SourceRegistry, catalog Catalog, queue Queue, history *storage.HistoryLedger, logger *zap.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		registry: registry,
		catalog:  catalog,
		queue:    queue,
		history:  history,
		logger:   logging.OrNop(logger),
	}
}

type diagnosticsRequest struct {
	SourceID string `json:"source_id"`
}

type diagnosticsStarted struct {
	JobID  string        `json:"job_id"`
	Source models.Source `json:"source"`
	Item   models.Item   `json:"item"`
}

type diagnosticsReport struct {
	JobID  string                `json:"job_id"`
	Status models.JobStatus      `json:"status"`
	Done   bool                  `json:"done"`
	Record *models.HistoryRecord `json:"record,omitempty"`
}

// Start はソースの最新動画を短く切り出して強制処理するジョブを投入
func (h *DiagnosticsHandler) Start(c echo.Context) error {
	ctx := c.Request().Context()

	var req diagnosticsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	var src models.Source
	if id := strings.TrimSpace(req.SourceID); id != "" {
		found, ok := h.registry.Get(id)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "source not found"})
		}
		src = found
	} else {
		sources := h.registry.List()
		if len(sources) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "no sources registered"})
		}
		src = sources[0]
	}

	items, err := h.catalog.Items(ctx, src.ID)
	if err != nil {
		return errorJSON(c, http.StatusBadGateway, err)
	}
	var item models.Item
	for _, it := range items {
		if it.ID != "" {
			item = it
			break
		}
	}
	if item.ID == "" {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "source has no items"})
	}

	job := h.queue.EnqueueDiagnostics(DiagnosticsLabel, item, DiagnosticsPrefix+uuid.NewString())
	h.logger.Info("diagnostics enqueued",
		zap.String("job_id", job.ID),
		zap.String("source_id", src.ID),
		zap.String("item_id", item.ID))
	return c.JSON(http.StatusAccepted, diagnosticsStarted{JobID: job.ID, Source: src, Item: item})
}

// Report は動作確認ジョブの状態と履歴を返す
func (h *DiagnosticsHandler) Report(c echo.Context) error {
	id := c.Param("id")
	if !strings.HasPrefix(id, DiagnosticsPrefix) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "not a diagnostics job id"})
	}

	status := h.queue.JobStatus(id)
	report := diagnosticsReport{JobID: id, Status: status, Done: status.Terminal()}
	if rec, ok := h.history.FindByJobID(id); ok {
		report.Record = &rec
	}
	return c.JSON(http.StatusOK, report)
}
