package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vodscribe/internal/logging"
	"vodscribe/internal/models"
	"vodscribe/internal/storage"
)

// RunHandler はジョブ投入・停止・状態取得のハンドラー
type RunHandler struct {
	queue     Queue
	catalog   Catalog
	history   *storage.HistoryLedger
	artifacts *storage.ArtifactStore
	logger    *zap.Logger
}

// NewRunHandler は新しいRunHandlerを作成
func NewRunHandler(queue Queue, catalog Catalog, history *storage.HistoryLedger, artifacts *storage.ArtifactStore, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		queue:     queue,
		catalog:   catalog,
		history:   history,
		artifacts: artifacts,
		logger:    logging.OrNop(logger),
	}
}

type runRequest struct {
	JobID string `json:"job_id"`
}

type runItemRequest struct {
	JobID       string       `json:"job_id"`
	SourceLabel string       `json:"source_label"`
	URL         string       `json:"url"`
	Item        *models.Item `json:"item"`
	Force       bool         `json:"force"`
}

type terminateBatchRequest struct {
	JobIDs []string `json:"job_ids"`
}

type jobResponse struct {
	JobID  string           `json:"job_id"`
	Kind   models.JobKind   `json:"kind,omitempty"`
	Status models.JobStatus `json:"status"`
}

// newJobID returns id, or a fresh uuid when id is blank.
func newJobID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}

func (h *RunHandler) accepted(c echo.Context, job models.Job) error {
	h.logger.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)))
	return c.JSON(http.StatusAccepted, jobResponse{
		JobID:  job.ID,
		Kind:   job.Kind,
		Status: h.queue.JobStatus(job.ID),
	})
}

// Status は実行状態のスナップショットを返す
func (h *RunHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.queue.Snapshot())
}

// RunAll は全ソース処理ジョブを投入
func (h *RunHandler) RunAll(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	return h.accepted(c, h.queue.EnqueueAll(newJobID(req.JobID)))
}

// RunItem は単一アイテムのジョブを投入（item を直接渡すか url から解決）
func (h *RunHandler) RunItem(c echo.Context) error {
	ctx := c.Request().Context()

	var req runItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	var item models.Item
	switch {
	case req.Item != nil && strings.TrimSpace(req.Item.ID) != "":
		item = *req.Item
	case strings.TrimSpace(req.URL) != "":
		if h.catalog == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "item lookup is not available"})
		}
		resolved, err := h.catalog.Video(ctx, strings.TrimSpace(req.URL))
		if err != nil {
			return errorJSON(c, http.StatusBadGateway, err)
		}
		item = resolved
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "item.id or url is required"})
	}

	label := strings.TrimSpace(req.SourceLabel)
	if label == "" {
		label = item.Author
	}
	return h.accepted(c, h.queue.EnqueueItem(label, item, req.Force, newJobID(req.JobID)))
}

// Stop は待機中ジョブを全て取り消し、実行中ジョブに停止を要求
func (h *RunHandler) Stop(c echo.Context) error {
	res := h.queue.RequestStop()
	h.logger.Info("stop requested",
		zap.Int("removed", res.RemovedCount),
		zap.String("current_job_id", res.CurrentJobID))
	return c.JSON(http.StatusOK, res)
}

// JobStatus はジョブの状態を返す（記録がなければ unknown）
func (h *RunHandler) JobStatus(c echo.Context) error {
	id := c.Param("id")
	return c.JSON(http.StatusOK, jobResponse{JobID: id, Status: h.queue.JobStatus(id)})
}

// Terminate はジョブを停止（実行中なら終了を一定時間待つ）
func (h *RunHandler) Terminate(c echo.Context) error {
	return c.JSON(http.StatusOK, h.queue.Terminate(c.Request().Context(), c.Param("id")))
}

// TerminateBatch は複数ジョブを停止
func (h *RunHandler) TerminateBatch(c echo.Context) error {
	var req terminateBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.JobIDs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "job_ids is required"})
	}
	return c.JSON(http.StatusOK, h.queue.TerminateBatch(c.Request().Context(), req.JobIDs))
}

// History は処理履歴を新しい順で返す
func (h *RunHandler) History(c echo.Context) error {
	records := h.history.List()

	limit := len(records)
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed >= 0 && parsed < limit {
			limit = parsed
		}
	}

	out := make([]models.HistoryRecord, 0, limit)
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, records[i])
	}
	return c.JSON(http.StatusOK, out)
}

type outputResponse struct {
	JobID   string               `json:"job_id"`
	Status  models.JobStatus     `json:"status"`
	Record  models.HistoryRecord `json:"record"`
	Path    string               `json:"path"`
	Content string               `json:"content"`
}

// Output はジョブが保存した成果物を返す
func (h *RunHandler) Output(c echo.Context) error {
	id := c.Param("id")

	rec, ok := h.history.FindByJobID(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no history record for job"})
	}
	if rec.ArtifactPath == "" {
		msg := "job produced no artifact"
		if rec.Detail != "" {
			msg += ": " + rec.Detail
		}
		return c.JSON(http.StatusNotFound, map[string]string{"error": msg})
	}

	content, err := h.artifacts.Read(rec.ArtifactPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "artifact no longer exists"})
		}
		return errorJSON(c, storageStatus(err), err)
	}

	return c.JSON(http.StatusOK, outputResponse{
		JobID:   id,
		Status:  h.queue.JobStatus(id),
		Record:  rec,
		Path:    rec.ArtifactPath,
		Content: content,
	})
}
