package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vodscribe/internal/logging"
	"vodscribe/internal/models"
	"vodscribe/internal/storage"
)

// SourceHandler は監視対象ソースのハンドラー
type SourceHandler struct {
	registry *storage.SourceRegistry
	state    *storage.MonitorStateStore
	catalog  Catalog
	queue    Queue
	logger   *zap.Logger
}

// NewSourceHandler は新しいSourceHandlerを作成
func NewSourceHandler(registry *storage.SourceRegistry, state *storage.MonitorStateStore, catalog Catalog, queue Queue, logger *zap.Logger) *SourceHandler {
	return &SourceHandler{
		registry: registry,
		state:    state,
		catalog:  catalog,
		queue:    queue,
		logger:   logging.OrNop(logger),
	}
}

type addSourceRequest struct {
	Input string `json:"input"` // channel id, playlist id/URL or channel URL
	Name  string `json:"name"`
}

type addSourceResponse struct {
	Source models.Source `json:"source"`
	URL    string        `json:"url,omitempty"`
	Added  bool          `json:"added"`
}

type runSourceRequest struct {
	JobID    string `json:"job_id"`
	Force    bool   `json:"force"`
	MaxItems int    `json:"max_items"`
}

// List はソース一覧を返す
func (h *SourceHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.List())
}

// Add は入力をソースに解決して登録（既存IDなら名前を更新）
func (h *SourceHandler) Add(c echo.Context) error {
	ctx := c.Request().Context()

	var req addSourceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "input is required"})
	}

	info, err := h.catalog.SourceInfo(ctx, input)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	src := models.Source{ID: info.ID, Name: strings.TrimSpace(req.Name)}
	if src.Name == "" {
		src.Name = info.DisplayName
	}
	added, err := h.registry.Add(src)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}

	h.logger.Info("source registered",
		zap.String("source_id", src.ID),
		zap.String("name", src.Name),
		zap.Bool("added", added))

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	return c.JSON(status, addSourceResponse{Source: src, URL: info.URL, Added: added})
}

// Remove はソースを削除し、監視状態からも外す
func (h *SourceHandler) Remove(c echo.Context) error {
	id := c.Param("id")

	removed, err := h.registry.Remove(id)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	if !removed {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "source not found"})
	}

	if h.state != nil {
		if _, err := h.state.Update(func(st *models.MonitorState) error {
			delete(st.LastSeen, id)
			return nil
		}); err != nil {
			h.logger.Warn("failed to clear monitor state", zap.String("source_id", id), zap.Error(err))
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// Items はソースの動画一覧を新しい順で返す
func (h *SourceHandler) Items(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	items, err := h.catalog.Items(ctx, id)
	if err != nil {
		return errorJSON(c, http.StatusBadGateway, err)
	}

	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed >= 0 && parsed < len(items) {
			items = items[:parsed]
		}
	}
	return c.JSON(http.StatusOK, items)
}

// ItemMeta は動画1本のメタ情報を返す
func (h *SourceHandler) ItemMeta(c echo.Context) error {
	ctx := c.Request().Context()
	target := strings.TrimSpace(c.QueryParam("url"))
	if target == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	item, err := h.catalog.Video(ctx, target)
	if err != nil {
		return errorJSON(c, http.StatusBadGateway, err)
	}
	return c.JSON(http.StatusOK, item)
}

// Run は登録済みソース1件の処理ジョブを投入
func (h *SourceHandler) Run(c echo.Context) error {
	src, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "source not found"})
	}

	var req runSourceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.MaxItems < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "max_items must not be negative"})
	}

	job := h.queue.EnqueueSource(src, req.Force, req.MaxItems, newJobID(req.JobID))
	h.logger.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("source_id", src.ID))
	return c.JSON(http.StatusAccepted, jobResponse{
		JobID:  job.ID,
		Kind:   job.Kind,
		Status: h.queue.JobStatus(job.ID),
	})
}
