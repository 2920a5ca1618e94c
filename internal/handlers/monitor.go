package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"vodscribe/internal/storage"
)

// MonitorHandler は新着監視のハンドラー
type MonitorHandler struct {
	poller Poller
	state  *storage.MonitorStateStore
}

// NewMonitorHandler は新しいMonitorHandlerを作成
func NewMonitorHandler(poller Poller, state *storage.MonitorStateStore) *MonitorHandler {
	return &MonitorHandler{poller: poller, state: state}
}

type pollRequest struct {
	MaxPerSource int `json:"max_per_source"`
}

// Poll は全ソースの新着を確認（件数は1〜5に丸める、既定1）
func (h *MonitorHandler) Poll(c echo.Context) error {
	req := pollRequest{MaxPerSource: 1}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if q := c.QueryParam("max_per_source"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "max_per_source must be a number"})
		}
		req.MaxPerSource = n
	}

	res, err := h.poller.Poll(c.Request().Context(), req.MaxPerSource)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, res)
}

// State は保存済みの監視状態を返す
func (h *MonitorHandler) State(c echo.Context) error {
	st, err := h.state.Load()
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, st)
}
