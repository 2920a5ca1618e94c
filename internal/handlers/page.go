package handlers

import (
	"github.com/labstack/echo/v4"

	"vodscribe/internal/storage"
	"vodscribe/web/components"
)

// recentOnPage is the number of history rows on the status page.
const recentOnPage = 20

// PageHandler はHTMLページのハンドラー
type PageHandler struct {
	queue   Queue
	history *storage.HistoryLedger
}

// NewPageHandler は新しいPageHandlerを作成
func NewPageHandler(queue Queue, history *storage.HistoryLedger) *PageHandler {
	return &PageHandler{queue: queue, history: history}
}

// Status は実行状態ページを表示
func (h *PageHandler) Status(c echo.Context) error {
	records := h.history.List()
	if len(records) > recentOnPage {
		records = records[len(records)-recentOnPage:]
	}
	return render(c, components.StatusPage(h.queue.Snapshot(), records))
}
