package handlers

import (
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vodscribe/internal/logging"
	"vodscribe/internal/storage"
)

// FileHandler は出力ドキュメント閲覧のハンドラー
type FileHandler struct {
	artifacts *storage.ArtifactStore
	logger    *zap.Logger
}

// NewFileHandler は新しいFileHandlerを作成
func NewFileHandler(artifacts *storage.ArtifactStore, logger *zap.Logger) *FileHandler {
	return &FileHandler{artifacts: artifacts, logger: logging.OrNop(logger)}
}

type fileListResponse struct {
	Labels []string               `json:"labels"`
	Files  []storage.ArtifactInfo `json:"files"`
}

// List は成果物一覧を返す（?label= でソース名を絞り込み）
func (h *FileHandler) List(c echo.Context) error {
	files, err := h.artifacts.List()
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}

	label := c.QueryParam("label")
	seen := make(map[string]bool)
	resp := fileListResponse{Labels: []string{}, Files: make([]storage.ArtifactInfo, 0, len(files))}
	for _, f := range files {
		if f.SourceLabel != "" && !seen[f.SourceLabel] {
			seen[f.SourceLabel] = true
			resp.Labels = append(resp.Labels, f.SourceLabel)
		}
		if label != "" && f.SourceLabel != label {
			continue
		}
		resp.Files = append(resp.Files, f)
	}
	return c.JSON(http.StatusOK, resp)
}

// Content は成果物の本文を返す
func (h *FileHandler) Content(c echo.Context) error {
	rel := c.QueryParam("path")
	content, err := h.artifacts.Read(rel)
	if err != nil {
		return errorJSON(c, storageStatus(err), err)
	}
	return c.JSON(http.StatusOK, map[string]string{"path": rel, "content": content})
}

// Download は成果物を添付ファイルとして返す
func (h *FileHandler) Download(c echo.Context) error {
	rel := c.QueryParam("path")
	abs, err := h.artifacts.Resolve(rel)
	if err != nil {
		return errorJSON(c, storageStatus(err), err)
	}
	return c.Attachment(abs, path.Base(rel))
}

// Delete は成果物を削除
func (h *FileHandler) Delete(c echo.Context) error {
	rel := c.QueryParam("path")
	if err := h.artifacts.Delete(rel); err != nil {
		return errorJSON(c, storageStatus(err), err)
	}
	h.logger.Info("artifact deleted", zap.String("path", rel))
	return c.NoContent(http.StatusNoContent)
}
