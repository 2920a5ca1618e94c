package storage

import (
	"errors"
	"strings"
	"sync"

	"vodscribe/internal/models"
)

// SourceRegistry は追跡対象の配信元一覧
type SourceRegistry struct {
	path    string
	mu      sync.RWMutex
	sources []models.Source
}

// OpenSourceRegistry はドキュメントを読み込む。存在しなければ seed で初期化して保存する
func OpenSourceRegistry(path string, seed []models.Source) (*SourceRegistry, error) {
	r := &SourceRegistry{path: path}
	var sources []models.Source
	found, err := readJSON(path, &sources)
	if err != nil {
		return nil, err
	}
	if found {
		r.sources = sources
		return r, nil
	}

	for _, src := range seed {
		if strings.TrimSpace(src.ID) == "" || r.indexOf(src.ID) >= 0 {
			continue
		}
		r.sources = append(r.sources, src)
	}
	if err := writeJSON(path, r.sources); err != nil {
		return nil, err
	}
	return r, nil
}

// List は登録順のコピーを返す
func (r *SourceRegistry) List() []models.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Get はIDで配信元を取得
func (r *SourceRegistry) Get(id string) (models.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		return r.sources[i], true
	}
	return models.Source{}, false
}

// Add は配信元を追加する。既に登録済みなら名前だけ更新し false を返す
func (r *SourceRegistry) Add(src models.Source) (bool, error) {
	if strings.TrimSpace(src.ID) == "" {
		return false, errors.New("source id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(src.ID); i >= 0 {
		if src.Name == "" || r.sources[i].Name == src.Name {
			return false, nil
		}
		r.sources[i].Name = src.Name
		return false, writeJSON(r.path, r.sources)
	}
	r.sources = append(r.sources, src)
	return true, writeJSON(r.path, r.sources)
}

// Remove は配信元を削除する
func (r *SourceRegistry) Remove(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return false, nil
	}
	r.sources = append(r.sources[:i:i], r.sources[i+1:]...)
	return true, writeJSON(r.path, r.sources)
}

func (r *SourceRegistry) indexOf(id string) int {
	for i, s := range r.sources {
		if s.ID == id {
			return i
		}
	}
	return -1
}
