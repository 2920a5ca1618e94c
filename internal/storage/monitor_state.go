package storage

import (
	"sync"
	"time"

	"vodscribe/internal/models"
)

// MonitorStateStore は監視カーソル（配信元ごとの最終確認アイテム）を保持する
//
// Update は読み込みから保存までを1つのロック内で行うため、並行ポーリングで更新が失われない。
type MonitorStateStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewMonitorStateStore は新しいMonitorStateStoreを作成
func NewMonitorStateStore(path string) *MonitorStateStore {
	return &MonitorStateStore{path: path, now: time.Now}
}

// Load は現在の状態を返す
func (s *MonitorStateStore) Load() (models.MonitorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update は fn で状態を変更し、checked_at を更新して原子的に保存する
//
// fn がエラーを返した場合は保存しない。
func (s *MonitorStateStore) Update(fn func(*models.MonitorState) error) (models.MonitorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return models.MonitorState{}, err
	}
	if err := fn(&state); err != nil {
		return models.MonitorState{}, err
	}
	state.CheckedAt = s.now().Unix()
	if err := writeJSON(s.path, state); err != nil {
		return models.MonitorState{}, err
	}
	return state, nil
}

func (s *MonitorStateStore) load() (models.MonitorState, error) {
	var state models.MonitorState
	if _, err := readJSON(s.path, &state); err != nil {
		return models.MonitorState{}, err
	}
	if state.LastSeen == nil {
		state.LastSeen = make(map[string]string)
	}
	return state, nil
}
