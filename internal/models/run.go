package models

import "time"

// SavedArtifact は直近に保存（または既存として紐付け）された成果物
type SavedArtifact struct {
	JobID string    `json:"job_id,omitempty"`
	Path  string    `json:"path,omitempty"`
	Name  string    `json:"name,omitempty"`
	At    time.Time `json:"at,omitempty"`
}

// RunSnapshot はワーカー状態の読み取り専用コピー
type RunSnapshot struct {
	OverallStatus      OverallStatus `json:"overall_status"`
	Progress           int           `json:"progress"`
	Logs               []string      `json:"logs"`
	QueueSize          int           `json:"queue_size"`
	CurrentJobID       string        `json:"current_job_id,omitempty"`
	CurrentSourceLabel string        `json:"current_source_label,omitempty"`
	CurrentItemTitle   string        `json:"current_item_title,omitempty"`
	LastSaved          SavedArtifact `json:"last_saved"`
}

// MonitorState は配信元ごとの最終確認アイテム
type MonitorState struct {
	LastSeen  map[string]string `json:"last_seen"`
	CheckedAt int64             `json:"checked_at"`
}

// MonitorEvent は1配信元の新着アイテム
type MonitorEvent struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	Items      []Item `json:"items"`
}

// PollResult は監視ポーリング1回分の結果
type PollResult struct {
	CheckedAt time.Time      `json:"checked_at"`
	Events    []MonitorEvent `json:"events"`
}
