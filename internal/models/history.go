package models

import "time"

// Outcome はアイテム処理結果
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// StageDurations は各ステージの所要秒数
type StageDurations struct {
	Download   *int `json:"download,omitempty"`
	Transcribe *int `json:"transcribe,omitempty"`
	Summarize  *int `json:"summarize,omitempty"`
}

// HistoryRecord は処理履歴の1件（追記後は不変）
type HistoryRecord struct {
	SourceLabel    string         `json:"source_label"`
	ItemTitle      string         `json:"item_title"`
	Outcome        Outcome        `json:"outcome"`
	JobID          string         `json:"job_id,omitempty"`
	ArtifactPath   string         `json:"artifact_path,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	DurationSec    *int           `json:"duration_sec,omitempty"`
	StageDurations StageDurations `json:"stage_durations"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Seconds converts a duration to a rounded second count pointer for history fields.
func Seconds(d time.Duration) *int {
	s := int(d.Round(time.Second) / time.Second)
	return &s
}
