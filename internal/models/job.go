package models

import "time"

// JobKind はジョブの種類
type JobKind string

// ジョブ種別
const (
	JobKindRunAll    JobKind = "run_all"
	JobKindRunSource JobKind = "run_source"
	JobKindRunItem   JobKind = "run_item"
)

// Job はキューに積まれる処理要求
//
// Kind によって有効なフィールドが決まる:
//   - run_all: なし
//   - run_source: Source, Force, MaxItems
//   - run_item: SourceLabel, Item, Force, Clip
//
// ID が空のジョブは状態照会・停止の対象にならない。
type Job struct {
	Kind        JobKind       `json:"kind"`
	ID          string        `json:"id,omitempty"`
	Source      Source        `json:"source,omitempty"`
	SourceLabel string        `json:"source_label,omitempty"`
	Item        *Item         `json:"item,omitempty"`
	Force       bool          `json:"force"`
	MaxItems    int           `json:"max_items,omitempty"`
	Clip        time.Duration `json:"clip,omitempty"`
}

// NewRunAll は全ソース処理ジョブを作成
func NewRunAll(id string) Job {
	return Job{Kind: JobKindRunAll, ID: id}
}

// NewRunSource は単一ソース処理ジョブを作成
func NewRunSource(id string, source Source, force bool, maxItems int) Job {
	if maxItems < 0 {
		maxItems = 0
	}
	return Job{Kind: JobKindRunSource, ID: id, Source: source, Force: force, MaxItems: maxItems}
}

// NewRunItem は単一アイテム処理ジョブを作成
func NewRunItem(id, sourceLabel string, item Item, force bool) Job {
	return Job{Kind: JobKindRunItem, ID: id, SourceLabel: sourceLabel, Item: &item, Force: force}
}

// Addressable reports whether the job can be queried or terminated by id.
func (j Job) Addressable() bool {
	return j.ID != ""
}

// Label returns the output label the job writes under, if it targets a single source.
func (j Job) Label() string {
	switch j.Kind {
	case JobKindRunSource:
		return j.Source.Label()
	case JobKindRunItem:
		return j.SourceLabel
	}
	return ""
}
