package storage

import (
	"sync"
	"time"

	"vodscribe/internal/models"
)

// DefaultHistoryLimit は保持する履歴件数の既定値
const DefaultHistoryLimit = 100

// HistoryLedger は直近 N 件だけを保持する追記専用の処理履歴
//
// 書き込みはワーカーのみ、読み取りは API 層から並行に行われる。
type HistoryLedger struct {
	path    string
	limit   int
	mu      sync.RWMutex
	records []models.HistoryRecord
}

// OpenHistoryLedger は履歴ドキュメントを読み込む（なければ空）
func OpenHistoryLedger(path string, limit int) (*HistoryLedger, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	l := &HistoryLedger{path: path, limit: limit}
	var records []models.HistoryRecord
	if _, err := readJSON(path, &records); err != nil {
		return nil, err
	}
	l.records = trimRecords(records, limit)
	return l, nil
}

// Append は1件追記し、上限を超えた古いものから捨てて保存する
func (l *HistoryLedger) Append(rec models.HistoryRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]models.HistoryRecord, 0, len(l.records)+1)
	next = trimRecords(append(append(next, l.records...), rec), l.limit)
	if err := writeJSON(l.path, next); err != nil {
		return err
	}
	l.records = next
	return nil
}

// List は古い順のコピーを返す
func (l *HistoryLedger) List() []models.HistoryRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.HistoryRecord, len(l.records))
	copy(out, l.records)
	return out
}

// FindByJobID はジョブIDに一致する最新の履歴を返す
func (l *HistoryLedger) FindByJobID(jobID string) (models.HistoryRecord, bool) {
	if jobID == "" {
		return models.HistoryRecord{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].JobID == jobID {
			return l.records[i], true
		}
	}
	return models.HistoryRecord{}, false
}

func trimRecords(records []models.HistoryRecord, limit int) []models.HistoryRecord {
	if len(records) <= limit {
		return records
	}
	kept := make([]models.HistoryRecord, limit)
	copy(kept, records[len(records)-limit:])
	return kept
}
