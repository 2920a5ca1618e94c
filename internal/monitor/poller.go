// Package monitor detects items published since the previous poll of each tracked source.
package monitor

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"vodscribe/internal/models"
	"vodscribe/internal/storage"
)

// Cap bounds for the number of new items reported per source.
const (
	MinPerSource = 1
	MaxPerSource = 5
)

// Lister lists the items of a source.
type Lister interface {
	Items(ctx context.Context, sourceID string) ([]models.Item, error)
}

// SourceLister returns the tracked sources.
type SourceLister interface {
	List() []models.Source
}

// Poller compares each source's newest items against the stored cursor.
type Poller struct {
	sources SourceLister
	lister  Lister
	state   *storage.MonitorStateStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewPoller creates a Poller.
func NewPoller(sources SourceLister, lister Lister, state *storage.MonitorStateStore, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{sources: sources, lister: lister, state: state, logger: logger, now: time.Now}
}

// ClampPerSource limits the caller's cap to [MinPerSource, MaxPerSource].
func ClampPerSource(n int) int {
	if n < MinPerSource {
		return MinPerSource
	}
	if n > MaxPerSource {
		return MaxPerSource
	}
	return n
}

// Poll scans every tracked source and returns one event per source with new items.
// A source seen for the first time is seeded with its newest item and yields no event.
// The whole scan runs inside a single state update, persisted once at the end.
func (p *Poller) Poll(ctx context.Context, maxPerSource int) (models.PollResult, error) {
	limit := ClampPerSource(maxPerSource)
	result := models.PollResult{Events: []models.MonitorEvent{}}

	_, err := p.state.Update(func(st *models.MonitorState) error {
		for _, src := range p.sources.List() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if ev, ok := p.scan(ctx, src, st, limit); ok {
				result.Events = append(result.Events, ev)
			}
		}
		return nil
	})
	if err != nil {
		return models.PollResult{}, err
	}
	result.CheckedAt = p.now()
	return result, nil
}

func (p *Poller) scan(ctx context.Context, src models.Source, st *models.MonitorState, limit int) (models.MonitorEvent, bool) {
	items, err := p.lister.Items(ctx, src.ID)
	if err != nil {
		p.logger.Warn("monitor: failed to list source", zap.String("source", src.ID), zap.Error(err))
		return models.MonitorEvent{}, false
	}
	items = newestFirst(items)
	if len(items) == 0 {
		return models.MonitorEvent{}, false
	}

	newest := items[0].ID
	prev, seen := st.LastSeen[src.ID]
	st.LastSeen[src.ID] = newest
	if !seen || prev == "" {
		p.logger.Info("monitor: seeded source", zap.String("source", src.ID), zap.String("last_seen", newest))
		return models.MonitorEvent{}, false
	}
	if prev == newest {
		return models.MonitorEvent{}, false
	}

	var fresh []models.Item
	for _, item := range items {
		if item.ID == prev || len(fresh) >= limit {
			break
		}
		fresh = append(fresh, item)
	}
	if len(fresh) == 0 {
		return models.MonitorEvent{}, false
	}
	return models.MonitorEvent{SourceID: src.ID, SourceName: src.Label(), Items: fresh}, true
}

// newestFirst drops items without an id and orders by upload date, newest first. Items with
// equal or unknown dates keep the lister's order.
func newestFirst(items []models.Item) []models.Item {
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if item.ID != "" {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadDate > out[j].UploadDate
	})
	return out
}
