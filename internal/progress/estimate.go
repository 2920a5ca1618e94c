// Package progress maps per-stage fractions onto a single 0-100 job progress value.
package progress

import (
	"math"
	"time"
)

// Span is the slice of one item's progress owned by a pipeline stage.
type Span struct {
	From float64
	To   float64
}

// Stage spans for the two pipeline modes.
var (
	Download   = Span{From: 0, To: 0.12}
	Transcribe = Span{From: 0.12, To: 0.80}
	Summarize  = Span{From: 0.80, To: 0.95}
	Save       = Span{From: 0.95, To: 1.0}

	Remote = Span{From: 0.02, To: 0.95}
)

// At maps a stage-local fraction into the item's fraction.
func (s Span) At(fraction float64) float64 {
	return s.From + (s.To-s.From)*clamp01(fraction)
}

// Position locates the current item within a job.
type Position struct {
	SourcesDone  int
	SourcesTotal int
	ItemsDone    int
	ItemsTotal   int
}

// Single is the position of a job that processes exactly one item.
var Single = Position{SourcesTotal: 1, ItemsTotal: 1}

// Estimate combines the item fraction with the item and source position into 0..100.
//
// overall = (sources_done + (items_done + item_fraction) / items_total) / sources_total
func Estimate(pos Position, itemFraction float64) int {
	if pos.SourcesTotal <= 0 {
		return 0
	}
	var sourceFraction float64
	if pos.ItemsTotal > 0 {
		sourceFraction = clamp01((float64(pos.ItemsDone) + clamp01(itemFraction)) / float64(pos.ItemsTotal))
	}
	overall := clamp01((float64(pos.SourcesDone) + sourceFraction) / float64(pos.SourcesTotal))
	return int(math.Floor(overall*100 + 1e-9))
}

// ElapsedFraction is the time-based heuristic used when a stage reports no fraction of its own.
func ElapsedFraction(elapsed, horizon time.Duration) float64 {
	if horizon <= 0 {
		return 0
	}
	return clamp01(float64(elapsed) / float64(horizon))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
