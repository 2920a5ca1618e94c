package asr

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Segment is the text decoded from one chunk of audio
type Segment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"` // in seconds
	EndTime   float64 `json:"end_time"`   // in seconds
}

// Result represents the complete transcription result
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
	Audio    float64   `json:"audio_seconds"`
	Duration float64   `json:"duration"` // processing time in seconds
}

func newResult(segments []Segment, audio float64, elapsed time.Duration) *Result {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return &Result{
		Text:     strings.Join(parts, "\n"),
		Segments: segments,
		Audio:    audio,
		Duration: elapsed.Seconds(),
	}
}

// FormatAsText returns the transcription as plain text
func (r *Result) FormatAsText() string {
	return r.Text
}

// FormatAsJSON returns the transcription as formatted JSON
func (r *Result) FormatAsJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// FormatAsSRT returns the transcription as SRT subtitle format
func (r *Result) FormatAsSRT() string {
	if len(r.Segments) == 0 {
		return formatSRTSegment(1, 0, r.Audio, r.Text)
	}

	var b strings.Builder
	for i, seg := range r.Segments {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatSRTSegment(i+1, seg.StartTime, seg.EndTime, seg.Text))
	}
	return b.String()
}

func formatSRTSegment(index int, startSec, endSec float64, text string) string {
	return fmt.Sprintf("%d\n%s --> %s\n%s\n",
		index,
		formatSRTTime(startSec),
		formatSRTTime(endSec),
		text,
	)
}

// formatSRTTime converts seconds to SRT time format (HH:MM:SS,mmm)
func formatSRTTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
