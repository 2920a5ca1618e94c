package asr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// Recognizer handles speech recognition using Sherpa-ONNX.
// Decoding is serialized; one recognizer is shared by every job.
type Recognizer struct {
	config Config

	mu         sync.Mutex
	recognizer *sherpa.OfflineRecognizer
}

// NewRecognizer loads the model described by config
func NewRecognizer(config Config) (*Recognizer, error) {
	config = config.withDefaults()
	sherpaConfig, err := config.recognizerConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, ErrFFmpegNotFound
	}

	recognizer := sherpa.NewOfflineRecognizer(sherpaConfig)
	if recognizer == nil {
		return nil, fmt.Errorf("failed to create %s recognizer", config.Engine)
	}
	return &Recognizer{config: config, recognizer: recognizer}, nil
}

// Close releases resources used by the recognizer
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(r.recognizer)
		r.recognizer = nil
	}
	return nil
}

// Transcribe returns the text of the audio file at path
func (r *Recognizer) Transcribe(ctx context.Context, path string, onProgress func(fraction float64), clip time.Duration) (string, error) {
	result, err := r.TranscribeFile(ctx, path, onProgress, clip)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// TranscribeFile decodes the file through ffmpeg and transcribes it chunk by chunk.
// Cancellation is checked between chunks.
func (r *Recognizer) TranscribeFile(ctx context.Context, path string, onProgress func(fraction float64), clip time.Duration) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recognizer == nil {
		return nil, errors.New("recognizer is closed")
	}

	start := time.Now()

	// Duration is only used for progress
	total, _ := GetAudioDuration(ctx, path)
	if clip > 0 && (total == 0 || clip < total) {
		total = clip
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", pcmArgs(path, r.config.SampleRate, clip)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	reader := bufio.NewReader(stdout)
	chunkBytes := r.config.SampleRate * r.config.ChunkSec * 2
	buffer := make([]byte, chunkBytes)

	var segments []Segment
	var processed int64
	for {
		if err := ctx.Err(); err != nil {
			_ = cmd.Wait()
			return nil, err
		}

		n, readErr := io.ReadFull(reader, buffer)
		if n > 0 {
			samples := bytesToFloat32(buffer[:n])
			offset := float64(processed) / float64(r.config.SampleRate)
			processed += int64(len(samples))
			end := float64(processed) / float64(r.config.SampleRate)

			if text := r.decode(samples); text != "" {
				segments = append(segments, Segment{Text: text, StartTime: offset, EndTime: end})
			}
			if onProgress != nil && total > 0 {
				onProgress(min(end/total.Seconds(), 1))
			}
		}
		if readErr != nil {
			if readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
				_ = cmd.Wait()
				return nil, fmt.Errorf("failed to read audio: %w", readErr)
			}
			break
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return newResult(segments, float64(processed)/float64(r.config.SampleRate), time.Since(start)), nil
}

// decode transcribes a single chunk of samples
func (r *Recognizer) decode(samples []float32) string {
	if len(samples) == 0 {
		return ""
	}

	stream := sherpa.NewOfflineStream(r.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(r.config.SampleRate, samples)
	r.recognizer.Decode(stream)

	result := stream.GetResult()
	if result == nil {
		return ""
	}
	return strings.TrimSpace(result.Text)
}
