package asr

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrFFmpegNotFound is returned when ffmpeg or ffprobe is not on PATH
var ErrFFmpegNotFound = errors.New("ffmpeg not found: please install ffmpeg")

// SupportedFormats lists audio formats that can be decoded
var SupportedFormats = []string{".mp3", ".m4a", ".aac", ".ogg", ".flac", ".wav", ".webm", ".opus", ".mp4"}

// IsSupportedFormat checks if the file extension is a supported audio format
func IsSupportedFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range SupportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// pcmArgs builds the ffmpeg arguments that decode inputPath to 16-bit mono PCM on stdout.
// clip > 0 keeps only the first clip of audio.
func pcmArgs(inputPath string, sampleRate int, clip time.Duration) []string {
	args := []string{"-i", inputPath}
	if clip > 0 {
		args = append(args, "-t", strconv.FormatFloat(clip.Seconds(), 'f', 3, 64))
	}
	return append(args,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-loglevel", "error",
		"pipe:1",
	)
}

// GetAudioDuration returns the duration of an audio file
func GetAudioDuration(ctx context.Context, inputPath string) (time.Duration, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, ErrFFmpegNotFound
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		inputPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get audio duration: %w", err)
	}
	return parseDuration(string(output))
}

func parseDuration(s string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// bytesToFloat32 converts little-endian 16-bit PCM to float32 samples
func bytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		sample := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
