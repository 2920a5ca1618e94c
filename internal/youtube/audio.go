package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"

	"vodscribe/internal/models"
)

// audioExtension はMIMEタイプから拡張子を返す
func audioExtension(mimeType string) string {
	if strings.Contains(mimeType, "mp4") {
		return ".m4a"
	}
	if strings.Contains(mimeType, "webm") {
		return ".webm"
	}
	return ".audio"
}

// selectAudioFormat は指定された形式と言語に基づいて最適な音声フォーマットを選択
func selectAudioFormat(formats ytdl.FormatList, formatType, language string) (*ytdl.Format, error) {
	var audio []*ytdl.Format
	for i := range formats {
		if strings.HasPrefix(formats[i].MimeType, "audio/") {
			audio = append(audio, &formats[i])
		}
	}
	if len(audio) == 0 {
		return nil, errors.New("no audio formats available")
	}

	// 言語でフィルタ（見つからない場合はフィルタなしで続行）
	if language != "" {
		lang := strings.ToLower(language)
		var filtered []*ytdl.Format
		for _, f := range audio {
			if f.AudioTrack == nil {
				continue
			}
			if strings.HasPrefix(strings.ToLower(f.AudioTrack.ID), lang) ||
				strings.Contains(strings.ToLower(f.AudioTrack.DisplayName), lang) {
				filtered = append(filtered, f)
			}
		}
		if len(filtered) > 0 {
			audio = filtered
		}
	}

	if formatType == "mp4" || formatType == "webm" {
		var filtered []*ytdl.Format
		for _, f := range audio {
			if strings.Contains(f.MimeType, formatType) {
				filtered = append(filtered, f)
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("no audio formats available for type: %s", formatType)
		}
		audio = filtered
	}

	// ビットレート降順
	sort.SliceStable(audio, func(i, j int) bool {
		return audio[i].Bitrate > audio[j].Bitrate
	})
	return audio[0], nil
}

// FetchAudio は音声を一時ディレクトリにダウンロードし、そのパスを返す
func (c *Client) FetchAudio(ctx context.Context, item models.Item, onProgress func(percent float64)) (string, error) {
	target := item.URL
	if target == "" {
		target = item.ID
	}
	video, err := c.client.GetVideoContext(ctx, target)
	if err != nil {
		return "", fmt.Errorf("failed to get video: %w", err)
	}

	format, err := selectAudioFormat(video.Formats, c.format, c.language)
	if err != nil {
		return "", err
	}

	stream, size, err := c.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	dir := c.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	outputPath := filepath.Join(dir, sanitizeFilename(video.ID)+audioExtension(format.MimeType))

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	err = copyWithProgress(ctx, file, stream, size, func(current, total int64) {
		if onProgress != nil && total > 0 {
			onProgress(float64(current) * 100 / float64(total))
		}
	})
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outputPath) // 失敗時はファイルを削除
		return "", fmt.Errorf("failed to download: %w", err)
	}
	return outputPath, nil
}

// Cleanup はダウンロードした一時ファイルを削除
func (c *Client) Cleanup(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// copyWithProgress はプログレスコールバック付きでコピー（チャンクごとにキャンセルを確認）
func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress func(current, total int64)) error {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
				if progress != nil {
					progress(written, total)
				}
			}
			if ew != nil {
				return ew
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// sanitizeFilename はファイル名として使えない文字を置換
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
