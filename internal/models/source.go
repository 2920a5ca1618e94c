package models

import (
	"strings"
	"time"
)

// Source は監視・処理対象の配信元（チャンネルまたはプレイリスト）
type Source struct {
	ID   string `json:"id" yaml:"id" mapstructure:"id"`
	Name string `json:"name" yaml:"name" mapstructure:"name"`
}

// Label は出力ディレクトリ名として使う表示名
func (s Source) Label() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.ID
}

// SourceInfo は配信元の解決結果
type SourceInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url,omitempty"`
}

// Item は配信元に属する1本の動画
type Item struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	URL        string        `json:"url,omitempty"`
	Author     string        `json:"author,omitempty"`
	UploadDate string        `json:"upload_date,omitempty"` // YYYYMMDD
	Duration   time.Duration `json:"duration,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
}

// UploadDay returns the upload date formatted as YYYY-MM-DD, or "" when unknown.
func (i Item) UploadDay() string {
	t, err := time.Parse("20060102", i.UploadDate)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
