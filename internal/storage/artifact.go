package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"vodscribe/internal/models"
)

const (
	artifactExt     = ".md"
	maxArtifactPath = 512
	maxNameRunes    = 150
	unsortedLabel   = "unsorted"
)

var unsafeNameChars = strings.NewReplacer(
	"/", "", "\\", "", ":", "", "*", "", "?", "",
	"\"", "", "<", "", ">", "", "|", "",
	"\n", " ", "\r", " ", "\t", " ",
)

// ArtifactStore は出力ドキュメントツリー（<root>/<source_label>/<title>.md）を管理する
type ArtifactStore struct {
	root string
}

// ArtifactMatch は既存成果物の検索結果
//
// Exists が true で Path が空の場合、一致するファイルはあるが紐付け可能なパスに解決できなかった。
type ArtifactMatch struct {
	Exists bool
	Path   string
}

// ArtifactInfo は一覧表示用のファイル情報
type ArtifactInfo struct {
	Path        string    `json:"path"`
	SourceLabel string    `json:"source_label"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// NewArtifactStore は新しいArtifactStoreを作成
func NewArtifactStore(root string) (*ArtifactStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output root: %w", err)
	}
	if err := ensureDir(abs); err != nil {
		return nil, err
	}
	return &ArtifactStore{root: abs}, nil
}

// Root returns the absolute output root.
func (s *ArtifactStore) Root() string {
	return s.root
}

// Lookup はソースの出力ディレクトリから、ファイル名にアイテムIDまたはタイトルを含むものを探す
func (s *ArtifactStore) Lookup(label string, item models.Item) (ArtifactMatch, error) {
	dirName := SanitizeName(label, unsortedLabel)
	entries, err := os.ReadDir(filepath.Join(s.root, dirName))
	if errors.Is(err, os.ErrNotExist) {
		return ArtifactMatch{}, nil
	}
	if err != nil {
		return ArtifactMatch{}, fmt.Errorf("failed to scan output directory: %w", err)
	}

	needles := matchNeedles(item)
	if len(needles) == 0 {
		return ArtifactMatch{}, nil
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !containsAny(entry.Name(), needles) {
			continue
		}
		rel := path.Join(dirName, entry.Name())
		if _, err := s.Resolve(rel); err != nil {
			return ArtifactMatch{Exists: true}, nil
		}
		return ArtifactMatch{Exists: true, Path: rel}, nil
	}
	return ArtifactMatch{}, nil
}

func matchNeedles(item models.Item) []string {
	var needles []string
	if id := strings.TrimSpace(item.ID); id != "" {
		needles = append(needles, id)
	}
	if title := strings.TrimSpace(item.Title); title != "" {
		needles = append(needles, title)
		if safe := SanitizeName(title, ""); safe != "" && safe != title {
			needles = append(needles, safe)
		}
	}
	return needles
}

func containsAny(name string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

// ArtifactFilename は保存ファイル名を組み立てる（投稿日が分かれば "[YYYY-MM-DD] " を前置）
func ArtifactFilename(item models.Item) string {
	name := SanitizeName(item.Title, SanitizeName(item.ID, "untitled"))
	if day := item.UploadDay(); day != "" {
		name = "[" + day + "] " + name
	}
	return name + artifactExt
}

// Save はドキュメントを原子的に保存し、ルートからの相対パスを返す
func (s *ArtifactStore) Save(label string, item models.Item, document string) (string, error) {
	dirName := SanitizeName(label, unsortedLabel)
	rel := path.Join(dirName, ArtifactFilename(item))
	if len(rel) > maxArtifactPath {
		return "", fmt.Errorf("%w: %d characters", ErrInvalidPath, len(rel))
	}
	if err := writeAtomic(filepath.Join(s.root, filepath.FromSlash(rel)), []byte(document)); err != nil {
		return "", err
	}
	return rel, nil
}

// Resolve は相対パスを検証し、ルート配下に存在する .md ファイルの絶対パスを返す
func (s *ArtifactStore) Resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" || len(rel) > maxArtifactPath {
		return "", ErrInvalidPath
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", ErrInvalidPath
	}
	abs := filepath.Join(s.root, cleaned)
	within, err := filepath.Rel(s.root, abs)
	if err != nil || within == "." || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	if !strings.EqualFold(filepath.Ext(abs), artifactExt) {
		return "", ErrInvalidPath
	}
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat artifact: %w", err)
	}
	if info.IsDir() {
		return "", ErrInvalidPath
	}
	return abs, nil
}

// Read は成果物の内容を返す
func (s *ArtifactStore) Read(rel string) (string, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	return string(data), nil
}

// Delete は成果物を削除する
func (s *ArtifactStore) Delete(rel string) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// List は全成果物を更新日時の新しい順で返す
func (s *ArtifactStore) List() ([]ArtifactInfo, error) {
	fsys := os.DirFS(s.root)
	matches, err := doublestar.Glob(fsys, "**/*"+artifactExt)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	infos := make([]ArtifactInfo, 0, len(matches))
	for _, m := range matches {
		st, err := fs.Stat(fsys, m)
		if err != nil || st.IsDir() {
			continue
		}
		label := ""
		if dir := path.Dir(m); dir != "." {
			label = strings.SplitN(dir, "/", 2)[0]
		}
		infos = append(infos, ArtifactInfo{
			Path:        m,
			SourceLabel: label,
			Name:        path.Base(m),
			Size:        st.Size(),
			ModifiedAt:  st.ModTime(),
		})
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].ModifiedAt.After(infos[j].ModifiedAt)
	})
	return infos, nil
}

// SanitizeName はファイル名に使えない文字を除去する。結果が空なら fallback を返す
func SanitizeName(s, fallback string) string {
	name := strings.TrimSpace(unsafeNameChars.Replace(s))
	name = strings.Trim(name, ". ")
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = strings.TrimSpace(string([]rune(name)[:maxNameRunes]))
	}
	if name == "" {
		return fallback
	}
	return name
}

type frontmatter struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	URL        string   `yaml:"url,omitempty"`
	Author     string   `yaml:"author,omitempty"`
	UploadDate string   `yaml:"upload_date,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
	Origin     string   `yaml:"origin,omitempty"`
}

// RenderDocument はメタデータヘッダー（YAML frontmatter）と本文を結合する
func RenderDocument(item models.Item, body, origin string) (string, error) {
	header, err := yaml.Marshal(frontmatter{
		ID:         item.ID,
		Title:      item.Title,
		URL:        item.URL,
		Author:     item.Author,
		UploadDate: item.UploadDay(),
		Tags:       item.Tags,
		Origin:     origin,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render header: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	return b.String(), nil
}
