package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"

	"vodscribe/internal/models"
)

var (
	channelIDPattern  = regexp.MustCompile(`^UC[\w-]{22}$`)
	channelPathRegexp = regexp.MustCompile(`/channel/(UC[\w-]{22})`)
	playlistIDPattern = regexp.MustCompile(`^(PL|UU|OL|FL|LL)[\w-]{10,}$`)
)

// ErrUnsupportedSource は解決できない入力
var ErrUnsupportedSource = errors.New("unsupported source")

// ChannelResolver はハンドルURL（/@name）をチャンネルIDに解決する
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, pageURL string) (models.SourceInfo, error)
}

// Options はクライアント設定
type Options struct {
	TempDir    string // 音声の一時保存先
	Format     string // "mp4", "webm", "best"
	Language   string // 音声トラックの言語
	Resolver   ChannelResolver
	HTTPClient *http.Client
}

// Client はYouTube API操作を抽象化するクライアント
type Client struct {
	client   ytdl.Client
	resolver ChannelResolver
	tempDir  string
	format   string
	language string
}

// NewClient は新しいYouTubeクライアントを作成
func NewClient(opts Options) *Client {
	format := opts.Format
	if format == "" {
		format = "best"
	}
	return &Client{
		client:   ytdl.Client{HTTPClient: opts.HTTPClient},
		resolver: opts.Resolver,
		tempDir:  opts.TempDir,
		format:   format,
		language: opts.Language,
	}
}

// WatchURL は動画IDから視聴URLを組み立てる
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// UploadsPlaylistID はチャンネルIDをアップロード一覧プレイリストIDに変換する（それ以外はそのまま）
func UploadsPlaylistID(sourceID string) string {
	if channelIDPattern.MatchString(sourceID) {
		return "UU" + sourceID[2:]
	}
	return sourceID
}

// Items はソース（チャンネルまたはプレイリスト）の動画一覧を新しい順で取得
func (c *Client) Items(ctx context.Context, sourceID string) ([]models.Item, error) {
	playlist, err := c.client.GetPlaylistContext(ctx, UploadsPlaylistID(sourceID))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", sourceID, err)
	}

	items := make([]models.Item, 0, len(playlist.Videos))
	for _, entry := range playlist.Videos {
		if entry == nil || entry.ID == "" {
			continue
		}
		items = append(items, models.Item{
			ID:       entry.ID,
			Title:    entry.Title,
			URL:      WatchURL(entry.ID),
			Author:   entry.Author,
			Duration: entry.Duration,
		})
	}
	return items, nil
}

// Video は1本の動画のメタ情報を取得
func (c *Client) Video(ctx context.Context, idOrURL string) (models.Item, error) {
	video, err := c.client.GetVideoContext(ctx, idOrURL)
	if err != nil {
		return models.Item{}, fmt.Errorf("failed to get video: %w", err)
	}
	item := models.Item{
		ID:       video.ID,
		Title:    video.Title,
		URL:      WatchURL(video.ID),
		Author:   video.Author,
		Duration: video.Duration,
	}
	if !video.PublishDate.IsZero() {
		item.UploadDate = video.PublishDate.Format("20060102")
	}
	return item, nil
}

// SourceInfo はチャンネルID・プレイリストID/URL・チャンネルURL・ハンドルURLを配信元に解決する
func (c *Client) SourceInfo(ctx context.Context, input string) (models.SourceInfo, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return models.SourceInfo{}, fmt.Errorf("%w: empty input", ErrUnsupportedSource)
	case channelIDPattern.MatchString(input):
		return c.channelInfo(ctx, input)
	case playlistIDPattern.MatchString(input):
		return c.playlistInfo(ctx, input)
	}

	u, err := url.Parse(input)
	if err != nil {
		return models.SourceInfo{}, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	if list := u.Query().Get("list"); list != "" {
		return c.playlistInfo(ctx, list)
	}
	if m := channelPathRegexp.FindStringSubmatch(u.Path); m != nil {
		return c.channelInfo(ctx, m[1])
	}
	if strings.HasPrefix(u.Path, "/@") || strings.HasPrefix(input, "@") {
		if c.resolver == nil {
			return models.SourceInfo{}, fmt.Errorf("%w: handle resolution is not configured", ErrUnsupportedSource)
		}
		pageURL := input
		if strings.HasPrefix(input, "@") {
			pageURL = "https://www.youtube.com/" + input
		}
		info, err := c.resolver.ResolveChannel(ctx, pageURL)
		if err != nil {
			return models.SourceInfo{}, err
		}
		if info.DisplayName == "" {
			return c.channelInfo(ctx, info.ID)
		}
		return info, nil
	}
	return models.SourceInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedSource, input)
}

func (c *Client) channelInfo(ctx context.Context, channelID string) (models.SourceInfo, error) {
	info := models.SourceInfo{
		ID:          channelID,
		DisplayName: channelID,
		URL:         "https://www.youtube.com/channel/" + channelID,
	}
	playlist, err := c.client.GetPlaylistContext(ctx, UploadsPlaylistID(channelID))
	if err != nil {
		return models.SourceInfo{}, fmt.Errorf("failed to get channel %s: %w", channelID, err)
	}
	if playlist.Author != "" {
		info.DisplayName = playlist.Author
	}
	return info, nil
}

func (c *Client) playlistInfo(ctx context.Context, playlistID string) (models.SourceInfo, error) {
	playlist, err := c.client.GetPlaylistContext(ctx, playlistID)
	if err != nil {
		return models.SourceInfo{}, fmt.Errorf("failed to get playlist %s: %w", playlistID, err)
	}
	name := playlist.Title
	if name == "" {
		name = playlist.ID
	}
	return models.SourceInfo{
		ID:          playlist.ID,
		DisplayName: name,
		URL:         "https://www.youtube.com/playlist?list=" + playlist.ID,
	}, nil
}
