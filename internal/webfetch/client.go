package webfetch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/naozine/nz-html-fetch/pkg/htmlfetch"

	"vodscribe/internal/models"
)

// ErrChannelNotFound はページからチャンネルIDを取得できなかった
var ErrChannelNotFound = errors.New("channel id not found in page")

var (
	channelIDRegexp = regexp.MustCompile(`"(?:channelId|externalId|browseId)"\s*:\s*"(UC[\w-]{22})"`)
	canonicalRegexp = regexp.MustCompile(`<link[^>]+rel="canonical"[^>]+href="https://www\.youtube\.com/channel/(UC[\w-]{22})"`)
	ogTitleRegexp   = regexp.MustCompile(`<meta[^>]+property="og:title"[^>]+content="([^"]*)"`)
)

// Client はWebページ取得クライアント（ブラウザは初回利用時に起動）
type Client struct {
	opts Options

	mu      sync.Mutex
	fetcher *htmlfetch.Fetcher
}

// Options はクライアント作成オプション
type Options struct {
	Stealth     bool          // ボット検出回避
	Proxy       string        // プロキシアドレス
	BrowserPath string        // ブラウザパス
	WaitTime    time.Duration // セレクタ待機時間
}

// NewClient は新しいクライアントを作成
func NewClient(opts Options) *Client {
	return &Client{opts: opts}
}

// start はブラウザを起動（起動済みなら何もしない）
func (c *Client) start() (*htmlfetch.Fetcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetcher != nil {
		return c.fetcher, nil
	}

	var fetcherOpts []htmlfetch.Option
	if c.opts.BrowserPath != "" {
		fetcherOpts = append(fetcherOpts, htmlfetch.WithBrowserPath(c.opts.BrowserPath))
	}
	if c.opts.Proxy != "" {
		fetcherOpts = append(fetcherOpts, htmlfetch.WithProxy(c.opts.Proxy))
	}
	fetcherOpts = append(fetcherOpts, htmlfetch.WithStealth(c.opts.Stealth))

	fetcher := htmlfetch.New(fetcherOpts...)
	if err := fetcher.Start(); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	c.fetcher = fetcher
	return fetcher, nil
}

// Close はブラウザを終了
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetcher == nil {
		return nil
	}
	err := c.fetcher.Close()
	c.fetcher = nil
	return err
}

// FetchHTML はURLからHTMLを取得
func (c *Client) FetchHTML(ctx context.Context, url string) (string, error) {
	fetcher, err := c.start()
	if err != nil {
		return "", err
	}

	var fetchOpts []htmlfetch.FetchOption
	fetchOpts = append(fetchOpts, htmlfetch.WithBlocking(htmlfetch.BlockingOptions{Ads: true, Image: true}))
	if c.opts.WaitTime > 0 {
		fetchOpts = append(fetchOpts, htmlfetch.WithSelector("body", c.opts.WaitTime))
	}

	result, err := fetcher.Fetch(ctx, url, fetchOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	return result.HTML, nil
}

// ResolveChannel はチャンネルページ（/@handle など）を取得してチャンネルIDと名前を返す
func (c *Client) ResolveChannel(ctx context.Context, pageURL string) (models.SourceInfo, error) {
	body, err := c.FetchHTML(ctx, pageURL)
	if err != nil {
		return models.SourceInfo{}, err
	}
	return ParseChannelPage(body, pageURL)
}

// ParseChannelPage はHTMLからチャンネルIDとタイトルを抽出
func ParseChannelPage(body, pageURL string) (models.SourceInfo, error) {
	var id string
	if m := canonicalRegexp.FindStringSubmatch(body); m != nil {
		id = m[1]
	} else if m := channelIDRegexp.FindStringSubmatch(body); m != nil {
		id = m[1]
	}
	if id == "" {
		return models.SourceInfo{}, fmt.Errorf("%w: %s", ErrChannelNotFound, pageURL)
	}

	info := models.SourceInfo{
		ID:  id,
		URL: "https://www.youtube.com/channel/" + id,
	}
	if m := ogTitleRegexp.FindStringSubmatch(body); m != nil {
		info.DisplayName = strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return info, nil
}
