// Package tgweb reads public channels through the t.me/s web preview.
package tgweb

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/ports"
)

const (
	defaultBaseURL      = "https://t.me"
	defaultRetryAfter   = 30 * time.Second
	defaultHTTPTimeout  = 20 * time.Second
	userAgent           = "TelegramWarehouse/1.0"
	downloadFilePerm    = 0o644
	downloadDirPerm     = 0o755
	defaultDocumentExt  = ".bin"
	defaultPhotoExt     = ".jpg"
	defaultVideoExt     = ".mp4"
	defaultVoiceExt     = ".mp3"
	messageSelector     = ".tgme_widget_message[data-post]"
	channelInfoSelector = ".tgme_channel_info"
)

var backgroundURLExpr = regexp.MustCompile(`background-image:\s*url\(['"]?([^'")]+)['"]?\)`)

// Client implements ports.ChannelClient over public preview pages.
type Client struct {
	client  *http.Client
	baseURL string
}

var _ ports.ChannelClient = (*Client)(nil)

// NewClient wires an HTTP client; an empty baseURL means https://t.me.
func NewClient(client *http.Client, baseURL string) *Client {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Resolve fetches the channel landing page and extracts its identity.
func (c *Client) Resolve(ctx context.Context, channel string) (domain.Entity, error) {
	name := channelName(channel)
	if name == "" {
		return domain.Entity{}, fmt.Errorf("resolve %q: %w", channel, domain.ErrChannelInaccessible)
	}

	doc, err := c.fetchDocument(ctx, c.pageURL(name, 0))
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolve %s: %w", channel, err)
	}

	info := doc.Find(channelInfoSelector).First()
	if info.Length() == 0 && doc.Find(messageSelector).Length() == 0 {
		return domain.Entity{}, fmt.Errorf("resolve %s: %w", channel, domain.ErrChannelInaccessible)
	}

	username := strings.TrimPrefix(strings.TrimSpace(info.Find(".tgme_channel_info_header_username").First().Text()), "@")
	if username == "" {
		username = name
	}

	return domain.Entity{
		ID:       ChannelID(username),
		Username: username,
		Title:    strings.TrimSpace(info.Find(".tgme_channel_info_header_title").First().Text()),
	}, nil
}

// Enumerate returns a lazy newest-first iterator over at most limit posts.
func (c *Client) Enumerate(_ context.Context, entity domain.Entity, limit int) (ports.PostIterator, error) {
	if entity.Username == "" {
		return nil, errors.New("enumerate: entity has no username")
	}
	return &postIterator{client: c, name: entity.Username, limit: limit}, nil
}

// Download stores the post's media as <dir>/<post id><ext>.
func (c *Client) Download(ctx context.Context, _ domain.Entity, post domain.Post, dir string) (string, error) {
	mediaURL, ext := mediaSource(post)
	if mediaURL == "" {
		return "", domain.ErrMediaUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request media: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		if errors.Is(err, domain.ErrChannelInaccessible) {
			return "", fmt.Errorf("media %d: %w", post.ID, domain.ErrMediaUnavailable)
		}
		return "", err
	}

	if err := os.MkdirAll(dir, downloadDirPerm); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	path := filepath.Join(dir, strconv.FormatInt(post.ID, 10)+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, downloadFilePerm)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close media file: %w", err)
	}
	return path, nil
}

// ChannelID derives a stable positive identifier from a username, since the
// preview pages do not expose numeric channel ids.
func ChannelID(username string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(username)))
	return int64(h.Sum64() & math.MaxInt64)
}

func (c *Client) pageURL(name string, before int64) string {
	u := fmt.Sprintf("%s/s/%s", c.baseURL, url.PathEscape(name))
	if before > 0 {
		u += "?before=" + strconv.FormatInt(before, 10)
	}
	return u
}

func (c *Client) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.ThrottleError{Wait: retryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		return domain.ErrChannelInaccessible
	default:
		return fmt.Errorf("telegram returned %s", resp.Status)
	}
}

func retryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}

func channelName(channel string) string {
	name := strings.TrimSpace(channel)
	name = strings.TrimPrefix(name, "https://t.me/")
	name = strings.TrimPrefix(name, "@")
	return strings.Trim(name, "/")
}

func mediaSource(post domain.Post) (string, string) {
	switch m := post.Media.(type) {
	case domain.PhotoMedia:
		return m.URL, defaultPhotoExt
	case domain.DocumentMedia:
		ext := strings.ToLower(filepath.Ext(m.FileName))
		if ext == "" {
			ext = defaultDocumentExt
		}
		return m.URL, ext
	default:
		return "", ""
	}
}
