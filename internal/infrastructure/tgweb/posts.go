package tgweb

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TelegramWarehouse/internal/domain"
)

// postIterator pages backwards through the preview with ?before=<id>.
// State only advances after a page was fetched, so a throttled Next can
// simply be called again.
type postIterator struct {
	client  *Client
	name    string
	limit   int
	before  int64
	buf     []domain.Post
	yielded int
	done    bool
}

func (it *postIterator) Next(ctx context.Context) (domain.Post, error) {
	if it.limit > 0 && it.yielded >= it.limit {
		return domain.Post{}, io.EOF
	}

	for len(it.buf) == 0 {
		if it.done {
			return domain.Post{}, io.EOF
		}
		if err := it.fetch(ctx); err != nil {
			return domain.Post{}, err
		}
	}

	post := it.buf[0]
	it.buf = it.buf[1:]
	it.yielded++
	return post, nil
}

func (it *postIterator) fetch(ctx context.Context) error {
	doc, err := it.client.fetchDocument(ctx, it.client.pageURL(it.name, it.before))
	if err != nil {
		return err
	}

	posts := parsePosts(doc)
	if len(posts) == 0 {
		it.done = true
		return nil
	}

	// The preview lists posts oldest-first.
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}

	oldest := posts[len(posts)-1].ID
	if it.before > 0 && oldest >= it.before {
		it.done = true
		return nil
	}
	if oldest <= 1 {
		it.done = true
	}

	it.before = oldest
	it.buf = posts
	return nil
}

func parsePosts(doc *goquery.Document) []domain.Post {
	var posts []domain.Post
	doc.Find(messageSelector).Each(func(_ int, s *goquery.Selection) {
		if post, ok := parsePost(s); ok {
			posts = append(posts, post)
		}
	})
	return posts
}

func parsePost(s *goquery.Selection) (domain.Post, bool) {
	ref, _ := s.Attr("data-post")
	idx := strings.LastIndex(ref, "/")
	if idx < 0 {
		return domain.Post{}, false
	}
	id, err := strconv.ParseInt(ref[idx+1:], 10, 64)
	if err != nil || id <= 0 {
		return domain.Post{}, false
	}

	post := domain.Post{
		ID:    id,
		Text:  strings.TrimSpace(s.Find(".tgme_widget_message_text").First().Text()),
		Views: parseCount(s.Find(".tgme_widget_message_views").First().Text()),
		Media: parseMedia(s, id),
	}

	if stamp, ok := s.Find(".tgme_widget_message_date time").First().Attr("datetime"); ok {
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			post.Date = parsed.UTC()
		}
	}

	if replies := s.Find(".tgme_widget_message_replies_count").First(); replies.Length() > 0 {
		n := parseCount(replies.Text())
		post.Replies = &n
	}

	return post, true
}

func parseMedia(s *goquery.Selection, id int64) domain.MediaAttribute {
	if photo := s.Find(".tgme_widget_message_photo_wrap").First(); photo.Length() > 0 {
		style, _ := photo.Attr("style")
		return domain.PhotoMedia{URL: backgroundURL(style)}
	}

	if video := s.Find("video.tgme_widget_message_video").First(); video.Length() > 0 {
		src, _ := video.Attr("src")
		return domain.DocumentMedia{
			FileName: strconv.FormatInt(id, 10) + defaultVideoExt,
			MimeType: "video/mp4",
			URL:      src,
		}
	}

	if voice := s.Find("audio.tgme_widget_message_voice").First(); voice.Length() > 0 {
		src, _ := voice.Attr("src")
		return domain.DocumentMedia{
			FileName: strconv.FormatInt(id, 10) + defaultVoiceExt,
			MimeType: "audio/mpeg",
			URL:      src,
		}
	}

	if doc := s.Find(".tgme_widget_message_document").First(); doc.Length() > 0 {
		return domain.DocumentMedia{
			FileName: strings.TrimSpace(doc.Find(".tgme_widget_message_document_title").First().Text()),
		}
	}

	switch {
	case s.Find(".tgme_widget_message_sticker_wrap").Length() > 0:
		return domain.OtherMedia{Kind: "sticker"}
	case s.Find(".tgme_widget_message_poll").Length() > 0:
		return domain.OtherMedia{Kind: "poll"}
	case s.Find(".tgme_widget_message_link_preview").Length() > 0:
		return domain.OtherMedia{Kind: "webpage"}
	}
	return nil
}

func backgroundURL(style string) string {
	match := backgroundURLExpr.FindStringSubmatch(style)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// parseCount reads counters such as "987", "1.2K" or "3M". Unparsable input yields 0.
func parseCount(text string) int {
	text = strings.TrimSpace(strings.ToUpper(text))
	if text == "" {
		return 0
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(text, "K"):
		mult = 1e3
		text = strings.TrimSuffix(text, "K")
	case strings.HasSuffix(text, "M"):
		mult = 1e6
		text = strings.TrimSuffix(text, "M")
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil || value < 0 {
		return 0
	}
	return int(math.Round(value * mult))
}
