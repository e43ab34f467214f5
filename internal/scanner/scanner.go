// Package scanner collects channel posts into the raw partition of a day.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/metrics"
	"TelegramWarehouse/internal/ports"
)

const (
	defaultLimit            = 200
	defaultMaxThrottleWaits = 5
	dayLayout               = "2006-01-02"
	messageURLFormat        = "https://t.me/%s/%d"
)

// ErrThrottleBudget is returned when one operation was throttled more
// often in a row than the scraper is willing to wait.
var ErrThrottleBudget = errors.New("throttle wait budget exhausted")

// Options tunes request pacing.
type Options struct {
	Limit            int
	MessageDelay     time.Duration
	ChannelDelay     time.Duration
	MaxThrottleWaits int
}

// Result describes what one run wrote for a day.
type Result struct {
	Day          string
	Counts       map[string]int
	Files        []string
	OutputDir    string
	ManifestPath string
	ExportPath   string
	Total        int
}

// Scraper walks the configured channels one after another.
type Scraper struct {
	client  ports.ChannelClient
	store   ports.PartitionWriter
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Recorder
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// NewScraper wires the client and partition writer.
func NewScraper(client ports.ChannelClient, store ports.PartitionWriter, opts Options, logger *slog.Logger, rec *metrics.Recorder) *Scraper {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.MaxThrottleWaits <= 0 {
		opts.MaxThrottleWaits = defaultMaxThrottleWaits
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if opts.MessageDelay > 0 {
		limit = rate.Every(opts.MessageDelay)
	}

	return &Scraper{
		client:  client,
		store:   store,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: rec,
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// Run scrapes every channel for day and writes the per-channel files, the
// combined export and the manifest. Inaccessible channels count as zero.
func (s *Scraper) Run(ctx context.Context, channels []string, day time.Time) (Result, error) {
	if s.client == nil || s.store == nil {
		return Result{}, errors.New("scraper is not configured")
	}

	date := day.Format(dayLayout)
	result := Result{
		Day:       date,
		Counts:    make(map[string]int, len(channels)),
		OutputDir: s.store.RawPartitionDir(date),
	}

	var rows []map[string]any
	for i, channel := range channels {
		if i > 0 && s.opts.ChannelDelay > 0 {
			if err := s.sleep(ctx, s.opts.ChannelDelay); err != nil {
				return Result{}, err
			}
		}

		messages, err := s.scrapeChannel(ctx, channel)
		if err != nil {
			return Result{}, fmt.Errorf("scrape %s: %w", channel, err)
		}

		result.Counts[channel] = len(messages)
		result.Total += len(messages)
		s.metrics.Scraped(channel, len(messages))
		if len(messages) == 0 {
			continue
		}

		path, err := s.store.WriteChannelMessages(date, channel, messages)
		if err != nil {
			return Result{}, fmt.Errorf("write %s: %w", channel, err)
		}
		result.Files = append(result.Files, path)
		for _, m := range messages {
			rows = append(rows, m.Row())
		}
		s.logger.Info("channel scraped", "channel", channel, "messages", len(messages), "file", path)
	}

	exportPath, err := s.store.WriteCombinedExport(date, rows)
	if err != nil {
		return Result{}, fmt.Errorf("write export: %w", err)
	}
	result.ExportPath = exportPath

	manifestPath, err := s.store.WriteManifest(date, result.Counts, map[string]any{
		"channels_requested": len(channels),
		"limit":              s.opts.Limit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	s.logger.Info("scrape finished", "day", date, "channels", len(channels), "files", len(result.Files), "total", result.Total)
	return result, nil
}

func (s *Scraper) scrapeChannel(ctx context.Context, channel string) ([]domain.Message, error) {
	log := s.logger.With("channel", channel)

	entity, err := throttled(ctx, s, "resolve", func() (domain.Entity, error) {
		return s.client.Resolve(ctx, channel)
	})
	switch {
	case errors.Is(err, domain.ErrChannelInaccessible):
		log.Warn("channel not accessible, skipping", "error", err)
		return nil, nil
	case errors.Is(err, ErrThrottleBudget):
		log.Error("channel aborted", "error", err)
		return nil, nil
	case err != nil:
		return nil, err
	}

	iter, err := throttled(ctx, s, "enumerate", func() (ports.PostIterator, error) {
		return s.client.Enumerate(ctx, entity, s.opts.Limit)
	})
	switch {
	case errors.Is(err, domain.ErrChannelInaccessible), errors.Is(err, ErrThrottleBudget):
		log.Warn("channel enumeration refused", "error", err)
		return nil, nil
	case err != nil:
		return nil, err
	}

	var messages []domain.Message
	for len(messages) < s.opts.Limit {
		post, err := throttled(ctx, s, "next", func() (domain.Post, error) {
			return iter.Next(ctx)
		})
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, domain.ErrChannelInaccessible) || errors.Is(err, ErrThrottleBudget) {
			log.Warn("enumeration stopped early", "collected", len(messages), "error", err)
			break
		}
		if err != nil {
			return nil, err
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		messages = append(messages, s.toMessage(ctx, log, channel, entity, post))
	}

	return messages, nil
}

func (s *Scraper) toMessage(ctx context.Context, log *slog.Logger, channel string, entity domain.Entity, post domain.Post) domain.Message {
	username := entity.Username
	if username == "" {
		username = channel
	}
	title := entity.Title
	if title == "" {
		title = channel
	}
	replies := 0
	if post.Replies != nil {
		replies = *post.Replies
	}

	msg := domain.Message{
		MessageID:       post.ID,
		ChannelID:       entity.ID,
		ChannelUsername: username,
		ChannelTitle:    title,
		Text:            post.Text,
		Views:           post.Views,
		Forwards:        post.Forwards,
		Replies:         replies,
		EditDate:        post.EditDate,
		MediaType:       domain.ClassifyMedia(post.Media),
		ScrapedAt:       s.now().UTC(),
	}
	// Public links exist only for channels that expose a username.
	if entity.Username != "" {
		msg.URL = fmt.Sprintf(messageURLFormat, entity.Username, post.ID)
	}
	if !post.Date.IsZero() {
		date := post.Date
		msg.Date = &date
	}

	if msg.MediaType.HasMedia() {
		path, err := throttled(ctx, s, "download", func() (string, error) {
			return s.client.Download(ctx, entity, post, s.store.ImageDir(channel))
		})
		if err != nil {
			s.metrics.MediaFailed()
			log.Warn("media download failed", "message_id", post.ID, "media_type", msg.MediaType, "error", err)
		} else {
			msg.FilePath = &path
		}
	}

	return msg
}

// throttled calls fn and, while it reports a throttling signal, sleeps the
// requested wait and calls it again. The whole scraper is suspended.
func throttled[T any](ctx context.Context, s *Scraper, op string, fn func() (T, error)) (T, error) {
	for waits := 0; ; waits++ {
		v, err := fn()
		throttle, ok := domain.AsThrottle(err)
		if !ok {
			return v, err
		}

		var zero T
		if waits >= s.opts.MaxThrottleWaits {
			return zero, fmt.Errorf("%s after %d waits: %w", op, waits, ErrThrottleBudget)
		}

		s.logger.Warn("upstream throttled, sleeping", "op", op, "wait", throttle.Wait)
		s.metrics.Throttled(throttle.Wait)
		if err := s.sleep(ctx, throttle.Wait); err != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
