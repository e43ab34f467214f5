// Package datalake writes and reads the date-partitioned raw and processed
// artifacts of a scrape run. It has no warehouse or network dependency.
package datalake

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/ports"
)

const (
	manifestName    = "_manifest.json"
	maxFilenameLen  = 200
	invalidFilename = `<>:"/\|?*`
	dirPerm         = 0o755
	filePerm        = 0o644
)

// Store roots all partitions under one base directory.
type Store struct {
	base   string
	entity string
	now    func() time.Time
}

var (
	_ ports.PartitionWriter = (*Store)(nil)
	_ ports.PartitionReader = (*Store)(nil)
)

// NewStore builds a store for the given base path and entity name.
func NewStore(base, entity string) *Store {
	if entity == "" {
		entity = "telegram_messages"
	}
	return &Store{base: base, entity: entity, now: time.Now}
}

// Base returns the store root.
func (s *Store) Base() string {
	return s.base
}

// RawPartitionDir returns <base>/raw/<entity>/<date>.
func (s *Store) RawPartitionDir(date string) string {
	return filepath.Join(s.base, "raw", s.entity, date)
}

// ProcessedPartitionDir returns <base>/processed/<entity>/<date>.
func (s *Store) ProcessedPartitionDir(date string) string {
	return filepath.Join(s.base, "processed", s.entity, date)
}

// ImageRoot returns the directory holding per-channel media folders.
func (s *Store) ImageRoot() string {
	return filepath.Join(s.base, "raw", "images")
}

// ImageDir returns the media directory of one channel.
func (s *Store) ImageDir(channel string) string {
	return filepath.Join(s.ImageRoot(), SanitizeFilename(channel))
}

// WriteChannelMessages writes one channel's messages as an indented JSON array.
func (s *Store) WriteChannelMessages(date, channel string, messages []domain.Message) (string, error) {
	dir := s.RawPartitionDir(date)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create raw partition: %w", err)
	}

	if messages == nil {
		messages = []domain.Message{}
	}
	payload, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal messages: %w", err)
	}

	path := filepath.Join(dir, SanitizeFilename(channel)+".json")
	if err := os.WriteFile(path, payload, filePerm); err != nil {
		return "", fmt.Errorf("write channel file: %w", err)
	}
	return path, nil
}

// WriteManifest overwrites the partition manifest for date.
func (s *Store) WriteManifest(date string, counts map[string]int, extra map[string]any) (string, error) {
	dir := s.RawPartitionDir(date)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create raw partition: %w", err)
	}

	channels := make(map[string]int, len(counts))
	total := 0
	for channel, n := range counts {
		channels[channel] = n
		total += n
	}

	manifest := domain.Manifest{
		Date:          date,
		RunUTC:        s.now().UTC(),
		Channels:      channels,
		TotalMessages: total,
		Extra:         extra,
	}

	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	path := filepath.Join(dir, manifestName)
	if err := os.WriteFile(path, payload, filePerm); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// ReadManifest loads a partition manifest as a generic map.
func (s *Store) ReadManifest(date string) (map[string]any, error) {
	raw, err := os.ReadFile(filepath.Join(s.RawPartitionDir(date), manifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return out, nil
}

// SanitizeFilename replaces path-hostile characters and caps the length.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidFilename, r) {
			return '_'
		}
		return r
	}, name)
	if len(cleaned) > maxFilenameLen {
		cleaned = cleaned[:maxFilenameLen]
	}
	return cleaned
}
