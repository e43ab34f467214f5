package domain

import (
	"encoding/json"
	"time"
)

// Entity is a resolved upstream channel.
type Entity struct {
	ID       int64
	Username string
	Title    string
}

// Post is a single upstream channel post as returned by the source client.
type Post struct {
	ID       int64
	Date     time.Time
	EditDate *time.Time
	Text     string
	Views    int
	Forwards int
	// Replies is nil when the upstream did not expose a reply counter.
	Replies *int
	Media   MediaAttribute
}

// Message is the canonical record persisted to the raw partition.
type Message struct {
	MessageID       int64      `json:"message_id"`
	ChannelID       int64      `json:"channel_id"`
	ChannelUsername string     `json:"channel_username"`
	ChannelTitle    string     `json:"channel_title"`
	Date            *time.Time `json:"date"`
	Text            string     `json:"text"`
	Views           int        `json:"views"`
	Forwards        int        `json:"forwards"`
	Replies         int        `json:"replies"`
	EditDate        *time.Time `json:"edit_date"`
	MediaType       MediaType  `json:"media_type"`
	FilePath        *string    `json:"file_path"`
	URL             string     `json:"url"`
	ScrapedAt       time.Time  `json:"scraped_at"`
}

// Row flattens the message into the key set used by the combined export.
// Absent optional values are nil so the export writes empty cells.
func (m Message) Row() map[string]any {
	row := map[string]any{
		"message_id":       m.MessageID,
		"channel_id":       m.ChannelID,
		"channel_username": m.ChannelUsername,
		"channel_title":    m.ChannelTitle,
		"date":             formatTime(m.Date),
		"text":             m.Text,
		"views":            m.Views,
		"forwards":         m.Forwards,
		"replies":          m.Replies,
		"edit_date":        formatTime(m.EditDate),
		"media_type":       m.MediaType.Nullable(),
		"file_path":        nil,
		"url":              m.URL,
		"scraped_at":       m.ScrapedAt.Format(time.RFC3339Nano),
	}
	if m.FilePath != nil {
		row["file_path"] = *m.FilePath
	}
	return row
}

func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// WarehouseRow is a normalized record ready for the raw messages table.
type WarehouseRow struct {
	MessageID       int64   `mapstructure:"message_id"`
	ChannelID       int64   `mapstructure:"channel_id"`
	ChannelUsername *string `mapstructure:"channel_username"`
	ChannelTitle    *string `mapstructure:"channel_title"`
	MessageDate     *string `mapstructure:"message_date"`
	MessageText     *string `mapstructure:"message_text"`
	Views           int64   `mapstructure:"views"`
	Forwards        int64   `mapstructure:"forwards"`
	Replies         int64   `mapstructure:"replies"`
	MediaType       *string `mapstructure:"media_type"`
	MediaFile       *string `mapstructure:"media_file"`
	MessageURL      *string `mapstructure:"message_url"`
	ScrapedAt       *string `mapstructure:"scraped_at"`
}

// Manifest describes one raw partition.
type Manifest struct {
	Date          string
	RunUTC        time.Time
	Channels      map[string]int
	TotalMessages int
	Extra         map[string]any
}

// MarshalJSON merges extra metadata into the top-level object.
func (m Manifest) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		payload[k] = v
	}
	channels := m.Channels
	if channels == nil {
		channels = map[string]int{}
	}
	payload["date"] = m.Date
	payload["run_utc"] = m.RunUTC.UTC().Format(time.RFC3339Nano)
	payload["channels"] = channels
	payload["total_messages"] = m.TotalMessages
	return json.Marshal(payload)
}
