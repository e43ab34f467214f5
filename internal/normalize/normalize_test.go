package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TelegramWarehouse/internal/domain"
)

func TestNormalizeEmptyRecordHasAllKeys(t *testing.T) {
	t.Parallel()

	for _, in := range []map[string]any{nil, {}} {
		rec := Normalize(in)
		for _, key := range RequiredKeys {
			require.Contains(t, rec, key)
		}
		for _, key := range intKeys {
			assert.Equal(t, int64(0), rec[key], key)
		}
		assert.Nil(t, rec["message_text"])
		assert.Nil(t, rec["message_date"])
	}
}

func TestNormalizeRenamesSourceKeys(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"text":      "paracetamol in stock",
		"file_path": "data/raw/images/chemed/12.jpg",
		"date":      "2026-01-16T09:00:00Z",
		"url":       "https://t.me/chemed/12",
	}
	rec := Normalize(in)

	assert.Equal(t, "paracetamol in stock", rec["message_text"])
	assert.Equal(t, "data/raw/images/chemed/12.jpg", rec["media_file"])
	assert.Equal(t, "2026-01-16T09:00:00Z", rec["message_date"])
	assert.Equal(t, "https://t.me/chemed/12", rec["message_url"])
	for old := range renames {
		assert.NotContains(t, rec, old)
	}
	assert.Contains(t, in, "text", "input must not be mutated")
}

func TestNormalizeCoercesIntegers(t *testing.T) {
	t.Parallel()

	rec := Normalize(map[string]any{
		"views":      "abc",
		"forwards":   "12",
		"replies":    float64(3),
		"channel_id": json.Number("42"),
		"message_id": -5,
	})

	assert.Equal(t, int64(0), rec["views"])
	assert.Equal(t, int64(12), rec["forwards"])
	assert.Equal(t, int64(3), rec["replies"])
	assert.Equal(t, int64(42), rec["channel_id"])
	assert.Equal(t, int64(0), rec["message_id"])
}

func TestNormalizeNullsEmptyTimestamps(t *testing.T) {
	t.Parallel()

	rec := Normalize(map[string]any{"date": "", "scraped_at": "  ", "edit_date": ""})
	assert.Nil(t, rec["message_date"])
	assert.Nil(t, rec["scraped_at"])
	assert.Nil(t, rec["edit_date"])
}

func TestNormalizeNullsUnparseableTimestamps(t *testing.T) {
	t.Parallel()

	rec := Normalize(map[string]any{
		"date":       "yesterday",
		"scraped_at": "2026-01-16 09:00:00",
		"edit_date":  42,
	})
	assert.Nil(t, rec["message_date"])
	assert.Equal(t, "2026-01-16 09:00:00", rec["scraped_at"])
	assert.Nil(t, rec["edit_date"])

	row, err := rec.Row()
	require.NoError(t, err)
	assert.Nil(t, row.MessageDate)
	require.NotNil(t, row.ScrapedAt)
}

func TestNormalizeKeepsTimeValues(t *testing.T) {
	t.Parallel()

	date := time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC)
	rec := Normalize(map[string]any{"date": date, "scraped_at": "2026-01-16T09:00:00.123+03:00"})
	assert.Equal(t, date, rec["message_date"])
	assert.Equal(t, "2026-01-16T09:00:00.123+03:00", rec["scraped_at"])
	_, present := rec["edit_date"]
	assert.False(t, present)
}

func TestNormalizeKeepsUnknownKeys(t *testing.T) {
	t.Parallel()

	rec := Normalize(map[string]any{"source": "csv"})
	assert.Equal(t, "csv", rec["source"])
}

func TestRecordRow(t *testing.T) {
	t.Parallel()

	date := time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC)
	path := "data/raw/images/chemed/12.jpg"
	msg := domain.Message{
		MessageID:       12,
		ChannelID:       99,
		ChannelUsername: "chemed",
		ChannelTitle:    "CheMed",
		Date:            &date,
		Text:            "hello",
		Views:           100,
		MediaType:       domain.MediaPhoto,
		FilePath:        &path,
		URL:             "https://t.me/chemed/12",
		ScrapedAt:       date,
	}

	row, err := FromMessage(msg).Row()
	require.NoError(t, err)

	assert.Equal(t, int64(12), row.MessageID)
	assert.Equal(t, int64(99), row.ChannelID)
	assert.Equal(t, int64(100), row.Views)
	require.NotNil(t, row.MediaType)
	assert.Equal(t, "photo", *row.MediaType)
	require.NotNil(t, row.MediaFile)
	assert.Equal(t, path, *row.MediaFile)
	require.NotNil(t, row.MessageDate)
	assert.Equal(t, "2026-01-16T09:00:00Z", *row.MessageDate)
}

func TestRecordRowFromCSVStrings(t *testing.T) {
	t.Parallel()

	rec := Normalize(map[string]any{
		"message_id":       "7",
		"channel_username": "tikvahpharma",
		"views":            "",
		"media_type":       "",
	})

	row, err := rec.Row()
	require.NoError(t, err)
	assert.Equal(t, int64(7), row.MessageID)
	assert.Equal(t, int64(0), row.Views)
	require.NotNil(t, row.ChannelUsername)
	assert.Equal(t, "tikvahpharma", *row.ChannelUsername)
	assert.Nil(t, row.MessageText)
}

func TestRowsDropsUndecodable(t *testing.T) {
	t.Parallel()

	good := Normalize(map[string]any{"message_id": 1})
	bad := Normalize(map[string]any{"message_id": 2, "channel_title": map[string]any{"nested": true}})

	rows, dropped := Rows([]Record{good, bad})
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, dropped)
}
