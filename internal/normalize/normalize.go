// Package normalize maps loosely shaped input records onto the warehouse
// message schema. Normalize never fails; the worst case is an all-default record.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"TelegramWarehouse/internal/domain"
)

// Record is a normalized message keyed by warehouse column name.
type Record map[string]any

var renames = map[string]string{
	"text":      "message_text",
	"file_path": "media_file",
	"date":      "message_date",
	"url":       "message_url",
}

// RequiredKeys lists the columns every normalized record carries.
var RequiredKeys = []string{
	"message_id",
	"channel_id",
	"channel_username",
	"channel_title",
	"message_date",
	"message_text",
	"views",
	"forwards",
	"replies",
	"media_type",
	"media_file",
	"message_url",
	"scraped_at",
}

var intKeys = []string{"views", "forwards", "replies", "channel_id", "message_id"}

var timestampKeys = []string{"message_date", "scraped_at", "edit_date"}

// timestampLayouts are the textual forms accepted for timestamp columns.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Normalize returns a copy of in with renamed keys, all required keys present,
// integer columns coerced and unparseable timestamps nulled. The input is not modified.
func Normalize(in map[string]any) Record {
	out := make(Record, len(in)+len(RequiredKeys))
	for k, v := range in {
		out[k] = v
	}

	for from, to := range renames {
		if v, ok := out[from]; ok {
			out[to] = v
			delete(out, from)
		}
	}

	for _, key := range RequiredKeys {
		if _, ok := out[key]; !ok {
			out[key] = nil
		}
	}

	for _, key := range intKeys {
		out[key] = toInt(out[key])
	}

	for _, key := range timestampKeys {
		if v, ok := out[key]; ok {
			out[key] = timestamp(v)
		}
	}

	return out
}

// FromMessage builds a normalized record from a scraped message.
func FromMessage(m domain.Message) Record {
	return Normalize(m.Row())
}

// Row decodes the record into the typed warehouse shape.
func (r Record) Row() (domain.WarehouseRow, error) {
	var row domain.WarehouseRow
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &row,
		WeaklyTypedInput: true,
		DecodeHook:       stringifyHook,
	})
	if err != nil {
		return domain.WarehouseRow{}, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(r)); err != nil {
		return domain.WarehouseRow{}, fmt.Errorf("decode record: %w", err)
	}
	return row, nil
}

// Rows decodes a batch, dropping records that cannot be decoded.
func Rows(records []Record) ([]domain.WarehouseRow, int) {
	rows := make([]domain.WarehouseRow, 0, len(records))
	dropped := 0
	for _, rec := range records {
		row, err := rec.Row()
		if err != nil {
			dropped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, dropped
}

// stringifyHook renders time values as RFC3339 so they land in string columns.
func stringifyHook(_ reflect.Type, _ reflect.Type, data any) (any, error) {
	if t, ok := data.(time.Time); ok {
		return t.Format(time.RFC3339Nano), nil
	}
	return data, nil
}

// timestamp keeps time values and parseable strings; anything else is nulled
// so a single bad value cannot reject a whole insert page.
func timestamp(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val
	case *time.Time:
		if val == nil {
			return nil
		}
		return *val
	case string:
		trimmed := strings.TrimSpace(val)
		for _, layout := range timestampLayouts {
			if _, err := time.Parse(layout, trimmed); err == nil {
				return trimmed
			}
		}
	}
	return nil
}

func toInt(v any) int64 {
	var n int64
	switch val := v.(type) {
	case nil:
		return 0
	case int:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case uint:
		n = clampUint(uint64(val))
	case uint32:
		n = int64(val)
	case uint64:
		n = clampUint(val)
	case float32:
		n = floatToInt(float64(val))
	case float64:
		n = floatToInt(val)
	case json.Number:
		if parsed, err := val.Int64(); err == nil {
			n = parsed
		} else if f, err := val.Float64(); err == nil {
			n = floatToInt(f)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0
		}
		n = parsed
	case bool:
		if val {
			n = 1
		}
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

func floatToInt(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

func clampUint(u uint64) int64 {
	if u > math.MaxInt64 {
		return 0
	}
	return int64(u)
}
