package warehouse

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"TelegramWarehouse/internal/domain"
)

var messageColumns = []string{
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

var detectionColumns = []string{
	"message_id",
	"channel_username",
	"message_date",
	"image_path",
	"detected_object",
	"confidence",
	"detected_at",
}

// LoadMessages inserts rows page by page. Rows whose message_id already
// exists are absorbed by the conflict clause and counted as duplicates.
// A failing page does not stop later pages; ErrPartialLoad is returned
// together with the accumulated result when any page failed.
func (s *Session) LoadMessages(ctx context.Context, rows []domain.WarehouseRow) (domain.LoadResult, error) {
	var result domain.LoadResult

	for start := 0; start < len(rows); start += s.pageSize {
		end := min(start+s.pageSize, len(rows))
		page := rows[start:end]

		insert := psql.Insert(MessagesTable).
			Columns(messageColumns...).
			Suffix("ON CONFLICT (message_id) DO NOTHING")
		for _, row := range page {
			insert = insert.Values(
				row.MessageID,
				row.ChannelID,
				row.ChannelUsername,
				row.ChannelTitle,
				row.MessageDate,
				row.MessageText,
				row.Views,
				row.Forwards,
				row.Replies,
				row.MediaType,
				row.MediaFile,
				row.MessageURL,
				row.ScrapedAt,
			)
		}

		inserted, err := s.execPage(ctx, insert)
		result.Attempted += len(page)
		result.Pages++
		if err != nil {
			result.FailedPages++
			result.FailedRows += len(page)
			s.logger.Error("message page failed",
				"page_start", start,
				"rows", len(page),
				"code", errorCode(err),
				"error", err,
			)
			continue
		}

		result.Inserted += inserted
		result.Duplicates += len(page) - inserted
	}

	return finish(result)
}

// LoadDetections appends detection rows page by page. The table has no
// uniqueness constraint, so reloading the same images adds new rows.
func (s *Session) LoadDetections(ctx context.Context, detections []domain.Detection) (domain.LoadResult, error) {
	var result domain.LoadResult

	for start := 0; start < len(detections); start += s.detectionPageSize {
		end := min(start+s.detectionPageSize, len(detections))
		page := detections[start:end]

		insert := psql.Insert(DetectionsTable).Columns(detectionColumns...)
		for _, d := range page {
			detectedAt := d.DetectedAt.UTC()
			insert = insert.Values(
				d.MessageID,
				d.ChannelUsername,
				detectedAt.Format("2006-01-02"),
				d.ImagePath,
				d.DetectedObject,
				d.Confidence,
				detectedAt,
			)
		}

		inserted, err := s.execPage(ctx, insert)
		result.Attempted += len(page)
		result.Pages++
		if err != nil {
			result.FailedPages++
			result.FailedRows += len(page)
			s.logger.Error("detection page failed",
				"page_start", start,
				"rows", len(page),
				"code", errorCode(err),
				"error", err,
			)
			continue
		}
		result.Inserted += inserted
	}

	return finish(result)
}

func (s *Session) execPage(ctx context.Context, insert sq.InsertBuilder) (int, error) {
	query, args, err := insert.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert page: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func finish(result domain.LoadResult) (domain.LoadResult, error) {
	if result.FailedPages > 0 {
		return result, fmt.Errorf("%w: %d of %d pages failed (%d rows)",
			ErrPartialLoad, result.FailedPages, result.Pages, result.FailedRows)
	}
	return result, nil
}
