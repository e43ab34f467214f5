package warehouse

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TelegramWarehouse/internal/domain"
)

var insertMessages = regexp.QuoteMeta("INSERT INTO raw.telegram_messages") + ".*" +
	regexp.QuoteMeta("ON CONFLICT (message_id) DO NOTHING")

func newMockSession(t *testing.T, opts Options) (*Session, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSession(sqlx.NewDb(db, "postgres"), opts, nil), mock
}

func sampleRows(ids ...int64) []domain.WarehouseRow {
	user := "chemed"
	rows := make([]domain.WarehouseRow, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, domain.WarehouseRow{MessageID: id, ChannelUsername: &user, Views: 3})
	}
	return rows
}

func TestLoadMessagesCountsDuplicatesPerPage(t *testing.T) {
	t.Parallel()

	s, mock := newMockSession(t, Options{PageSize: 2})
	mock.ExpectExec(insertMessages).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertMessages).WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := s.LoadMessages(context.Background(), sampleRows(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, domain.LoadResult{Attempted: 3, Inserted: 2, Duplicates: 1, Pages: 2}, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMessagesTwiceInsertsOnce(t *testing.T) {
	t.Parallel()

	s, mock := newMockSession(t, Options{})
	mock.ExpectExec(insertMessages).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(insertMessages).WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sampleRows(10, 11, 12)
	first, err := s.LoadMessages(context.Background(), rows)
	require.NoError(t, err)
	second, err := s.LoadMessages(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, 3, first.Inserted)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Duplicates)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMessagesContinuesAfterFailedPage(t *testing.T) {
	t.Parallel()

	s, mock := newMockSession(t, Options{PageSize: 2})
	mock.ExpectExec(insertMessages).WillReturnError(&pq.Error{Code: "22007", Message: "invalid datetime"})
	mock.ExpectExec(insertMessages).WillReturnResult(sqlmock.NewResult(0, 2))

	result, err := s.LoadMessages(context.Background(), sampleRows(1, 2, 3, 4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartialLoad))
	assert.Equal(t, 4, result.Attempted)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.FailedPages)
	assert.Equal(t, 2, result.FailedRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMessagesEmpty(t *testing.T) {
	t.Parallel()

	s, mock := newMockSession(t, Options{})
	result, err := s.LoadMessages(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadDetectionsPaged(t *testing.T) {
	t.Parallel()

	s, mock := newMockSession(t, Options{DetectionPageSize: 1})
	at := time.Date(2026, 1, 16, 23, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw.image_detections")).
		WithArgs(int64(7), "chemed", "2026-01-16", "img/7.jpg", "bottle", 0.91, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw.image_detections")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := s.LoadDetections(context.Background(), []domain.Detection{
		{MessageID: 7, ChannelUsername: "chemed", ImagePath: "img/7.jpg", DetectedObject: "bottle", Confidence: 0.91, DetectedAt: at},
		{MessageID: 7, ChannelUsername: "chemed", ImagePath: "img/7.jpg", DetectedObject: "person", Confidence: 0.4, DetectedAt: at},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 2, result.Pages)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRows(t *testing.T) {
	t.Parallel()

	s, mock := newMockSession(t, Options{})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM raw.telegram_messages")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountRows(context.Background(), MessagesTable)
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	_, err = s.CountRows(context.Background(), "pg_catalog.pg_user")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unique_violation", errorCode(&pq.Error{Code: "23505"}))
	assert.Empty(t, errorCode(errors.New("boom")))
}
