// Package warehouse loads normalized messages and detections into Postgres.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"TelegramWarehouse/internal/ports"
)

const (
	// MessagesTable holds one row per upstream message, keyed by message_id.
	MessagesTable = "raw.telegram_messages"
	// DetectionsTable holds detector output. It has no natural key.
	DetectionsTable = "raw.image_detections"

	defaultPageSize          = 1000
	defaultDetectionPageSize = 500
	pingTimeout              = 5 * time.Second
)

// ErrPartialLoad reports that at least one page failed to insert. The
// accompanying LoadResult still accounts for the pages that succeeded.
var ErrPartialLoad = errors.New("partial load")

var countableTables = map[string]bool{
	MessagesTable:   true,
	DetectionsTable: true,
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Options tunes page sizes of the loader.
type Options struct {
	PageSize          int
	DetectionPageSize int
}

// Connector opens one warehouse session per stage attempt.
type Connector struct {
	dsn    string
	opts   Options
	logger *slog.Logger
}

var _ ports.WarehouseConnector = (*Connector)(nil)

// NewConnector prepares a connector for the given DSN.
func NewConnector(dsn string, opts Options, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{dsn: dsn, opts: opts, logger: logger.With("component", "warehouse")}
}

// Connect opens and pings a new session. Callers must Close it.
func (c *Connector) Connect(ctx context.Context) (ports.Warehouse, error) {
	if c.dsn == "" {
		return nil, errors.New("warehouse dsn is empty")
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", c.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}

	return NewSession(db, c.opts, c.logger), nil
}

// Session is an open warehouse handle scoped to one stage attempt.
type Session struct {
	db                *sqlx.DB
	pageSize          int
	detectionPageSize int
	logger            *slog.Logger
}

var _ ports.Warehouse = (*Session)(nil)

// NewSession wraps an existing handle. Zero page sizes take the defaults.
func NewSession(db *sqlx.DB, opts Options, logger *slog.Logger) *Session {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.DetectionPageSize <= 0 {
		opts.DetectionPageSize = defaultDetectionPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		db:                db,
		pageSize:          opts.PageSize,
		detectionPageSize: opts.DetectionPageSize,
		logger:            logger,
	}
}

// Close releases the session.
func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CountRows returns the row count of a known warehouse table.
func (s *Session) CountRows(ctx context.Context, table string) (int64, error) {
	if !countableTables[table] {
		return 0, fmt.Errorf("count rows: unknown table %q", table)
	}

	query, args, err := psql.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int64
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// errorCode returns the Postgres SQLSTATE name of err, if any.
func errorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name()
	}
	return ""
}
