package ports

import (
	"context"
	"time"

	"TelegramWarehouse/internal/domain"
)

// ChannelClient is the credentialed upstream source of channel posts.
// Implementations signal throttling with *domain.ThrottleError and
// inaccessible channels with domain.ErrChannelInaccessible.
type ChannelClient interface {
	Resolve(ctx context.Context, channel string) (domain.Entity, error)
	Enumerate(ctx context.Context, entity domain.Entity, limit int) (PostIterator, error)
	Download(ctx context.Context, entity domain.Entity, post domain.Post, dir string) (string, error)
}

// PostIterator yields posts newest-first and returns io.EOF when exhausted.
// A throttled Next leaves the iterator positioned so the next call resumes.
type PostIterator interface {
	Next(ctx context.Context) (domain.Post, error)
}

// PartitionWriter persists raw artifacts of a scrape run.
type PartitionWriter interface {
	ImageDir(channel string) string
	RawPartitionDir(date string) string
	WriteChannelMessages(date, channel string, messages []domain.Message) (string, error)
	WriteCombinedExport(date string, rows []map[string]any) (string, error)
	WriteManifest(date string, counts map[string]int, extra map[string]any) (string, error)
}

// PartitionReader exposes a day's stored partitions to downstream stages.
type PartitionReader interface {
	RawPartitionDir(date string) string
	ProcessedPartitionDir(date string) string
	ImageRoot() string
	ListPartition(dir string, limit int) ([]string, error)
	ReadPartitionFile(path string) ([]map[string]any, error)
}

// Warehouse is one acquired warehouse session.
type Warehouse interface {
	LoadMessages(ctx context.Context, rows []domain.WarehouseRow) (domain.LoadResult, error)
	LoadDetections(ctx context.Context, detections []domain.Detection) (domain.LoadResult, error)
	CountRows(ctx context.Context, table string) (int64, error)
	Close() error
}

// WarehouseConnector acquires warehouse sessions, one per stage attempt.
type WarehouseConnector interface {
	Connect(ctx context.Context) (Warehouse, error)
}

// TransformCommand names one sub-command of the external transform job.
type TransformCommand string

const (
	TransformRun  TransformCommand = "run"
	TransformTest TransformCommand = "test"
	TransformDocs TransformCommand = "docs"
)

// CommandResult is the captured outcome of a transform sub-command.
type CommandResult struct {
	Command  TransformCommand
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Succeeded reports a zero exit status.
func (r CommandResult) Succeeded() bool {
	return r.ExitCode == 0
}

// Transformer runs the external transform job.
type Transformer interface {
	Run(ctx context.Context, cmd TransformCommand, selectors ...string) (CommandResult, error)
}

// Detector runs object detection on a stored image.
type Detector interface {
	Detect(ctx context.Context, imagePath string) (domain.DetectionOutcome, error)
}

// Notifier streams run reports to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Archiver mirrors a local directory into object storage.
type Archiver interface {
	MirrorDir(ctx context.Context, dir, prefix string) (int, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
