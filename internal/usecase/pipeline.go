package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/metrics"
	"TelegramWarehouse/internal/ports"
	"TelegramWarehouse/internal/scanner"
)

const dayLayout = "2006-01-02"

// ChannelScraper collects one day of channel posts into the raw partition.
type ChannelScraper interface {
	Run(ctx context.Context, channels []string, day time.Time) (scanner.Result, error)
}

// PipelineOptions tunes stage behaviour.
type PipelineOptions struct {
	Channels        []string
	MaxFilesPerLoad int
	DetectionModel  string
	// WarehouseTables are counted during Publish.
	WarehouseTables []string
	// RetryDelayScale multiplies every retry delay; 0 keeps the defaults.
	RetryDelayScale float64
	// Specs replaces the built-in policy of the stages it names.
	Specs map[Stage]StageSpec
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Scraper     ChannelScraper
	Partitions  ports.PartitionReader
	Warehouse   ports.WarehouseConnector
	Transformer ports.Transformer
	Detector    ports.Detector
	Archiver    ports.Archiver
	Notifier    ports.Notifier
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
	// Render formats the run report for the notifier.
	Render  func(*RunReport) string
	Options PipelineOptions
}

// Pipeline runs Scrape, Load, Transform, Enrich and Publish strictly in
// sequence, handing each stage the summary of its predecessor.
type Pipeline struct {
	scraper     ChannelScraper
	partitions  ports.PartitionReader
	warehouse   ports.WarehouseConnector
	transformer ports.Transformer
	detector    ports.Detector
	archiver    ports.Archiver
	notifier    ports.Notifier
	metrics     *metrics.Recorder
	logger      *slog.Logger
	render      func(*RunReport) string
	opts        PipelineOptions

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	render := deps.Render
	if render == nil {
		render = plainRender
	}
	return &Pipeline{
		scraper:     deps.Scraper,
		partitions:  deps.Partitions,
		warehouse:   deps.Warehouse,
		transformer: deps.Transformer,
		detector:    deps.Detector,
		archiver:    deps.Archiver,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logger:      logger,
		render:      render,
		opts:        deps.Options,
		sleep:       sleepContext,
		now:         time.Now,
		newID:       func() string { return ulid.Make().String() },
	}
}

func (p *Pipeline) spec(stage Stage) StageSpec {
	spec, ok := p.opts.Specs[stage]
	if !ok {
		spec = DefaultSpec(stage)
	}
	return scaleDelay(spec, p.opts.RetryDelayScale)
}

// Run executes the stages of job for day. The returned error is non-nil
// only when a fatal stage exhausted its retries; the report is always set.
func (p *Pipeline) Run(ctx context.Context, job Job, day time.Time) (*RunReport, error) {
	report := &RunReport{
		RunID: p.newID(),
		Job:   job,
		Day:   day.Format(dayLayout),
	}
	for _, stage := range job.Stages() {
		report.Stages = append(report.Stages, RunState{Stage: stage, Status: domain.StagePending})
	}

	log := p.logger.With("run_id", report.RunID, "job", string(job), "day", report.Day)
	log.Info("pipeline started", "stages", len(report.Stages))

	if !job.has(StageScrape) {
		report.Scrape = &ScrapeSummary{Status: domain.SummarySkipped, FileList: []string{}}
	}

	for _, stage := range job.Stages() {
		if err := p.runStage(ctx, log, report, stage, day); err != nil {
			report.Err = err
			p.skipPending(report)
			log.Error("pipeline halted", "stage", string(stage), "error", err)
			break
		}
	}

	p.metrics.RunFinished(string(job), report.Status(), p.now())
	if report.Err != nil {
		return report, report.Err
	}
	log.Info("pipeline finished", "status", report.Status())
	return report, nil
}

func (p *Pipeline) runStage(ctx context.Context, log *slog.Logger, report *RunReport, stage Stage, day time.Time) error {
	var err error
	switch stage {
	case StageScrape:
		report.Scrape, err = execute(ctx, p, log, report, stage,
			func(ctx context.Context) (ScrapeSummary, error) {
				return p.scrape(ctx, day)
			},
			func(err error) ScrapeSummary {
				return ScrapeSummary{Status: domain.SummaryFailed, FileList: []string{}, Error: err.Error()}
			})

	case StageLoad:
		report.Load, err = execute(ctx, p, log, report, stage,
			func(ctx context.Context) (LoadSummary, error) {
				return p.load(ctx, log, *report.Scrape)
			},
			func(err error) LoadSummary {
				return LoadSummary{Status: domain.SummaryFailed, Error: err.Error()}
			})

	case StageTransform:
		loaded := 0
		if report.Load != nil {
			loaded = report.Load.LoadedRecords
		}
		report.Transform, err = execute(ctx, p, log, report, stage,
			func(ctx context.Context) (TransformSummary, error) {
				return p.transform(ctx, log, loaded)
			},
			func(err error) TransformSummary {
				return TransformSummary{Status: domain.SummaryFailed, LoadedRecords: loaded, Error: err.Error()}
			})

	case StageEnrich:
		report.Enrich, err = execute(ctx, p, log, report, stage,
			func(ctx context.Context) (EnrichSummary, error) {
				return p.enrich(ctx, log)
			},
			func(err error) EnrichSummary {
				return EnrichSummary{Status: domain.SummaryFailed, CategoryCounts: map[string]int{}, Error: err.Error()}
			})

	case StagePublish:
		report.Publish, err = execute(ctx, p, log, report, stage,
			func(ctx context.Context) (PublishSummary, error) {
				return p.publish(ctx, log, report)
			},
			func(error) PublishSummary {
				return PublishSummary{
					APIStatus:      apiUnavailable,
					Endpoints:      []string{},
					CategoryCounts: map[string]int{},
					EnrichStatus:   domain.SummarySkipped,
					StageStatuses:  map[Stage]string{},
				}
			})
	}
	return err
}

// execute runs fn under the stage policy. A fatal stage that fails returns
// the error; any other stage records the summary built by failed.
func execute[T stageSummary](ctx context.Context, p *Pipeline, log *slog.Logger, report *RunReport, stage Stage,
	fn func(context.Context) (T, error), failed func(error) T,
) (*T, error) {
	summary, err := withRetry(ctx, p, log, report, stage, fn)
	if err != nil {
		if p.spec(stage).Fatal {
			return nil, err
		}
		summary = failed(err)
	}
	return &summary, nil
}

type stageSummary interface {
	summaryStatus() domain.SummaryStatus
}

func (s ScrapeSummary) summaryStatus() domain.SummaryStatus    { return s.Status }
func (s LoadSummary) summaryStatus() domain.SummaryStatus      { return s.Status }
func (s TransformSummary) summaryStatus() domain.SummaryStatus { return s.Status }
func (s EnrichSummary) summaryStatus() domain.SummaryStatus    { return s.Status }
func (s PublishSummary) summaryStatus() domain.SummaryStatus   { return domain.SummarySuccess }

// withRetry executes fn under the stage's retry policy and records the
// stage state. A retry re-executes the whole stage.
func withRetry[T stageSummary](ctx context.Context, p *Pipeline, log *slog.Logger, report *RunReport, stage Stage, fn func(context.Context) (T, error)) (T, error) {
	spec := p.spec(stage)
	state := RunState{Stage: stage, Status: domain.StageRunning, StartedAt: p.now()}
	report.setState(state)
	log = log.With("stage", string(stage))

	var (
		out T
		err error
	)
	for attempt := 1; attempt <= spec.Attempts(); attempt++ {
		state.Attempts = attempt
		out, err = fn(ctx)
		if err == nil {
			break
		}
		state.LastError = err.Error()
		log.Warn("stage attempt failed", "attempt", attempt, "max_attempts", spec.Attempts(), "error", err)
		if attempt == spec.Attempts() {
			break
		}
		if sleepErr := p.sleep(ctx, spec.Delay); sleepErr != nil {
			err = sleepErr
			state.LastError = err.Error()
			break
		}
	}

	state.FinishedAt = p.now()
	if err != nil {
		state.Status = domain.StageFailed
	} else {
		state.Status = stageStatusFor(out.summaryStatus())
	}
	report.setState(state)
	p.metrics.StageFinished(string(stage), string(state.Status), state.Attempts, state.Elapsed())

	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", stage, err)
	}
	log.Info("stage finished", "status", string(state.Status), "attempts", state.Attempts, "elapsed", state.Elapsed())
	return out, nil
}

func (p *Pipeline) skipPending(report *RunReport) {
	for i := range report.Stages {
		if report.Stages[i].Status == domain.StagePending {
			report.Stages[i].Status = domain.StageSkipped
		}
	}
}

func (p *Pipeline) scrape(ctx context.Context, day time.Time) (ScrapeSummary, error) {
	if p.scraper == nil {
		return ScrapeSummary{}, errors.New("scraper is not configured")
	}
	res, err := p.scraper.Run(ctx, p.opts.Channels, day)
	if err != nil {
		return ScrapeSummary{}, err
	}

	list := res.Files
	if len(list) > maxFileList {
		list = list[:maxFileList]
	}
	return ScrapeSummary{
		Status:        domain.SummarySuccess,
		ScrapedFiles:  len(res.Files),
		OutputDir:     res.OutputDir,
		FileList:      append([]string{}, list...),
		TotalMessages: res.Total,
		Channels:      res.Counts,
		ManifestPath:  res.ManifestPath,
		ExportPath:    res.ExportPath,
	}, nil
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
