package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"TelegramWarehouse/internal/domain"
)

const (
	apiReady       = "ready"
	apiUnavailable = "unavailable"
)

// publish aggregates the run and reports it. Archive and notification
// failures are recorded in the summary and never fail the stage.
func (p *Pipeline) publish(ctx context.Context, log *slog.Logger, report *RunReport) (PublishSummary, error) {
	summary := PublishSummary{
		APIStatus:      apiReady,
		Endpoints:      append([]string(nil), Endpoints...),
		CategoryCounts: map[string]int{},
		EnrichStatus:   domain.SummarySkipped,
		StageStatuses:  map[Stage]string{},
	}

	if e := report.Enrich; e != nil {
		summary.TotalProcessed = e.DetectedImages
		summary.EnrichStatus = e.Status
		for label, n := range e.CategoryCounts {
			summary.CategoryCounts[label] = n
		}
	}
	if l := report.Load; l != nil {
		summary.LoadedRecords = l.LoadedRecords
	}
	if t := report.Transform; t != nil {
		summary.TestsPassed = t.TestsPassed
	}
	for _, state := range report.Stages {
		if state.Stage != StagePublish {
			summary.StageStatuses[state.Stage] = string(state.Status)
		}
	}

	summary.WarehouseRows = p.countRows(ctx, log)
	summary.Archived, summary.ArchiveError = p.archive(ctx, log, report.Day)

	report.Publish = &summary
	if p.notifier != nil {
		if err := p.notifier.PublishDigest(ctx, p.render(report)); err != nil {
			log.Warn("run report not delivered", "error", err)
			summary.NotifyError = err.Error()
		} else {
			summary.Notified = true
		}
	}

	log.Info("pipeline published",
		"total_processed", summary.TotalProcessed,
		"loaded_records", summary.LoadedRecords,
		"archived", summary.Archived,
		"notified", summary.Notified)
	return summary, nil
}

func (p *Pipeline) countRows(ctx context.Context, log *slog.Logger) map[string]int64 {
	if p.warehouse == nil || len(p.opts.WarehouseTables) == 0 {
		return nil
	}
	wh, err := p.warehouse.Connect(ctx)
	if err != nil {
		log.Warn("warehouse unavailable for row counts", "error", err)
		return nil
	}
	defer closeWarehouse(log, wh)

	counts := make(map[string]int64, len(p.opts.WarehouseTables))
	for _, table := range p.opts.WarehouseTables {
		n, err := wh.CountRows(ctx, table)
		if err != nil {
			log.Warn("count rows", "table", table, "error", err)
			continue
		}
		counts[table] = n
	}
	return counts
}

func (p *Pipeline) archive(ctx context.Context, log *slog.Logger, day string) (int, string) {
	if p.archiver == nil || p.partitions == nil {
		return 0, ""
	}

	targets := []struct{ dir, prefix string }{
		{p.partitions.RawPartitionDir(day), path.Join("raw", day)},
		{p.partitions.ProcessedPartitionDir(day), path.Join("processed", day)},
	}

	total := 0
	var failures []string
	for _, t := range targets {
		n, err := p.archiver.MirrorDir(ctx, t.dir, t.prefix)
		total += n
		if err != nil {
			log.Warn("partition not archived", "dir", t.dir, "error", err)
			failures = append(failures, err.Error())
		}
	}
	return total, strings.Join(failures, "; ")
}

// plainRender is used when no report formatter is wired.
func plainRender(r *RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s job=%s day=%s status=%s\n", r.RunID, r.Job, r.Day, r.Status())
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "%s: %s (attempts %d)\n", s.Stage, s.Status, s.Attempts)
	}
	return b.String()
}
