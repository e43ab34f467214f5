package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/normalize"
)

func (p *Pipeline) load(ctx context.Context, log *slog.Logger, scrape ScrapeSummary) (LoadSummary, error) {
	if scrape.ScrapedFiles == 0 || scrape.OutputDir == "" {
		log.Info("no scraped files, nothing to load")
		return LoadSummary{Status: domain.SummaryNoFiles}, nil
	}
	if p.partitions == nil || p.warehouse == nil {
		return LoadSummary{}, errors.New("loader is not configured")
	}

	files, err := p.partitions.ListPartition(scrape.OutputDir, p.opts.MaxFilesPerLoad)
	if err != nil {
		return LoadSummary{}, err
	}

	var records []normalize.Record
	for _, file := range files {
		raw, err := p.partitions.ReadPartitionFile(file)
		if err != nil {
			log.Warn("skip unreadable partition file", "file", file, "error", err)
			continue
		}
		for _, rec := range raw {
			records = append(records, normalize.Normalize(rec))
		}
	}

	rows, dropped := normalize.Rows(records)
	summary := LoadSummary{
		Status:     domain.SummarySuccess,
		Files:      len(files),
		FailedRows: dropped,
	}
	if len(rows) == 0 {
		log.Info("partition held no loadable records", "files", len(files))
		return summary, nil
	}

	wh, err := p.warehouse.Connect(ctx)
	if err != nil {
		return summary, fmt.Errorf("connect warehouse: %w", err)
	}
	defer closeWarehouse(log, wh)

	res, err := wh.LoadMessages(ctx, rows)
	p.metrics.Loaded("messages", res.Inserted, res.Duplicates, res.FailedPages)

	summary.Attempted = res.Attempted
	summary.LoadedRecords = res.Inserted
	summary.Duplicates = res.Duplicates
	summary.FailedRows += res.FailedRows
	if err != nil {
		// Nothing landed: retry. Otherwise the failed pages are reported and
		// the run continues with what was written.
		if res.Inserted+res.Duplicates == 0 {
			return summary, fmt.Errorf("load messages: %w", err)
		}
		summary.Error = err.Error()
		log.Warn("messages partially loaded",
			"inserted", res.Inserted,
			"failed_pages", res.FailedPages,
			"failed_rows", res.FailedRows,
			"error", err)
	}

	log.Info("messages loaded",
		"files", len(files),
		"attempted", res.Attempted,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"dropped", dropped)
	return summary, nil
}

func closeWarehouse(log *slog.Logger, wh io.Closer) {
	if err := wh.Close(); err != nil {
		log.Warn("close warehouse session", "error", err)
	}
}
