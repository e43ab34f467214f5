package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/usecase"
)

func TestRenderIncludesStagesAndTotals(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 16, 6, 0, 0, 0, time.UTC)
	r := &usecase.RunReport{
		RunID: "01RUN",
		Job:   usecase.JobFull,
		Day:   "2026-01-16",
		Stages: []usecase.RunState{
			{Stage: usecase.StageScrape, Status: domain.StageSucceeded, Attempts: 1, StartedAt: start, FinishedAt: start.Add(2 * time.Second)},
			{Stage: usecase.StageEnrich, Status: domain.StageSkipped, Attempts: 1},
		},
		Scrape:  &usecase.ScrapeSummary{ScrapedFiles: 2, TotalMessages: 8},
		Load:    &usecase.LoadSummary{Status: domain.SummarySuccess, LoadedRecords: 8},
		Enrich:  &usecase.EnrichSummary{Status: domain.SummarySuccess, DetectedImages: 2, CategoryCounts: map[string]int{"person": 3, "bottle": 1}},
		Publish: &usecase.PublishSummary{WarehouseRows: map[string]int64{"raw.telegram_messages": 8}},
	}

	out := Render(r)
	for _, want := range []string{"01RUN", "status=success", "scrape", "2s", "skipped", "inserted", "raw.telegram_messages"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "bottle") > strings.Index(out, "person") {
		t.Fatalf("categories should be sorted:\n%s", out)
	}
}

func TestRenderFailedRun(t *testing.T) {
	t.Parallel()

	out := Render(&usecase.RunReport{RunID: "x", Job: usecase.JobDaily, Err: errors.New("scrape: upstream unreachable")})
	if !strings.Contains(out, "status=failed") || !strings.Contains(out, "upstream unreachable") {
		t.Fatalf("unexpected render:\n%s", out)
	}
	if Render(nil) != "" {
		t.Fatal("nil report should render empty")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
