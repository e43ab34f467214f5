// Package report renders a pipeline run as plain-text tables for operators
// and the notification channel.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"TelegramWarehouse/internal/usecase"
)

// Render formats the stage table followed by the headline counters.
func Render(r *usecase.RunReport) string {
	if r == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\njob=%s day=%s status=%s\n\n", r.RunID, r.Job, r.Day, r.Status())
	b.WriteString(stageTable(r))
	b.WriteString("\n")
	b.WriteString(totalsTable(r))
	if r.Err != nil {
		fmt.Fprintf(&b, "\nerror: %v\n", r.Err)
	}
	return b.String()
}

func stageTable(r *usecase.RunReport) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Stage", "Status", "Attempts", "Elapsed", "Last error"})
	for _, s := range r.Stages {
		t.AppendRow(table.Row{
			s.Stage,
			s.Status,
			s.Attempts,
			s.Elapsed().Round(time.Millisecond),
			truncate(s.LastError, 60),
		})
	}
	return t.Render() + "\n"
}

func totalsTable(r *usecase.RunReport) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})

	if s := r.Scrape; s != nil {
		t.AppendRow(table.Row{"scraped files", s.ScrapedFiles})
		t.AppendRow(table.Row{"scraped messages", s.TotalMessages})
	}
	if l := r.Load; l != nil {
		t.AppendRow(table.Row{"load status", l.Status})
		t.AppendRow(table.Row{"inserted", l.LoadedRecords})
		t.AppendRow(table.Row{"duplicates", l.Duplicates})
		if l.FailedRows > 0 {
			t.AppendRow(table.Row{"failed rows", l.FailedRows})
		}
	}
	if tr := r.Transform; tr != nil {
		t.AppendRow(table.Row{"transform status", tr.Status})
		t.AppendRow(table.Row{"tests passed", tr.TestsPassed})
	}
	if e := r.Enrich; e != nil {
		t.AppendRow(table.Row{"enrich status", e.Status})
		t.AppendRow(table.Row{"detected images", e.DetectedImages})
		for _, label := range sortedKeys(e.CategoryCounts) {
			t.AppendRow(table.Row{"  " + label, e.CategoryCounts[label]})
		}
	}
	if p := r.Publish; p != nil {
		for _, name := range sortedKeys(p.WarehouseRows) {
			t.AppendRow(table.Row{"rows " + name, p.WarehouseRows[name]})
		}
		if p.Archived > 0 || p.ArchiveError != "" {
			t.AppendRow(table.Row{"archived objects", p.Archived})
		}
	}
	return t.Render() + "\n"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
