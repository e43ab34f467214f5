package usecase

import (
	"time"

	"TelegramWarehouse/internal/domain"
)

const maxFileList = 10

// Endpoints advertised by the analytics read API once a run is published.
var Endpoints = []string{
	"GET /api/reports/top-products",
	"GET /api/channels/{channel_name}/activity",
	"GET /api/search/messages",
	"GET /api/reports/visual-content",
}

// ScrapeSummary is handed from Scrape to Load.
type ScrapeSummary struct {
	Status        domain.SummaryStatus `json:"status"`
	ScrapedFiles  int                  `json:"scraped_files"`
	OutputDir     string               `json:"output_dir,omitempty"`
	FileList      []string             `json:"file_list"`
	TotalMessages int                  `json:"total_messages"`
	Channels      map[string]int       `json:"channels,omitempty"`
	ManifestPath  string               `json:"manifest_path,omitempty"`
	ExportPath    string               `json:"export_path,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// LoadSummary is handed from Load to Transform.
type LoadSummary struct {
	Status        domain.SummaryStatus `json:"status"`
	LoadedRecords int                  `json:"loaded_records"`
	Attempted     int                  `json:"attempted"`
	Duplicates    int                  `json:"duplicates"`
	FailedRows    int                  `json:"failed_rows"`
	Files         int                  `json:"files"`
	Error         string               `json:"error,omitempty"`
}

// CommandOutcome records one transform sub-command.
type CommandOutcome struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// TransformSummary is handed from Transform to Enrich.
type TransformSummary struct {
	Status        domain.SummaryStatus `json:"status"`
	LoadedRecords int                  `json:"loaded_records"`
	TestsPassed   bool                 `json:"tests_passed"`
	Commands      []CommandOutcome     `json:"commands,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// EnrichSummary is handed from Enrich to Publish. DetectedImages counts
// processed images; CategoryCounts counts detections per label.
type EnrichSummary struct {
	Status         domain.SummaryStatus `json:"status"`
	DetectedImages int                  `json:"detected_images"`
	Detections     int                  `json:"detections"`
	CategoryCounts map[string]int       `json:"category_counts"`
	Error          string               `json:"error,omitempty"`
}

// PublishSummary is the end-of-run report.
type PublishSummary struct {
	APIStatus      string               `json:"api_status"`
	Endpoints      []string             `json:"endpoints"`
	TotalProcessed int                  `json:"total_processed"`
	CategoryCounts map[string]int       `json:"category_counts"`
	EnrichStatus   domain.SummaryStatus `json:"yolo_status"`
	StageStatuses  map[Stage]string     `json:"stage_statuses"`
	LoadedRecords  int                  `json:"loaded_records"`
	TestsPassed    bool                 `json:"tests_passed"`
	WarehouseRows  map[string]int64     `json:"warehouse_rows,omitempty"`
	Archived       int                  `json:"archived"`
	ArchiveError   string               `json:"archive_error,omitempty"`
	Notified       bool                 `json:"notified"`
	NotifyError    string               `json:"notify_error,omitempty"`
}

// RunState is the ephemeral state of one stage within a run.
type RunState struct {
	Stage      Stage              `json:"stage"`
	Status     domain.StageStatus `json:"status"`
	Attempts   int                `json:"attempts"`
	LastError  string             `json:"last_error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Elapsed is the wall time of the stage, zero when it never ran.
func (s RunState) Elapsed() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunReport collects the states and summaries of one run. Summaries of
// stages that did not run are nil.
type RunReport struct {
	RunID     string            `json:"run_id"`
	Job       Job               `json:"job"`
	Day       string            `json:"day"`
	Stages    []RunState        `json:"stages"`
	Scrape    *ScrapeSummary    `json:"scrape,omitempty"`
	Load      *LoadSummary      `json:"load,omitempty"`
	Transform *TransformSummary `json:"transform,omitempty"`
	Enrich    *EnrichSummary    `json:"enrich,omitempty"`
	Publish   *PublishSummary   `json:"publish,omitempty"`
	Err       error             `json:"-"`
}

// Status is "success" unless a fatal stage halted the run.
func (r *RunReport) Status() string {
	if r.Err != nil {
		return string(domain.SummaryFailed)
	}
	return string(domain.SummarySuccess)
}

// State returns the recorded state of stage.
func (r *RunReport) State(stage Stage) (RunState, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return RunState{}, false
}

func (r *RunReport) setState(state RunState) {
	for i := range r.Stages {
		if r.Stages[i].Stage == state.Stage {
			r.Stages[i] = state
			return
		}
	}
	r.Stages = append(r.Stages, state)
}

func stageStatusFor(status domain.SummaryStatus) domain.StageStatus {
	switch status {
	case domain.SummaryFailed:
		return domain.StageFailed
	case domain.SummarySkipped:
		return domain.StageSkipped
	default:
		return domain.StageSucceeded
	}
}
