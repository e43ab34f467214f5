package usecase

import (
	"fmt"
	"strings"
	"time"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageScrape    Stage = "scrape"
	StageLoad      Stage = "load"
	StageTransform Stage = "transform"
	StageEnrich    Stage = "enrich"
	StagePublish   Stage = "publish"
)

// StageSpec is the retry policy of a stage. Retries counts re-executions
// after the first attempt. A Fatal stage that exhausts its retries halts
// the run; any other stage is downgraded to a failed summary.
type StageSpec struct {
	Name    Stage
	Retries int
	Delay   time.Duration
	Fatal   bool
}

// Attempts returns the total number of executions the policy allows.
func (s StageSpec) Attempts() int {
	return s.Retries + 1
}

var defaultSpecs = map[Stage]StageSpec{
	StageScrape:    {Name: StageScrape, Retries: 3, Delay: 5 * time.Second, Fatal: true},
	StageLoad:      {Name: StageLoad, Retries: 3, Delay: 5 * time.Second, Fatal: true},
	StageTransform: {Name: StageTransform, Retries: 3, Delay: 10 * time.Second},
	StageEnrich:    {Name: StageEnrich, Retries: 2, Delay: 5 * time.Second},
	StagePublish:   {Name: StagePublish},
}

// DefaultSpec returns the built-in policy of stage.
func DefaultSpec(stage Stage) StageSpec {
	return defaultSpecs[stage]
}

func scaleDelay(spec StageSpec, scale float64) StageSpec {
	if scale > 0 {
		spec.Delay = time.Duration(float64(spec.Delay) * scale)
	}
	return spec
}

// Job selects which stages a run executes.
type Job string

const (
	// JobFull runs every stage.
	JobFull Job = "full"
	// JobDaily scrapes, loads and transforms.
	JobDaily Job = "daily"
	// JobAnalysis skips scraping and re-runs transform and enrichment.
	JobAnalysis Job = "analysis"
)

// Stages lists the stages of the job in execution order.
func (j Job) Stages() []Stage {
	switch j {
	case JobDaily:
		return []Stage{StageScrape, StageLoad, StageTransform}
	case JobAnalysis:
		return []Stage{StageLoad, StageTransform, StageEnrich, StagePublish}
	default:
		return []Stage{StageScrape, StageLoad, StageTransform, StageEnrich, StagePublish}
	}
}

func (j Job) has(stage Stage) bool {
	for _, s := range j.Stages() {
		if s == stage {
			return true
		}
	}
	return false
}

// ParseJob maps a job name to a Job. The empty string selects JobFull.
func ParseJob(name string) (Job, error) {
	switch Job(strings.ToLower(strings.TrimSpace(name))) {
	case "", JobFull:
		return JobFull, nil
	case JobDaily:
		return JobDaily, nil
	case JobAnalysis:
		return JobAnalysis, nil
	default:
		return "", fmt.Errorf("unknown job %q", name)
	}
}
