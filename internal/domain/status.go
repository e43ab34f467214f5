package domain

// SummaryStatus is the outcome a stage reports to its successor.
type SummaryStatus string

const (
	SummarySuccess SummaryStatus = "success"
	SummaryFailed  SummaryStatus = "failed"
	SummarySkipped SummaryStatus = "skipped"
	SummaryNoFiles SummaryStatus = "no_files"
)

// StageStatus tracks a stage inside one orchestrator run.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)
