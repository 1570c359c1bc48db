package model

import "time"

// StageStatus marks the outcome of one pipeline stage.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// StageResult records timing and outcome for one pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunError is one captured adapter- or stage-level failure. Failures are
// collected here rather than thrown past stage boundaries.
type RunError struct {
	Stage   string    `json:"stage"`
	Source  string    `json:"source,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// RunResult is what every pipeline run returns: the best partial data
// obtained plus an explicit list of errors, never a bare failure.
type RunResult struct {
	RunID     string             `json:"run_id"`
	Subject   Subject            `json:"subject"`
	Records   []ResearchRecord   `json:"records"`
	Facts     []VerifiedFact     `json:"facts,omitempty"`
	Profile   *AggregatedProfile `json:"profile,omitempty"`
	Stages    []StageResult      `json:"stages"`
	Errors    []RunError         `json:"errors,omitempty"`
	Partial   bool               `json:"partial"`
	StartedAt time.Time          `json:"started_at"`
	Duration  int64              `json:"duration_ms"`
}

// AddError appends a captured failure to the run.
func (r *RunResult) AddError(stage, source string, kind ErrorKind, msg string) {
	r.Errors = append(r.Errors, RunError{Stage: stage, Source: source, Kind: kind, Message: msg})
}
