package domain

import (
	"encoding"
	"time"
)

type FailurePolicy string

const (
	// PolicyIsolate records a failed item and keeps processing the rest.
	PolicyIsolate FailurePolicy = "isolate"
	// PolicyAbort stops assigning work after the first failure.
	PolicyAbort FailurePolicy = "abort"
)

func (p FailurePolicy) Valid() bool { return p == PolicyIsolate || p == PolicyAbort }

type ItemStatus string

const (
	StatusEnrolled ItemStatus = "ENROLLED"
	StatusFailed   ItemStatus = "FAILED"
	StatusSkipped  ItemStatus = "SKIPPED"
)

var (
	_ encoding.BinaryMarshaler = ItemStatus("")
	_ encoding.TextMarshaler   = ItemStatus("")
)

func (s ItemStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s ItemStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

// RunConfiguration is resolved once per run and passed by value.
type RunConfiguration struct {
	SourceDir     string
	TargetDir     string
	Workers       int
	Pattern       string
	FailurePolicy FailurePolicy
}

// Completion is emitted once per source file, whatever the outcome.
type Completion struct {
	Source   SourceFile
	Worker   int
	Status   ItemStatus
	Artifact string
	Err      error
	Duration time.Duration
}

type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Total     int
	Enrolled  int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
	Failures  []Completion
}

// Completed is the number of items that produced a completion.
func (s RunSummary) Completed() int { return s.Enrolled + s.Failed + s.Skipped }

// RunRecord is the ledger view of a run.
type RunRecord struct {
	RunID      string        `json:"runId"`
	SourceDir  string        `json:"sourceDir"`
	TargetDir  string        `json:"targetDir"`
	Pattern    string        `json:"pattern"`
	Workers    int           `json:"workers"`
	Policy     FailurePolicy `json:"failurePolicy"`
	Total      int           `json:"total"`
	Enrolled   int           `json:"enrolled"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	ElapsedMs  int64         `json:"elapsedMs,omitempty"`
}

// ItemRecord is the ledger view of a completion.
type ItemRecord struct {
	Source     string     `json:"source"`
	Status     ItemStatus `json:"status"`
	Artifact   string     `json:"artifact,omitempty"`
	Error      string     `json:"error,omitempty"`
	Worker     int        `json:"worker"`
	DurationMs int64      `json:"durationMs"`
}

func NewItemRecord(c Completion) ItemRecord {
	rec := ItemRecord{
		Source:     c.Source.Path,
		Status:     c.Status,
		Artifact:   c.Artifact,
		Worker:     c.Worker,
		DurationMs: c.Duration.Milliseconds(),
	}
	if c.Err != nil {
		rec.Error = c.Err.Error()
	}
	return rec
}
