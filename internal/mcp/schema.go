package mcp

import (
	"time"

	"github.com/nvandessel/namsweep/internal/experiment"
)

// SweepValidateInput defines the input for sweep_validate.
type SweepValidateInput struct {
	Path string `json:"path" jsonschema:"Document path, relative to the project root"`
}

// SweepValidateOutput defines the output for sweep_validate.
type SweepValidateOutput struct {
	Path    string             `json:"path" jsonschema:"Document path as given"`
	Valid   bool               `json:"valid" jsonschema:"Whether the document is valid"`
	Errors  []FieldErrorOutput `json:"errors,omitempty" jsonschema:"Every problem found, in document order"`
	Runs    int                `json:"runs,omitempty" jsonschema:"Total runs of a valid document"`
	Message string             `json:"message" jsonschema:"Human-readable result message"`
}

// FieldErrorOutput is one validation problem. Field is empty for syntax
// errors, which carry a line and column instead.
type FieldErrorOutput struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Col     int    `json:"col,omitempty"`
}

// SweepSummarizeInput defines the input for sweep_summarize.
type SweepSummarizeInput struct {
	Path string `json:"path" jsonschema:"Document path, relative to the project root"`
}

// SweepSummarizeOutput defines the output for sweep_summarize.
type SweepSummarizeOutput struct {
	Path        string               `json:"path"`
	Experiments []experiment.Summary `json:"experiments" jsonschema:"One entry per experiment, in file order"`
	TotalRuns   int                  `json:"total_runs" jsonschema:"Sum of runs over all experiments"`
}

// SweepExpandInput defines the input for sweep_expand.
type SweepExpandInput struct {
	Path       string `json:"path" jsonschema:"Document path, relative to the project root"`
	Experiment string `json:"experiment,omitempty" jsonschema:"Only expand the experiment with this name"`
	Seed       *int64 `json:"seed,omitempty" jsonschema:"Base seed; run i gets seed+i"`
	Offset     int    `json:"offset,omitempty" jsonschema:"Skip this many points of the selection"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of points to return (default 100, max 1000)"`
}

// SweepExpandOutput defines the output for sweep_expand.
type SweepExpandOutput struct {
	Points    []experiment.Point `json:"points"`
	Total     int                `json:"total" jsonschema:"Number of points in the selection"`
	Offset    int                `json:"offset"`
	Truncated bool               `json:"truncated" jsonschema:"Whether more points follow"`
}

// SweepPlansInput defines the input for sweep_plans.
type SweepPlansInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of plans to return, newest first"`
}

// SweepPlansOutput defines the output for sweep_plans.
type SweepPlansOutput struct {
	Plans []PlanListItem `json:"plans"`
	Count int            `json:"count"`
}

// PlanListItem is a list view of a recorded plan.
type PlanListItem struct {
	ID          string    `json:"id"`
	Document    string    `json:"document"`
	CreatedAt   time.Time `json:"created_at"`
	Experiments []string  `json:"experiments"`
	Points      int       `json:"points"`
	Pools       int       `json:"pools"`
	OutDir      string    `json:"out_dir"`
}
