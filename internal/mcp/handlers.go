package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/namsweep/internal/experiment"
	"github.com/nvandessel/namsweep/internal/pathutil"
	"github.com/nvandessel/namsweep/internal/ratelimit"
	"github.com/nvandessel/namsweep/internal/validate"
)

const (
	defaultExpandLimit = 100
	maxExpandLimit     = 1000
)

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_validate",
		Description: "Validate a sweep configuration document and list every offending field path",
	}, s.handleSweepValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_summarize",
		Description: "Summarize the experiments of a sweep document: swept keys, grid shape and run counts",
	}, s.handleSweepSummarize)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_expand",
		Description: "Expand a sweep document into concrete parameter sets, one per run, with seeds",
	}, s.handleSweepExpand)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_plans",
		Description: "List plans recorded by namsweep create, newest first",
	}, s.handleSweepPlans)
}

// resolve maps a tool path argument to a file below the project root.
func (s *Server) resolve(path string) (string, error) {
	return pathutil.ResolveWithin(path, []string{s.root})
}

// load resolves and parses a document. A document that fails to parse or
// validate yields its problems rather than an error.
func (s *Server) load(path string) (*experiment.Document, []FieldErrorOutput, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.loader.Load(abs)
	if err != nil {
		var se *experiment.SyntaxError
		var ve validate.ValidationError
		if !errors.As(err, &se) && !errors.As(err, &ve) {
			var pe *fs.PathError
			if errors.As(err, &pe) {
				err = pe.Err
			}
			return nil, nil, fmt.Errorf("reading %s: %w", pathutil.RedactPath(abs), err)
		}
		return nil, fieldErrors(err), nil
	}
	return doc, nil, nil
}

func invalidDocument(problems []FieldErrorOutput) error {
	first := problems[0].Message
	if problems[0].Field != "" {
		first = problems[0].Field + ": " + first
	}
	return fmt.Errorf("document is invalid (%d problem(s), first: %s)", len(problems), first)
}

// handleSweepValidate implements the sweep_validate tool.
func (s *Server) handleSweepValidate(ctx context.Context, req *sdk.CallToolRequest, args SweepValidateInput) (_ *sdk.CallToolResult, _ SweepValidateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sweep_validate", start, retErr, sanitizeToolParams(map[string]any{"path": args.Path}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sweep_validate"); err != nil {
		return nil, SweepValidateOutput{}, err
	}

	doc, problems, err := s.load(args.Path)
	if err != nil {
		return nil, SweepValidateOutput{}, err
	}

	out := SweepValidateOutput{Path: args.Path}
	if len(problems) == 0 {
		out.Valid = true
		out.Runs = doc.TotalRuns()
		out.Message = fmt.Sprintf("Document is valid: %d experiment(s), %d run(s)", len(doc.Experiments), out.Runs)
		return nil, out, nil
	}

	out.Errors = problems
	out.Message = fmt.Sprintf("Found %d problem(s)", len(out.Errors))
	return nil, out, nil
}

// fieldErrors flattens a parse or validation failure.
func fieldErrors(err error) []FieldErrorOutput {
	var se *experiment.SyntaxError
	if errors.As(err, &se) {
		return []FieldErrorOutput{{Message: se.Err.Error(), Line: se.Line, Col: se.Col}}
	}

	var ve validate.ValidationError
	if !errors.As(err, &ve) {
		return []FieldErrorOutput{{Message: err.Error()}}
	}
	out := make([]FieldErrorOutput, len(ve.Errors()))
	for i, fe := range ve.Errors() {
		out[i] = FieldErrorOutput{Field: fe.Field, Message: fe.Message}
	}
	return out
}

// handleSweepSummarize implements the sweep_summarize tool.
func (s *Server) handleSweepSummarize(ctx context.Context, req *sdk.CallToolRequest, args SweepSummarizeInput) (_ *sdk.CallToolResult, _ SweepSummarizeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sweep_summarize", start, retErr, sanitizeToolParams(map[string]any{"path": args.Path}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sweep_summarize"); err != nil {
		return nil, SweepSummarizeOutput{}, err
	}

	doc, problems, err := s.load(args.Path)
	if err != nil {
		return nil, SweepSummarizeOutput{}, err
	}
	if len(problems) > 0 {
		return nil, SweepSummarizeOutput{}, invalidDocument(problems)
	}

	return nil, SweepSummarizeOutput{
		Path:        args.Path,
		Experiments: doc.Summaries(),
		TotalRuns:   doc.TotalRuns(),
	}, nil
}

// handleSweepExpand implements the sweep_expand tool.
func (s *Server) handleSweepExpand(ctx context.Context, req *sdk.CallToolRequest, args SweepExpandInput) (_ *sdk.CallToolResult, _ SweepExpandOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := map[string]any{"path": args.Path, "offset": args.Offset, "limit": args.Limit}
		if args.Experiment != "" {
			params["experiment"] = args.Experiment
		}
		s.auditTool("sweep_expand", start, retErr, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sweep_expand"); err != nil {
		return nil, SweepExpandOutput{}, err
	}
	if args.Offset < 0 {
		return nil, SweepExpandOutput{}, fmt.Errorf("offset must be non-negative, got %d", args.Offset)
	}
	limit := args.Limit
	switch {
	case limit < 0:
		return nil, SweepExpandOutput{}, fmt.Errorf("limit must be non-negative, got %d", limit)
	case limit == 0:
		limit = defaultExpandLimit
	case limit > maxExpandLimit:
		limit = maxExpandLimit
	}

	doc, problems, err := s.load(args.Path)
	if err != nil {
		return nil, SweepExpandOutput{}, err
	}
	if len(problems) > 0 {
		return nil, SweepExpandOutput{}, invalidDocument(problems)
	}

	total := doc.TotalRuns()
	if args.Experiment != "" {
		e, _, ok := doc.Experiment(args.Experiment)
		if !ok {
			return nil, SweepExpandOutput{}, fmt.Errorf("experiment %q not found", args.Experiment)
		}
		total = e.Runs()
	}

	seed := s.seed
	if args.Seed != nil {
		seed = *args.Seed
	}

	points := make([]experiment.Point, 0, min(limit, total))
	seen := 0
	err = doc.Walk(experiment.ExpandOptions{Seed: seed, Experiment: args.Experiment}, func(p experiment.Point) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen++
		if seen <= args.Offset {
			return nil
		}
		if len(points) == limit {
			return experiment.ErrStop
		}
		points = append(points, p)
		return nil
	})
	if err != nil {
		return nil, SweepExpandOutput{}, err
	}

	return nil, SweepExpandOutput{
		Points:    points,
		Total:     total,
		Offset:    args.Offset,
		Truncated: args.Offset+len(points) < total,
	}, nil
}

// handleSweepPlans implements the sweep_plans tool.
func (s *Server) handleSweepPlans(ctx context.Context, req *sdk.CallToolRequest, args SweepPlansInput) (_ *sdk.CallToolResult, _ SweepPlansOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sweep_plans", start, retErr, sanitizeToolParams(map[string]any{"limit": args.Limit}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sweep_plans"); err != nil {
		return nil, SweepPlansOutput{}, err
	}

	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, SweepPlansOutput{}, fmt.Errorf("listing plans: %w", err)
	}
	if args.Limit > 0 && len(plans) > args.Limit {
		plans = plans[:args.Limit]
	}

	items := make([]PlanListItem, len(plans))
	for i, p := range plans {
		items[i] = PlanListItem{
			ID:          p.ID,
			Document:    p.Document,
			CreatedAt:   p.CreatedAt,
			Experiments: p.Experiments,
			Points:      p.Points,
			Pools:       p.PoolCount,
			OutDir:      p.OutDir,
		}
	}
	return nil, SweepPlansOutput{Plans: items, Count: len(items)}, nil
}
