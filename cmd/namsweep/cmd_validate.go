package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/namsweep/internal/experiment"
	"github.com/nvandessel/namsweep/internal/validate"
	"github.com/nvandessel/namsweep/internal/watch"
)

// fileReport is the validation outcome of one document.
type fileReport struct {
	Path        string          `json:"path"`
	Valid       bool            `json:"valid"`
	Experiments int             `json:"experiments,omitempty"`
	Runs        int             `json:"runs,omitempty"`
	Errors      []problemReport `json:"errors,omitempty"`
}

type problemReport struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Col     int    `json:"col,omitempty"`
}

func newReport(path string, doc *experiment.Document, err error) fileReport {
	r := fileReport{Path: path, Valid: err == nil}
	if err == nil {
		r.Experiments = len(doc.Experiments)
		r.Runs = doc.TotalRuns()
		return r
	}

	var se *experiment.SyntaxError
	var ve validate.ValidationError
	switch {
	case errors.As(err, &se):
		r.Errors = []problemReport{{Message: se.Err.Error(), Line: se.Line, Col: se.Col}}
	case errors.As(err, &ve):
		for _, fe := range ve.Errors() {
			r.Errors = append(r.Errors, problemReport{Field: fe.Field, Message: fe.Message})
		}
	default:
		r.Errors = []problemReport{{Message: err.Error()}}
	}
	return r
}

func printReport(w io.Writer, r fileReport) {
	if r.Valid {
		fmt.Fprintf(w, "%s %s %s\n", okMark(), r.Path,
			mutedStyle.Render(fmt.Sprintf("(%d experiments, %d runs)", r.Experiments, r.Runs)))
		return
	}
	fmt.Fprintf(w, "%s %s\n", failMark(), r.Path)
	for _, p := range r.Errors {
		switch {
		case p.Line > 0:
			fmt.Fprintf(w, "  line %d, column %d: %s\n", p.Line, p.Col, p.Message)
		case p.Field != "":
			fmt.Fprintf(w, "  %s: %s\n", p.Field, p.Message)
		default:
			fmt.Fprintf(w, "  %s\n", p.Message)
		}
	}
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate sweep configuration documents",
		Long: `Parse and validate one or more sweep documents. Every problem is
reported with the dotted path of the offending field. The command exits
non-zero when any document is invalid.

With --watch the documents are re-validated whenever they change, until
interrupted.

Examples:
  namsweep validate sweeps/threshold.json
  namsweep validate --json sweeps/*.json
  namsweep validate --watch sweeps/threshold.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			watchMode, _ := cmd.Flags().GetBool("watch")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Plan.Workers, _ = cmd.Flags().GetInt("workers")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger := newLogger(cmd, cfg)

			if watchMode {
				return runWatch(cmd, args, logger, jsonOut)
			}

			reports, err := validateFiles(cmd.Context(), args, cfg.Plan.Workers, logger)
			if err != nil {
				return err
			}

			invalid := 0
			for _, r := range reports {
				if !r.Valid {
					invalid++
				}
			}

			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"files": reports,
					"valid": invalid == 0,
				}); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					printReport(cmd.OutOrStdout(), r)
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d document(s) invalid", invalid, len(reports))
			}
			return nil
		},
	}

	cmd.Flags().Bool("watch", false, "Re-validate the documents whenever they change")
	cmd.Flags().Int("workers", 0, "Documents checked concurrently (default from config)")

	return cmd
}

// validateFiles validates paths, at most workers at a time, and returns
// reports in argument order.
func validateFiles(ctx context.Context, paths []string, workers int, logger zerolog.Logger) ([]fileReport, error) {
	loader := experiment.NewLoader(logger)
	reports := make([]fileReport, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := loader.Load(path)
			reports[i] = newReport(path, doc, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func runWatch(cmd *cobra.Command, paths []string, logger zerolog.Logger, jsonOut bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	w := watch.New(paths, watch.WithLogger(logger))
	return w.Run(ctx, func(res watch.Result) {
		r := newReport(res.Path, res.Document, res.Err)
		if jsonOut {
			_ = enc.Encode(r)
			return
		}
		printReport(out, r)
	})
}
