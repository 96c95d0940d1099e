package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/namsweep/internal/experiment"
)

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <file>",
		Short: "Show the experiments of a sweep document",
		Long: `Print each experiment's swept keys, grid shape, repeat count and the
number of runs it expands to.

Examples:
  namsweep summary sweeps/threshold.json
  namsweep summary --json sweeps/threshold.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			doc, err := experiment.NewLoader(newLogger(cmd, cfg)).Load(args[0])
			if err != nil {
				return documentError(args[0], err)
			}

			summaries := doc.Summaries()
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"path":        args[0],
					"experiments": summaries,
					"total_runs":  doc.TotalRuns(),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d experiments, %d runs\n", args[0], len(summaries), doc.TotalRuns())
			for i, s := range summaries {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "%s %s\n", mutedStyle.Render(fmt.Sprintf("[%d]", i)), headStyle.Render(s.Name))
				if s.Dims == 0 {
					fmt.Fprintln(out, "    keys:   (none)")
				} else {
					fmt.Fprintf(out, "    keys:   %s\n", strings.Join(s.Keys, ", "))
				}
				fmt.Fprintf(out, "    shape:  %s (%d dims)\n", formatShape(s.Shape), s.Dims)
				fmt.Fprintf(out, "    repeat: %d\n", s.Repeat)
				fmt.Fprintf(out, "    runs:   %d\n", s.Runs)
			}
			return nil
		},
	}
}

func formatShape(shape []int) string {
	if len(shape) == 0 {
		return "1"
	}
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " x ")
}

// documentError flattens a load failure into one error listing every
// problem, for commands that need a valid document.
func documentError(path string, err error) error {
	lines := experiment.FieldPaths(err)
	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", path, lines[0])
	}
	return fmt.Errorf("%s: %d problems:\n  %s", path, len(lines), strings.Join(lines, "\n  "))
}
