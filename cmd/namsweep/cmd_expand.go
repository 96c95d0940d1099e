package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/namsweep/internal/experiment"
	"github.com/nvandessel/namsweep/internal/table"
)

func newExpandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand <file>",
		Short: "Expand a sweep document into concrete runs",
		Long: `Expand every experiment of a sweep document into its runs: grid cells
in row-major order (last swept key varying fastest) with repeats innermost.
Run i gets seed base+i, also when only one experiment is selected.

By default one line per run is printed; with --json each run is a full JSON
object including its parameter set. --count prints only the number of runs,
--arrow writes the runs to an Apache Arrow IPC file instead; add --verify to
read the file back and check it against the document.

Examples:
  namsweep expand sweeps/threshold.json --count
  namsweep expand sweeps/threshold.json --experiment "Weight vs. threshold" --json
  namsweep expand sweeps/threshold.json --arrow runs.arrow --verify`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name, _ := cmd.Flags().GetString("experiment")
			countOnly, _ := cmd.Flags().GetBool("count")
			arrowPath, _ := cmd.Flags().GetString("arrow")
			verify, _ := cmd.Flags().GetBool("verify")
			if verify && arrowPath == "" {
				return fmt.Errorf("--verify requires --arrow")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			seed := cfg.Plan.Seed
			if cmd.Flags().Changed("seed") {
				seed, _ = cmd.Flags().GetInt64("seed")
			}

			logger := newLogger(cmd, cfg)
			doc, err := experiment.NewLoader(logger).Load(args[0])
			if err != nil {
				return documentError(args[0], err)
			}
			opts := experiment.ExpandOptions{Seed: seed, Experiment: name}
			out := cmd.OutOrStdout()

			switch {
			case countOnly:
				n, err := countRuns(doc, name)
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]interface{}{
						"path":       args[0],
						"experiment": name,
						"count":      n,
					})
				}
				fmt.Fprintln(out, n)
				return nil

			case arrowPath != "":
				n, err := table.WriteDocument(arrowPath, doc, opts)
				if err != nil {
					return fmt.Errorf("failed to write arrow table: %w", err)
				}
				logger.Debug().Str("path", arrowPath).Int("rows", n).Msg("arrow table written")
				if verify {
					if err := verifyTable(arrowPath, doc, opts, n); err != nil {
						return err
					}
					logger.Debug().Str("path", arrowPath).Msg("arrow table verified")
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]interface{}{
						"path":  arrowPath,
						"count": n,
					})
				}
				fmt.Fprintf(out, "Wrote %d runs to %s\n", n, arrowPath)
				return nil
			}

			enc := json.NewEncoder(out)
			return doc.Walk(opts, func(p experiment.Point) error {
				if jsonOut {
					return enc.Encode(p)
				}
				return printPoint(out, p)
			})
		},
	}

	cmd.Flags().String("experiment", "", "Only expand the experiment with this name")
	cmd.Flags().Bool("count", false, "Only print the number of runs")
	cmd.Flags().String("arrow", "", "Write runs to this Arrow IPC file")
	cmd.Flags().Bool("verify", false, "Read the Arrow file back and check it (requires --arrow)")
	cmd.Flags().Int64("seed", 0, "Base seed (default from config)")

	return cmd
}

// verifyTable reads the table at path and checks its columns, row count and
// run identity against a fresh expansion of doc.
func verifyTable(path string, doc *experiment.Document, opts experiment.ExpandOptions, want int) error {
	tbl, err := table.Read(path)
	if err != nil {
		return fmt.Errorf("verifying arrow table: %w", err)
	}
	if !slices.Equal(tbl.Keys, table.Keys(doc)) {
		return fmt.Errorf("verifying arrow table: columns %v, want %v", tbl.Keys, table.Keys(doc))
	}
	if len(tbl.Rows) != want {
		return fmt.Errorf("verifying arrow table: %d rows, want %d", len(tbl.Rows), want)
	}

	i := 0
	return doc.Walk(opts, func(p experiment.Point) error {
		row := tbl.Rows[i]
		i++
		if row.Index != p.Index || row.Seed != p.Seed || row.Experiment != p.Experiment {
			return fmt.Errorf("verifying arrow table: row %d is run %d of %q, want run %d of %q",
				i-1, row.Index, row.Experiment, p.Index, p.Experiment)
		}
		return nil
	})
}

func countRuns(doc *experiment.Document, name string) (int, error) {
	if name == "" {
		return doc.TotalRuns(), nil
	}
	e, _, ok := doc.Experiment(name)
	if !ok {
		return 0, fmt.Errorf("experiment %q not found", name)
	}
	return e.Runs(), nil
}

// printPoint writes one run as "index seed experiment key=value...".
func printPoint(w io.Writer, p experiment.Point) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%6d  %d  %s", p.Index, p.Seed, p.Experiment)
	if p.Repeat > 0 {
		fmt.Fprintf(&b, " #%d", p.Repeat)
	}
	for _, a := range p.Assignments {
		fmt.Fprintf(&b, "  %s=%g", a.Path, a.Value)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
