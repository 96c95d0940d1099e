package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/namsweep/internal/experiment"
	"github.com/nvandessel/namsweep/internal/logging"
	"github.com/nvandessel/namsweep/internal/pathutil"
	"github.com/nvandessel/namsweep/internal/pool"
	"github.com/nvandessel/namsweep/internal/store"
)

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <file>",
		Short: "Expand a document into pool files and record the plan",
		Long: `Expand a sweep document, split the runs into pool files of at most
--pool-size runs each and write them to the output directory. The plan
(document hash, seed, pool files and their checksums) is recorded in
.namsweep/plans.db so it can be listed and verified later.

The output directory must lie inside the project root.

Examples:
  namsweep create sweeps/threshold.json
  namsweep create sweeps/threshold.json --out out/threshold --pool-size 256`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("out") {
				cfg.Plan.OutDir, _ = cmd.Flags().GetString("out")
			}
			if cmd.Flags().Changed("pool-size") {
				cfg.Plan.PoolSize, _ = cmd.Flags().GetInt("pool-size")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Plan.Seed, _ = cmd.Flags().GetInt64("seed")
			}
			if cmd.Flags().Changed("workers") {
				cfg.Plan.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)

			rootAbs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("failed to resolve project root: %w", err)
			}
			outDir, err := pathutil.ResolveWithin(cfg.Plan.OutDir, []string{rootAbs})
			if err != nil {
				return fmt.Errorf("invalid output directory: %w", err)
			}

			docPath := args[0]
			src, err := os.ReadFile(docPath)
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}
			doc, err := experiment.Parse(src)
			if err != nil {
				return documentError(docPath, err)
			}

			points, err := doc.Expand(experiment.ExpandOptions{Seed: cfg.Plan.Seed})
			if err != nil {
				return documentError(docPath, err)
			}

			ctx := cmd.Context()

			writer := &pool.Writer{
				Dir:      outDir,
				Document: docPath,
				Seed:     cfg.Plan.Seed,
				Workers:  cfg.Plan.Workers,
				Logger:   logging.WithComponent(logger, "pool"),
			}
			written, err := writer.WriteAll(ctx, pool.Partition(points, cfg.Plan.PoolSize))
			if err != nil {
				return fmt.Errorf("failed to write pool files: %w", err)
			}

			plan := store.Plan{
				Document:     relativeTo(rootAbs, docPath),
				DocumentHash: store.ContentHash(src),
				CreatedAt:    time.Now().UTC(),
				Experiments:  experimentNames(doc),
				Points:       len(points),
				Seed:         cfg.Plan.Seed,
				PoolSize:     cfg.Plan.PoolSize,
				OutDir:       relativeTo(rootAbs, outDir),
			}
			for _, w := range written {
				plan.Pools = append(plan.Pools, store.Pool{
					Index:    w.Index,
					Path:     relativeTo(rootAbs, w.Path),
					Checksum: w.Checksum,
					Points:   w.Points,
				})
			}

			manifests, err := store.NewSQLiteManifestStore(rootAbs)
			if err != nil {
				return fmt.Errorf("failed to open manifest store: %w", err)
			}
			defer manifests.Close()

			plan.ID, err = manifests.AddPlan(ctx, plan)
			if err != nil {
				return fmt.Errorf("failed to record plan: %w", err)
			}
			plan.PoolCount = len(plan.Pools)

			events := logging.NewEventLogger(store.LocalPath(rootAbs), logLevel(cmd, cfg.Logging.Level))
			defer events.Close()
			events.Log("plan_created", map[string]any{
				"plan_id": plan.ID,
				"points":  plan.Points,
				"pools":   plan.PoolCount,
				"seed":    plan.Seed,
			})

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(plan)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Created plan %s\n", okMark(), plan.ID)
			fmt.Fprintf(out, "  Document: %s\n", plan.Document)
			fmt.Fprintf(out, "  Runs:     %d (seed %d)\n", plan.Points, plan.Seed)
			fmt.Fprintf(out, "  Pools:    %d file(s) of up to %d runs in %s\n", plan.PoolCount, plan.PoolSize, plan.OutDir)
			return nil
		},
	}

	cmd.Flags().String("out", "", "Output directory, relative to the project root (default from config)")
	cmd.Flags().Int("pool-size", 0, "Maximum runs per pool file (default from config)")
	cmd.Flags().Int64("seed", 0, "Base seed (default from config)")
	cmd.Flags().Int("workers", 0, "Pool files written concurrently (default from config)")

	return cmd
}

// logLevel returns the effective level name: the flag if set, else fallback.
func logLevel(cmd *cobra.Command, fallback string) string {
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		return level
	}
	return fallback
}

func experimentNames(doc *experiment.Document) []string {
	names := make([]string, len(doc.Experiments))
	for i, e := range doc.Experiments {
		names[i] = e.Name
	}
	return names
}

// relativeTo returns path relative to root when it lies below it.
func relativeTo(root, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		if rel, err := filepath.Rel(resolved, abs); err == nil && filepath.IsLocal(rel) {
			return rel
		}
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || !filepath.IsLocal(rel) {
		return path
	}
	return rel
}
