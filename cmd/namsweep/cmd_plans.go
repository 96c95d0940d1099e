package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/namsweep/internal/pool"
	"github.com/nvandessel/namsweep/internal/store"
)

func newPlansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect plans recorded by create",
		Long: `List, show, verify and delete the plans recorded in .namsweep/plans.db.
Plans can be referred to by any unique prefix of their ID.

Examples:
  namsweep plans list
  namsweep plans show 3f2a
  namsweep plans verify 3f2a`,
	}

	cmd.AddCommand(
		newPlansListCmd(),
		newPlansShowCmd(),
		newPlansVerifyCmd(),
		newPlansDeleteCmd(),
	)

	return cmd
}

func openManifests(cmd *cobra.Command) (*store.SQLiteManifestStore, string, error) {
	root, _ := cmd.Flags().GetString("root")
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	s, err := store.NewSQLiteManifestStore(rootAbs)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open manifest store: %w", err)
	}
	return s, rootAbs, nil
}

func newPlansListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, _, err := openManifests(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			plans, err := s.ListPlans(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list plans: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"plans": plans,
					"count": len(plans),
				})
			}

			out := cmd.OutOrStdout()
			if len(plans) == 0 {
				fmt.Fprintln(out, "No plans recorded. Run 'namsweep create <file>' first.")
				return nil
			}
			for _, p := range plans {
				fmt.Fprintf(out, "%s  %s  %s  %d runs in %d pool(s)\n",
					headStyle.Render(shortID(p.ID)),
					p.CreatedAt.Local().Format(time.DateTime),
					p.Document, p.Points, p.PoolCount)
			}
			return nil
		},
	}
}

func newPlansShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a plan and its pool files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, _, err := openManifests(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			plan, err := s.GetPlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(plan)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Plan %s\n", headStyle.Render(plan.ID))
			fmt.Fprintf(out, "  Document:    %s (sha256 %s)\n", plan.Document, shortID(plan.DocumentHash))
			fmt.Fprintf(out, "  Created:     %s\n", plan.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "  Experiments: %s\n", strings.Join(plan.Experiments, "; "))
			fmt.Fprintf(out, "  Runs:        %d (seed %d)\n", plan.Points, plan.Seed)
			fmt.Fprintf(out, "  Pool size:   %d\n", plan.PoolSize)
			fmt.Fprintf(out, "  Output:      %s\n", plan.OutDir)
			for _, p := range plan.Pools {
				fmt.Fprintf(out, "    %4d  %s  %d runs  %s\n", p.Index, p.Path, p.Points, mutedStyle.Render(p.Checksum))
			}
			return nil
		},
	}
}

// poolCheck is the verification result of one pool file.
type poolCheck struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// verifyPool checks a recorded pool file: the file checksum must verify and
// match the checksum stored in the plan.
func verifyPool(root string, p store.Pool) poolCheck {
	path := p.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	c := poolCheck{Index: p.Index, Path: p.Path}

	h, err := pool.ReadHeader(path)
	if err != nil {
		c.Error = err.Error()
		return c
	}
	if h.Checksum != p.Checksum {
		c.Error = fmt.Sprintf("file was replaced: checksum %s, plan recorded %s", h.Checksum, p.Checksum)
		return c
	}
	if h.PointCount != p.Points {
		c.Error = fmt.Sprintf("file holds %d runs, plan recorded %d", h.PointCount, p.Points)
		return c
	}
	if err := pool.VerifyChecksum(path); err != nil {
		c.Error = err.Error()
		return c
	}
	c.Valid = true
	return c
}

func newPlansVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Verify the checksums of a plan's pool files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, root, err := openManifests(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			plan, err := s.GetPlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			checks := make([]poolCheck, len(plan.Pools))
			failed := 0
			for i, p := range plan.Pools {
				checks[i] = verifyPool(root, p)
				if !checks[i].Valid {
					failed++
				}
			}

			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"plan":  plan.ID,
					"valid": failed == 0,
					"pools": checks,
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, c := range checks {
					if c.Valid {
						fmt.Fprintf(out, "%s %s\n", okMark(), c.Path)
					} else {
						fmt.Fprintf(out, "%s %s: %s\n", failMark(), c.Path, c.Error)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d pool file(s) failed verification", failed, len(checks))
			}
			return nil
		},
	}
}

func newPlansDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Forget a plan (pool files are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, _, err := openManifests(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			plan, err := s.GetPlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := s.DeletePlan(cmd.Context(), plan.ID); err != nil {
				return fmt.Errorf("failed to delete plan: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"id":     plan.ID,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted plan %s\n", plan.ID)
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
