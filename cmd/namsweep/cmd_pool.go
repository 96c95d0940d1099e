package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/namsweep/internal/pool"
)

func newPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect pool files",
		Long: `Inspect pool files written by create.

Examples:
  namsweep pool show out/threshold_0.in.gz
  namsweep pool verify out/threshold_0.in.gz`,
	}

	cmd.AddCommand(
		newPoolShowCmd(),
		newPoolVerifyCmd(),
	)

	return cmd
}

func newPoolShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Show a pool file header, or its runs with --points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			withPoints, _ := cmd.Flags().GetBool("points")
			path := args[0]
			out := cmd.OutOrStdout()

			if withPoints {
				f, err := pool.Read(path)
				if err != nil {
					return fmt.Errorf("failed to read pool file: %w", err)
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(f)
				}
				printHeader(cmd, path, &f.Header)
				fmt.Fprintln(out)
				for _, p := range f.Points {
					if err := printPoint(out, p); err != nil {
						return err
					}
				}
				return nil
			}

			h, err := pool.ReadHeader(path)
			if err != nil {
				return fmt.Errorf("failed to read pool header: %w", err)
			}
			if jsonOut {
				return json.NewEncoder(out).Encode(h)
			}
			printHeader(cmd, path, h)
			return nil
		},
	}

	cmd.Flags().Bool("points", false, "Also decode and print the runs")

	return cmd
}

func printHeader(cmd *cobra.Command, path string, h *pool.Header) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pool file %s\n", headStyle.Render(path))
	fmt.Fprintf(out, "  Version:     %d\n", h.Version)
	fmt.Fprintf(out, "  Created:     %s\n", h.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "  Document:    %s (pool %d)\n", h.Document, h.Index)
	fmt.Fprintf(out, "  Experiments: %s\n", strings.Join(h.Experiments, "; "))
	fmt.Fprintf(out, "  Runs:        %d, from index %d (seed %d)\n", h.PointCount, h.FirstPoint, h.Seed)
	fmt.Fprintf(out, "  Checksum:    %s\n", h.Checksum)
}

func newPoolVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a pool file checksum",
		Long: `Verify the integrity of a pool file by checking the SHA-256 checksum
of its compressed payload against the header.

Examples:
  namsweep pool verify out/threshold_0.in.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			jsonOut, _ := cmd.Flags().GetBool("json")

			err := pool.VerifyChecksum(filePath)
			if err != nil {
				if jsonOut {
					if encErr := json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
						"file":    filePath,
						"valid":   false,
						"error":   err.Error(),
						"message": "Checksum verification FAILED",
					}); encErr != nil {
						return encErr
					}
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", failMark(), err)
					fmt.Fprintf(cmd.OutOrStdout(), "  File: %s\n", filePath)
				}
				return fmt.Errorf("checksum verification failed")
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"file":    filePath,
					"valid":   true,
					"message": "Checksum OK",
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: checksum verified\n", okMark())
			fmt.Fprintf(cmd.OutOrStdout(), "  File: %s\n", filePath)
			return nil
		},
	}
}
