package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/namsweep/internal/experiment"
	"github.com/nvandessel/namsweep/internal/fsutil"
)

func newFmtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fmt <file>",
		Short: "Rewrite a sweep document in canonical form",
		Long: `Parse a sweep document and print it as indented JSON with defaults
filled in. Comments are dropped. With --write the file is replaced in place
(atomically) instead.

Examples:
  namsweep fmt sweeps/threshold.json
  namsweep fmt --write sweeps/threshold.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			write, _ := cmd.Flags().GetBool("write")
			path := args[0]

			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}
			doc, err := experiment.Parse(src)
			if err != nil {
				return documentError(path, err)
			}
			formatted, err := experiment.Marshal(doc)
			if err != nil {
				return err
			}

			if !write {
				_, err := cmd.OutOrStdout().Write(formatted)
				return err
			}

			changed := !bytes.Equal(src, formatted)
			if changed {
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("failed to stat document: %w", err)
				}
				if err := fsutil.WriteFile(path, formatted, info.Mode().Perm()); err != nil {
					return fmt.Errorf("failed to write document: %w", err)
				}
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"path":    path,
					"changed": changed,
				})
			}
			if changed {
				fmt.Fprintf(cmd.OutOrStdout(), "Formatted %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already formatted\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolP("write", "w", false, "Write the result back to the file")

	return cmd
}
