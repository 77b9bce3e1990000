package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/comms-notebook/internal/app"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		at     string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one report tick now",
		Long: "Evaluates the daily digest, weekly escalation and cumulative alerts once, " +
			"sends the resulting mail and advances the watermarks. " +
			"With --dry-run mail is logged instead of sent; watermarks still advance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = t
			}

			a, err := buildApp(cmd.Context(), opts, app.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Orchestrator.Run(cmd.Context(), now)
			if err != nil {
				return fmt.Errorf("report tick: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this RFC 3339 time instead of now")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log mail instead of sending it")
	return cmd
}
