package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/comms-notebook/internal/settings"
)

func newRosterCmd(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Validate the settings files and summarize them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := loadConfig(opts)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				dir = cfg.Settings.Path
			}

			roster, err := settings.NewStore(dir, 0, newLogger(opts)).Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "teachers:   %d\n", len(roster.Teachers))
			fmt.Fprintf(out, "students:   %d\n", len(roster.Students))
			fmt.Fprintf(out, "subjects:   %d\n", len(roster.Subjects))
			fmt.Fprintf(out, "messages:   %d\n", len(roster.General.Messages))

			recipients := roster.ReportRecipients()
			if len(recipients) == 0 {
				fmt.Fprintln(out, "report to:  (none, ticks are no-ops)")
				return nil
			}
			fmt.Fprintf(out, "report to:  %s\n", strings.Join(recipients, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "settings directory (defaults to settings.path)")
	return cmd
}
