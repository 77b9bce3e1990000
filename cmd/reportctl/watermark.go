package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/repository"
)

func newWatermarkCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watermark",
		Aliases: []string{"wm"},
		Short:   "Inspect and edit stored watermarks",
	}

	cmd.AddCommand(newWatermarkListCmd(opts))
	cmd.AddCommand(newWatermarkGetCmd(opts))
	cmd.AddCommand(newWatermarkSetCmd(opts))
	cmd.AddCommand(newWatermarkRmCmd(opts))
	cmd.AddCommand(newWatermarkClearCmd(opts))
	return cmd
}

func newWatermarkListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every watermark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			items, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE\tUPDATED")
			for _, wm := range items {
				updated := "-"
				if !wm.UpdatedAt.IsZero() {
					updated = wm.UpdatedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", describeKey(wm.Key), wm.Value, updated)
			}
			return w.Flush()
		},
	}
}

// describeKey annotates cumulative counter keys with their year and student.
func describeKey(key string) string {
	k, err := model.ParseCumulativeKey(key)
	if err != nil {
		return key
	}
	return fmt.Sprintf("%s (%d %s)", key, k.Year, k.Student)
}

func newWatermarkGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print one watermark value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			value, ok, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("watermark %q not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newWatermarkSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Overwrite one watermark",
		Long: "Overwrites one watermark. The run stamps (lastDailyReport, " +
			"lastStudentSpecificDailyReport, lastAcumulativeReport) must be RFC 3339 times.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := validateWatermark(key, value); err != nil {
				return err
			}

			store, closeFn, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Set(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}
}

func validateWatermark(key, value string) error {
	switch key {
	case model.WatermarkLastDigest, model.WatermarkLastWeekly, model.WatermarkLastCumulative:
		if _, err := model.ParseTimestamp(value); err != nil {
			return fmt.Errorf("%s must be an RFC 3339 time: %w", key, err)
		}
		return nil
	}
	if _, err := model.ParseCumulativeKey(key); err == nil {
		n, err := model.ParseCount(value)
		if err != nil {
			return fmt.Errorf("%s must be a count: %w", key, err)
		}
		if n < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	return nil
}

func newWatermarkRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm KEY",
		Aliases: []string{"delete"},
		Short:   "Remove one watermark",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("watermark %q not set", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newWatermarkClearCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every watermark",
		Long:  "Removes every watermark. The next tick behaves like a first run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear watermarks without --yes")
			}

			store, closeFn, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "watermarks cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing every watermark")
	return cmd
}
