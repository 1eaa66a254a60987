package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/spf13/cobra"
)

func (c *cli) newSuppressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suppress",
		Short: "Manage the suppression list",
		Long: `Manage the suppression list kept in compliance.suppression_file.

Subcommands:
  add     - Record a company, domain or email suppression
  remove  - Drop a suppression
  list    - List recorded suppressions`,
	}
	cmd.AddCommand(c.newSuppressAddCmd(), c.newSuppressRemoveCmd(), c.newSuppressListCmd())
	return cmd
}

func (c *cli) newSuppressAddCmd() *cobra.Command {
	var (
		reason string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "add <company|domain|email> <value>",
		Short: "Record a suppression",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := compliance.ParseEntryType(args[0])
			if err != nil {
				return err
			}
			entry := compliance.Entry{Type: t, Value: args[1], Reason: reason}
			if ttl > 0 {
				expires := time.Now().UTC().Add(ttl)
				entry.ExpiresAt = &expires
			}

			return c.withApp(cmd, func(_ context.Context, a *app) error {
				if a.cfg.Compliance.SuppressionFile == "" {
					return errNoSuppressionFile
				}
				if err := a.mesh.Suppress(entry); err != nil {
					return err
				}
				if err := a.saveSuppressions(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "suppressed %s %s\n", entry.Type, entry.Value)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "block reason reported for matching prospects")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire the suppression after this duration")
	return cmd
}

func (c *cli) newSuppressRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <company|domain|email> <value>",
		Short: "Drop a suppression",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := compliance.ParseEntryType(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(_ context.Context, a *app) error {
				if a.cfg.Compliance.SuppressionFile == "" {
					return errNoSuppressionFile
				}
				if !a.gate.Remove(t, args[1]) {
					return fmt.Errorf("no %s suppression for %q", t, args[1])
				}
				if err := a.saveSuppressions(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s %s\n", t, args[1])
				return nil
			})
		},
	}
}

func (c *cli) newSuppressListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded suppressions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(_ context.Context, a *app) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tVALUE\tREASON\tEXPIRES")
				for _, e := range a.mesh.Suppressions() {
					expires := "-"
					if e.ExpiresAt != nil {
						expires = e.ExpiresAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Type, e.Value, e.BlockReason(), expires)
				}
				return tw.Flush()
			})
		},
	}
}
