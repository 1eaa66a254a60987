package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *cli) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored prospects with their committed stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				prospects, err := a.mesh.Prospects(ctx)
				if err != nil {
					return err
				}
				sort.Slice(prospects, func(i, j int) bool { return prospects[i].ID < prospects[j].ID })

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCOMPANY\tSTAGE\tCOMPLIANCE\tOUTCOME")
				for _, p := range prospects {
					outcome := "-"
					if p.Outcome != nil {
						outcome = p.Outcome.String()
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Company.Name, p.Stage, p.Compliance.State, outcome)
				}
				return tw.Flush()
			})
		},
	}
}

func (c *cli) newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <prospect-id>",
		Short: "Print the committed state of a prospect as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				p, err := a.mesh.Prospect(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), p)
			})
		},
	}
}

func (c *cli) newHandoffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handoff <prospect-id>",
		Short: "Print the handoff packet of a completed prospect as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				h, err := a.mesh.Handoff(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), h)
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
