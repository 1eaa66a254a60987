package main

import (
	"context"
	"fmt"

	"github.com/hupe1980/prospectmesh/seed"
	"github.com/spf13/cobra"
)

func (c *cli) newSeedCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Import companies, suppressions and knowledge from a YAML or JSON file",
		Long: `Imports a seed document. Companies become new prospects; a prospect that is
already stored keeps its progress unless --overwrite is given. Suppressions
are appended to compliance.suppression_file when one is configured. Knowledge
records are embedded into the vector index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				rep, err := a.mesh.Seed(ctx, doc, func(o *seed.Options) { o.Overwrite = overwrite })
				if err != nil {
					return err
				}
				if rep.Suppressions > 0 && a.cfg.Compliance.SuppressionFile != "" {
					if err := a.saveSuppressions(); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d companies (%d kept, %d duplicates), %d suppressions, %d knowledge records\n",
					rep.Companies, rep.Kept, rep.Duplicates, rep.Suppressions, rep.Knowledge)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace stored prospects instead of keeping their progress")
	return cmd
}

func (c *cli) newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every prospect and recorded proposal; suppressions are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("reset drops all prospect state; confirm with --yes")
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.mesh.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "prospect state reset")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func (c *cli) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the configured collaborators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.mesh.Health(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
}
