package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/prospectmesh/config"
	"github.com/spf13/cobra"
)

// cli holds the global flags shared by every command.
type cli struct {
	configPath string
	verbose    bool
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "prospectmesh",
		Short: "prospectmesh - customer experience outreach pipeline",
		Long: `prospectmesh drives prospects through a chain of agents:

  hunter -> enricher -> contactor -> scorer -> writer -> compliance -> sequencer -> curator

Every stage is committed to the prospect store before the next one starts, so
an interrupted run resumes where it stopped. Drafts are streamed token by token
while they are written, and nothing is sent without a compliance verdict.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "path to the YAML configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		c.newRunCmd(),
		c.newListCmd(),
		c.newShowCmd(),
		c.newHandoffCmd(),
		c.newSuppressCmd(),
		c.newSeedCmd(),
		c.newResetCmd(),
		c.newHealthCmd(),
	)
	return root
}

// withApp loads the configuration, wires the pipeline and runs fn with it.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.verbose {
		cfg.Logging.Level = "debug"
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	return fn(ctx, a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
