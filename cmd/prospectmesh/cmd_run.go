package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/spf13/cobra"
)

func (c *cli) newRunCmd() *cobra.Command {
	var (
		all     bool
		jsonOut bool
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "run [prospect-id...]",
		Short: "Run the pipeline for the given prospects or every stored prospect",
		Long: `Runs the given prospects through the agent chain and streams the run's
events while it progresses. Finished prospects report their stored outcome
without repeating side effects. Interrupting the command cancels the run; the
last committed stage of every prospect is kept.`,
		Args: func(_ *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("--all cannot be combined with prospect ids")
			}
			if !all && len(args) == 0 {
				return errors.New("give prospect ids or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.watchSuppressions(ctx); err != nil {
					return err
				}
				p := &printer{out: cmd.OutOrStdout(), json: jsonOut, quiet: quiet}
				return runPipeline(ctx, a, core.Scope{IDs: args}, p)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "run every stored prospect")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print events as JSON lines")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print outcomes only")
	return cmd
}

// runPipeline starts a run, streams its events to p and waits for the last
// outcome. The run error is returned after the stream was drained.
func runPipeline(ctx context.Context, a *app, scope core.Scope, p *printer) error {
	var (
		once sync.Once
		done = make(chan struct{})
	)
	a.mesh.OnRunStart(func(ctx context.Context, runID string) {
		once.Do(func() {
			ch, _, err := a.mesh.Subscribe(context.WithoutCancel(ctx), runID)
			if err != nil {
				a.logger.Warn("event stream unavailable run_id=%s error=%v", runID, err)
				close(done)
				return
			}
			go func() {
				defer close(done)
				for ev := range ch {
					p.event(ev)
				}
			}()
		})
	})

	_, outCh, errCh, err := a.mesh.Run(ctx, scope)
	if err != nil {
		return err
	}

	var outcomes []core.Outcome
	for o := range outCh {
		outcomes = append(outcomes, o)
	}
	runErr := <-errCh
	<-done

	p.summary(outcomes)
	return runErr
}

// printer renders run events. Tokens of one prospect are written inline; a
// prefix marks every switch to another prospect.
type printer struct {
	out   io.Writer
	json  bool
	quiet bool

	mu       sync.Mutex
	inTokens string
}

func (p *printer) event(ev core.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		if p.quiet && ev.Kind != core.EventOutcome {
			return
		}
		data, err := json.Marshal(ev)
		if err == nil {
			fmt.Fprintln(p.out, string(data))
		}
		return
	}

	if ev.Kind == core.EventToken {
		if p.quiet {
			return
		}
		if p.inTokens != ev.ProspectID {
			p.endTokens()
			fmt.Fprintf(p.out, "[%s] draft v%d: ", ev.ProspectID, ev.DraftVersion)
			p.inTokens = ev.ProspectID
		}
		fmt.Fprint(p.out, ev.Text)
		return
	}
	p.endTokens()

	switch ev.Kind {
	case core.EventStage:
		if !p.quiet {
			fmt.Fprintf(p.out, "[%s] %s committed\n", ev.ProspectID, ev.Stage)
		}
	case core.EventAgentError:
		if !p.quiet {
			retry := ""
			if ev.Retryable != nil && *ev.Retryable {
				retry = " (retrying)"
			}
			fmt.Fprintf(p.out, "[%s] %s error%s: %s\n", ev.ProspectID, ev.Stage, retry, ev.Text)
		}
	case core.EventPolicyVerdict:
		if !p.quiet {
			fmt.Fprintf(p.out, "[%s] compliance %s policy=%s %s\n", ev.ProspectID, ev.Text, ev.Metadata["policy"], ev.Metadata["reason"])
		}
	case core.EventOutcome:
		fmt.Fprintf(p.out, "[%s] %s\n", ev.ProspectID, ev.Text)
	}
}

func (p *printer) endTokens() {
	if p.inTokens != "" {
		fmt.Fprintln(p.out)
		p.inTokens = ""
	}
}

func (p *printer) summary(outcomes []core.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		return
	}
	p.endTokens()

	counts := map[core.OutcomeKind]int{}
	for _, o := range outcomes {
		counts[o.Kind]++
	}
	fmt.Fprintf(p.out, "%d prospects: %d completed, %d blocked, %d failed\n",
		len(outcomes), counts[core.OutcomeCompleted], counts[core.OutcomeBlocked], counts[core.OutcomeFailed])
}
