package agent

import (
	"errors"
	"fmt"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/model"
)

// Chain maps every executable stage to the agent implementing it.
type Chain map[core.Stage]core.AgentFunc

// NewChain builds the fixed eight-stage chain.
func NewChain(optFns ...func(o *Options)) Chain {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return Chain{
		core.StageHunter:     Hunter(opts),
		core.StageEnricher:   Enricher(opts),
		core.StageContactor:  Contactor(opts),
		core.StageScorer:     Scorer(opts),
		core.StageWriter:     Writer(opts),
		core.StageCompliance: Compliance(opts),
		core.StageSequencer:  Sequencer(opts),
		core.StageCurator:    Curator(opts),
	}
}

// Agent returns the function for stage s.
func (c Chain) Agent(s core.Stage) (core.AgentFunc, error) {
	fn, ok := c[s]
	if !ok || fn == nil {
		return nil, fmt.Errorf("no agent registered for stage %s", s)
	}
	return fn, nil
}

// With returns a copy of the chain with stage s implemented by fn.
func (c Chain) With(s core.Stage, fn core.AgentFunc) Chain {
	out := make(Chain, len(c))
	for k, v := range c {
		out[k] = v
	}
	out[s] = fn
	return out
}

// Validate reports a missing stage.
func (c Chain) Validate() error {
	for _, s := range core.Stages() {
		if _, err := c.Agent(s); err != nil {
			return err
		}
	}
	return nil
}

// classify converts a collaborator failure into a stage error. Engine faults
// and agent errors pass through unchanged.
func classify(stage core.Stage, reason string, err error) error {
	if err == nil {
		return nil
	}
	var ae *core.AgentError
	if core.IsEngineFault(err) || errors.As(err, &ae) {
		return err
	}
	if core.IsTransient(err) || errors.Is(err, model.ErrTransient) {
		return core.NewRetryableError(stage, reason, err)
	}
	if re, ok := core.IsRemoteError(err); ok {
		code := re.Code
		if code == "" {
			code = re.Message
		}
		return core.NewTerminalError(stage, code, err)
	}
	return core.NewTerminalError(stage, reason, err)
}

// degradable reports errors a stage may absorb by skipping optional work.
func degradable(err error) bool {
	_, remote := core.IsRemoteError(err)
	return remote
}
