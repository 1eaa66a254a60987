package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/prospectmesh/agent"
	"github.com/hupe1980/prospectmesh/artifact"
	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/dedup"
	"github.com/hupe1980/prospectmesh/logging"
	"github.com/hupe1980/prospectmesh/model"
	"github.com/hupe1980/prospectmesh/store"
	"github.com/hupe1980/prospectmesh/stream"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrRunNotFound is returned by Cancel for unknown or finished runs.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunsActive is returned by Reset while runs are in progress.
	ErrRunsActive = errors.New("runs in progress")

	// ErrNoHandoff is returned by Handoff before the prospect completed.
	ErrNoHandoff = errors.New("handoff not available")
)

// Config defines tuning parameters for the Engine's operational behavior.
//
// Collaborator timeouts and throttling belong to the collaborators (see the
// rpc package) and generation limits to the agent options.
type Config struct {
	// Parallelism bounds the number of prospects processed at once.
	Parallelism int

	// MaxStageRetries is the number of extra attempts a stage gets after a
	// retryable error.
	MaxStageRetries int

	// BackoffInitial is the sleep before the first retry. It doubles per
	// attempt up to BackoffMax.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64

	// StageTimeout bounds a single stage attempt. Zero disables it.
	StageTimeout time.Duration

	// MaxGenerations caps LLM generations per run. Zero is unlimited.
	MaxGenerations int
}

// DefaultConfig provides the default tuning:
//   - Parallelism: 4
//   - MaxStageRetries: 3
//   - BackoffInitial/BackoffMax: 200ms/5s with 20% jitter
var DefaultConfig = Config{
	Parallelism:       4,
	MaxStageRetries:   3,
	BackoffInitial:    200 * time.Millisecond,
	BackoffMax:        5 * time.Second,
	BackoffJitterFrac: 0.2,
}

// Bus is the event transport of runs.
type Bus interface {
	core.Emitter
	Open(runID string) error
	Close(runID string) error
	Subscribe(ctx context.Context, runID string) (<-chan core.Event, func(), error)
}

// Options configures an Engine instance using the functional options pattern.
//
// Every collaborator is optional; agents degrade or fail as documented for
// their stage. Store, Bus, Chain, Compliance and Proposals default to
// in-memory implementations.
//
// Example:
//
//	eng := New(func(o *Options) {
//	    o.Config.Parallelism = 8
//	    o.Search = rpc.NewSearchClient(searchURL)
//	    o.Generator = openai.NewGenerator(client, "gpt-4o-mini")
//	})
type Options struct {
	Config Config

	Store core.ProspectStore
	Bus   Bus
	Chain agent.Chain

	Index      core.VectorIndex
	Compliance core.ComplianceGate
	Search     core.Search
	Email      core.Email
	Calendar   core.Calendar
	Directory  core.Directory
	Handoffs   core.HandoffStore
	Proposals  core.ProposalStore
	Generator  model.Generator
	Embedder   model.Embedder

	// Clock overrides the wall clock seen by agents.
	Clock core.Clock

	// Callbacks observe stage and run lifecycle points.
	Callbacks *CallbackManager

	Logger logging.Logger
}

// Engine drives prospects through the agent chain.
//
// Concurrency model:
//   - Up to Config.Parallelism prospects run at once; stages of one prospect
//     run strictly in order
//   - A prospect is owned by at most one run; other runs wait for it
//   - The result of stage N is persisted before stage N+1 starts
//   - An EngineFault cancels the run; every unfinished prospect is reported
//     as failed
type Engine struct {
	opts      Options
	config    Config
	callbacks *CallbackManager
	logger    logging.Logger

	// Active run tracking
	runs   map[string]context.CancelFunc
	runsMu sync.RWMutex

	// Prospect ownership: id -> channel closed on release
	owners   map[string]chan struct{}
	ownersMu sync.Mutex
}

// New creates an Engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:    DefaultConfig,
		Store:     store.NewMemoryStore(),
		Chain:     agent.NewChain(),
		Proposals: artifact.NewMemoryStore(),
		Callbacks: NewCallbackManager(),
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Bus == nil {
		opts.Bus = stream.New(func(o *stream.Options) { o.Logger = opts.Logger })
	}
	if opts.Compliance == nil {
		opts.Compliance = compliance.New(func(o *compliance.Options) {
			o.Clock = opts.Clock
			o.Logger = opts.Logger
		})
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Config.Parallelism <= 0 {
		opts.Config.Parallelism = DefaultConfig.Parallelism
	}
	if opts.Config.MaxStageRetries < 0 {
		opts.Config.MaxStageRetries = 0
	}
	if opts.Config.BackoffInitial <= 0 {
		opts.Config.BackoffInitial = DefaultConfig.BackoffInitial
	}
	if opts.Config.BackoffMax < opts.Config.BackoffInitial {
		opts.Config.BackoffMax = opts.Config.BackoffInitial
	}

	return &Engine{
		opts:      opts,
		config:    opts.Config,
		callbacks: opts.Callbacks,
		logger:    opts.Logger,
		runs:      make(map[string]context.CancelFunc),
		owners:    make(map[string]chan struct{}),
	}
}

// workItem is one requested prospect of a run.
type workItem struct {
	id      string
	company *core.Company
}

// RunPipeline starts an asynchronous run over scope. An empty scope selects
// every stored prospect.
//
// Exactly one outcome per requested prospect is delivered on the outcome
// channel, which is closed when the run ends. An EngineFault aborting the run
// is sent on the error channel (buffered 1) before it closes.
func (e *Engine) RunPipeline(ctx context.Context, scope core.Scope) (string, <-chan core.Outcome, <-chan error, error) {
	items, err := e.resolve(ctx, scope)
	if err != nil {
		return "", nil, nil, err
	}

	runID := uuid.NewString()
	if err := e.opts.Bus.Open(runID); err != nil {
		return "", nil, nil, fmt.Errorf("failed to open run stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	e.runsMu.Lock()
	e.runs[runID] = cancel
	e.runsMu.Unlock()

	outcomesCh := make(chan core.Outcome, len(items))
	errorsCh := make(chan error, 1)

	ac := e.agentContext(runID)
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackRunStart, &CallbackContext{RunID: runID}); err != nil {
		ac.LogWarn("run start callback failed run_id=%s: %v", runID, err)
	}
	ac.LogInfo("run started run_id=%s prospects=%d", runID, len(items))

	go func() {
		defer func() {
			ac.Emit(context.WithoutCancel(runCtx), core.NewRunCompleteEvent(runID))
			if err := e.opts.Bus.Close(runID); err != nil {
				ac.LogDebug("closing run stream run_id=%s: %v", runID, err)
			}

			e.runsMu.Lock()
			delete(e.runs, runID)
			e.runsMu.Unlock()
			cancel()

			close(outcomesCh)
			close(errorsCh)
		}()

		if err := e.run(runCtx, ac, items, outcomesCh); err != nil {
			ac.LogError("run aborted run_id=%s: %v", runID, err)
			errorsCh <- err
		}
		_ = e.callbacks.ExecuteCallbacks(context.WithoutCancel(runCtx), CallbackRunComplete, &CallbackContext{RunID: runID})
	}()

	return runID, outcomesCh, errorsCh, nil
}

// RunPipelineSync executes a run to completion and returns all outcomes. The
// error is the run's EngineFault, or ctx.Err() when ctx ended first.
func (e *Engine) RunPipelineSync(ctx context.Context, scope core.Scope) (string, []core.Outcome, error) {
	runID, outcomesCh, errorsCh, err := e.RunPipeline(ctx, scope)
	if err != nil {
		return "", nil, err
	}

	var outcomes []core.Outcome
	for o := range outcomesCh {
		outcomes = append(outcomes, o)
	}

	if err := <-errorsCh; err != nil {
		return runID, outcomes, err
	}

	return runID, outcomes, ctx.Err()
}

// Cancel stops a running run. In-flight stages observe the cancellation and
// every unfinished prospect is reported as failed with reason "cancelled".
func (e *Engine) Cancel(runID string) error {
	e.runsMu.RLock()
	cancel, ok := e.runs[runID]
	e.runsMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	cancel()
	return nil
}

// Subscribe attaches to the event stream of a running run.
func (e *Engine) Subscribe(ctx context.Context, runID string) (<-chan core.Event, func(), error) {
	return e.opts.Bus.Subscribe(ctx, runID)
}

// ActiveRuns returns the number of runs in progress.
func (e *Engine) ActiveRuns() int {
	e.runsMu.RLock()
	defer e.runsMu.RUnlock()
	return len(e.runs)
}

// Prospect returns the committed state of a prospect.
func (e *Engine) Prospect(ctx context.Context, id string) (core.Prospect, error) {
	return e.opts.Store.Get(ctx, id)
}

// Handoff returns the handoff packet of a completed prospect.
func (e *Engine) Handoff(ctx context.Context, id string) (core.HandoffPacket, error) {
	p, err := e.opts.Store.Get(ctx, id)
	if err != nil {
		return core.HandoffPacket{}, err
	}
	if p.Handoff == nil {
		return core.HandoffPacket{}, fmt.Errorf("%w: %s", ErrNoHandoff, id)
	}
	return *p.Handoff, nil
}

// Reset clears prospect state and recorded proposals. Suppression data is
// left untouched. It refuses to run while runs are in progress.
func (e *Engine) Reset(ctx context.Context) error {
	if n := e.ActiveRuns(); n > 0 {
		return fmt.Errorf("%w: %d", ErrRunsActive, n)
	}
	if err := e.opts.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset prospect store: %w", err)
	}
	if c, ok := e.opts.Proposals.(interface{ Clear() }); ok {
		c.Clear()
	}
	e.logger.Info("engine state reset")
	return nil
}

// resolve turns a scope into the ordered, duplicate free work list.
func (e *Engine) resolve(ctx context.Context, scope core.Scope) ([]workItem, error) {
	var items []workItem
	seen := make(map[string]struct{})
	add := func(it workItem) {
		if _, ok := seen[it.id]; ok {
			return
		}
		seen[it.id] = struct{}{}
		items = append(items, it)
	}

	if len(scope.IDs) == 0 && len(scope.Companies) == 0 {
		all, err := e.opts.Store.List(ctx)
		if err != nil {
			return nil, core.NewEngineFault("store", err)
		}
		for _, p := range all {
			add(workItem{id: p.ID})
		}
		return items, nil
	}

	for _, id := range scope.IDs {
		if id = strings.TrimSpace(id); id != "" {
			add(workItem{id: id})
		}
	}

	keys := make(map[string]struct{})
	for _, c := range scope.Companies {
		id := dedup.ProspectID(c)
		if id == "" {
			e.logger.Warn("company without identity skipped name=%q", c.Name)
			continue
		}
		key := dedup.ProspectKey(c)
		if _, dup := keys[key]; dup {
			e.logger.Debug("duplicate company skipped id=%s key=%s", id, key)
			continue
		}
		keys[key] = struct{}{}
		add(workItem{id: id, company: &c})
	}

	return items, nil
}

func (e *Engine) agentContext(runID string) *core.AgentContext {
	logger := e.logger
	if pl, ok := logger.(*logging.PipelineLogger); ok {
		logger = pl.WithRun(runID)
	}

	ac := core.NewAgentContext(runID, logger)
	ac.Index = e.opts.Index
	ac.Compliance = e.opts.Compliance
	ac.Search = e.opts.Search
	ac.Email = e.opts.Email
	ac.Calendar = e.opts.Calendar
	ac.Directory = e.opts.Directory
	ac.Handoffs = e.opts.Handoffs
	ac.Proposals = e.opts.Proposals
	ac.Generator = e.opts.Generator
	ac.Embedder = e.opts.Embedder
	ac.Emitter = e.opts.Bus
	if e.opts.Clock != nil {
		ac.Clock = e.opts.Clock
	}
	if e.config.MaxGenerations > 0 {
		ac.Limiter = core.NewGenerationLimiter(e.config.MaxGenerations)
	}
	return ac
}

// run processes items on the bounded pool and reports one outcome per item.
func (e *Engine) run(ctx context.Context, ac *core.AgentContext, items []workItem, out chan<- core.Outcome) error {
	var (
		mu       sync.Mutex
		reported = make([]bool, len(items))
		stages   = make([]core.Stage, len(items))
	)

	// Outcomes are delivered even after the run was cancelled.
	emitCtx := context.WithoutCancel(ctx)
	report := func(i int, o core.Outcome) {
		mu.Lock()
		if reported[i] {
			mu.Unlock()
			return
		}
		reported[i] = true
		mu.Unlock()

		ac.Emit(emitCtx, core.NewOutcomeEvent(ac.RunID, o))
		_ = e.callbacks.ExecuteCallbacks(emitCtx, CallbackOnOutcome, &CallbackContext{
			RunID: ac.RunID, ProspectID: o.ProspectID, Stage: o.Stage, Outcome: &o,
		})
		ac.LogInfo("prospect finished prospect_id=%s outcome=%s", o.ProspectID, o)
		out <- o
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Parallelism)

	for i, it := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			track := func(s core.Stage) {
				mu.Lock()
				stages[i] = s
				mu.Unlock()
			}
			o, err := e.process(gctx, ac, it, track)
			if err != nil {
				return err
			}
			report(i, o)
			return nil
		})
	}

	err := g.Wait()

	var fault *core.EngineFault
	isFault := errors.As(err, &fault)

	reason := "cancelled"
	if isFault {
		reason = "batch aborted: " + fault.Error()
	}
	for i, it := range items {
		mu.Lock()
		s := stages[i]
		mu.Unlock()
		report(i, core.Failed(it.id, s, reason))
	}

	if isFault {
		return fault
	}
	return nil
}

// process owns one prospect for the duration of its remaining stages. A nil
// error means the outcome is final; errors are run cancellation or faults.
func (e *Engine) process(ctx context.Context, ac *core.AgentContext, it workItem, track func(core.Stage)) (core.Outcome, error) {
	// g.Go may hand over a slot after the run was aborted.
	if err := ctx.Err(); err != nil {
		return core.Outcome{}, err
	}

	release, err := e.acquire(ctx, it.id)
	if err != nil {
		return core.Outcome{}, err
	}
	defer release()

	p, err := e.load(ctx, it)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Failed(it.id, core.StageNew, "prospect not found"), nil
		}
		return core.Outcome{}, err
	}
	track(p.Stage)

	if p.Stage.Terminal() && p.Outcome != nil {
		ac.LogDebug("prospect already finished prospect_id=%s", p.ID)
		return *p.Outcome, nil
	}
	p.Outcome = nil

	for !p.Stage.Terminal() {
		if err := ctx.Err(); err != nil {
			return core.Outcome{}, err
		}

		stage := p.Stage.Next()
		track(stage)

		fn, err := e.opts.Chain.Agent(stage)
		if err != nil {
			return core.Outcome{}, core.NewEngineFault("chain", err)
		}

		next, err := e.runStage(ctx, ac, fn, stage, p)
		if err != nil {
			if core.IsEngineFault(err) || ctx.Err() != nil {
				return core.Outcome{}, err
			}

			o := core.Failed(p.ID, stage, reasonOf(err))
			p.Outcome = &o
			p.UpdatedAt = ac.Now()
			if err := e.opts.Store.Put(ctx, p); err != nil {
				return core.Outcome{}, core.NewEngineFault("store", err)
			}
			return o, nil
		}

		// Stages that ignore ctx must not commit into an aborted run.
		if err := ctx.Err(); err != nil {
			return core.Outcome{}, err
		}

		next.ID = p.ID
		next.Stage = p.Stage
		if err := next.Advance(stage); err != nil {
			return core.Outcome{}, core.NewEngineFault("engine", err)
		}
		next.UpdatedAt = ac.Now()

		if err := e.opts.Store.Put(ctx, next); err != nil {
			return core.Outcome{}, core.NewEngineFault("store", err)
		}
		p = next
		ac.Emit(ctx, core.NewStageEvent(ac.RunID, p.ID, stage))
	}

	if p.Outcome == nil {
		return core.Failed(p.ID, core.StageCurator, "no outcome recorded"), nil
	}
	return *p.Outcome, nil
}

// load fetches the stored prospect or seeds a new one from the company.
func (e *Engine) load(ctx context.Context, it workItem) (core.Prospect, error) {
	p, err := e.opts.Store.Get(ctx, it.id)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, core.ErrNotFound) && it.company != nil:
		p = core.NewProspect(*it.company)
		p.ID = it.id
		return p, nil
	case errors.Is(err, core.ErrNotFound):
		return p, err
	}
	return p, core.NewEngineFault("store", err)
}

// runStage invokes one agent with retries. The returned prospect is the
// agent's output; on error the input is returned unchanged.
func (e *Engine) runStage(ctx context.Context, ac *core.AgentContext, fn core.AgentFunc, stage core.Stage, p core.Prospect) (core.Prospect, error) {
	for attempt := 1; ; attempt++ {
		cbCtx := &CallbackContext{RunID: ac.RunID, ProspectID: p.ID, Stage: stage, Attempt: attempt}
		if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeStage, cbCtx); err != nil {
			return p, core.NewTerminalError(stage, "rejected by callback", err)
		}

		stageCtx, cancel := ctx, context.CancelFunc(func() {})
		if e.config.StageTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, e.config.StageTimeout)
		}
		start := time.Now()
		out, err := invoke(stageCtx, ac, fn, stage, p.Clone())
		cancel()

		cbCtx.Duration = time.Since(start)
		cbCtx.Err = err
		e.logStage(ac, p.ID, stage, attempt, cbCtx.Duration, err)
		_ = e.callbacks.ExecuteCallbacks(ctx, CallbackAfterStage, cbCtx)

		if err == nil {
			return out, nil
		}
		if core.IsEngineFault(err) || ctx.Err() != nil {
			return p, err
		}

		ac.Emit(ctx, core.NewAgentErrorEvent(ac.RunID, p.ID, stage, err))
		if !core.IsTransient(err) || attempt > e.config.MaxStageRetries {
			return p, err
		}

		_ = e.callbacks.ExecuteCallbacks(ctx, CallbackOnRetry, cbCtx)

		t := time.NewTimer(backoffSleep(e.config, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return p, ctx.Err()
		}
	}
}

// invoke calls fn and turns a panic into a terminal stage error.
func invoke(ctx context.Context, ac *core.AgentContext, fn core.AgentFunc, stage core.Stage, p core.Prospect) (out core.Prospect, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = p
			err = core.NewTerminalError(stage, "agent panicked", fmt.Errorf("%v", r))
		}
	}()
	return fn(ctx, ac, p)
}

type stageLogger interface {
	LogStage(stage string, attempt int, dur time.Duration, err error)
}

func (e *Engine) logStage(ac *core.AgentContext, prospectID string, stage core.Stage, attempt int, dur time.Duration, err error) {
	logger := ac.Logger()
	if pl, ok := logger.(*logging.PipelineLogger); ok {
		pl.WithProspect(prospectID).LogStage(stage.String(), attempt, dur, err)
		return
	}
	if sl, ok := logger.(stageLogger); ok {
		sl.LogStage(stage.String(), attempt, dur, err)
		return
	}
	if err != nil {
		ac.LogWarn("stage failed prospect_id=%s stage=%s attempt=%d: %v", prospectID, stage, attempt, err)
		return
	}
	ac.LogDebug("stage completed prospect_id=%s stage=%s duration=%s", prospectID, stage, dur)
}

// acquire blocks until the caller owns id or ctx ends.
func (e *Engine) acquire(ctx context.Context, id string) (func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.ownersMu.Lock()
		held, busy := e.owners[id]
		if !busy {
			ch := make(chan struct{})
			e.owners[id] = ch
			e.ownersMu.Unlock()

			return func() {
				e.ownersMu.Lock()
				delete(e.owners, id)
				e.ownersMu.Unlock()
				close(ch)
			}, nil
		}
		e.ownersMu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func reasonOf(err error) string {
	var ae *core.AgentError
	if errors.As(err, &ae) && ae.Reason != "" {
		return ae.Reason
	}
	return err.Error()
}

// backoffSleep returns the exponential delay before retry number attempt
// (1-based), capped and jittered.
func backoffSleep(cfg Config, attempt int) time.Duration {
	d := cfg.BackoffInitial
	for i := 1; i < attempt && d < cfg.BackoffMax; i++ {
		d *= 2
	}
	if d > cfg.BackoffMax {
		d = cfg.BackoffMax
	}
	if cfg.BackoffJitterFrac > 0 {
		delta := (rand.Float64()*2 - 1) * cfg.BackoffJitterFrac
		d = time.Duration(float64(d) * (1 + delta))
	}
	if d < 0 {
		return 0
	}
	return d
}

// Ensure Engine implements core.Pipeline.
var _ core.Pipeline = (*Engine)(nil)
