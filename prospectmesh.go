// Package prospectmesh provides a high-level façade over the pipeline Engine
// and its collaborators (prospect store, suppression list, vector index,
// metrics & logging). Most applications interact with this package by:
//  1. Creating a ProspectMesh via New() (optionally overriding the default
//     in-memory stores and wiring RPC collaborators and an LLM)
//  2. Seeding companies, suppression entries and reference knowledge
//  3. Running the pipeline asynchronously (Run) or synchronously (RunSync)
//     and reading prospects and handoff packets back
//
// The façade delegates orchestration to engine.Engine while keeping setup
// concise. All defaults are safe for local development and testing;
// production deployments typically supply a durable store, RPC collaborators
// and a structured logger.
package prospectmesh

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/prospectmesh/agent"
	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/engine"
	"github.com/hupe1980/prospectmesh/logging"
	"github.com/hupe1980/prospectmesh/metrics"
	"github.com/hupe1980/prospectmesh/model"
	"github.com/hupe1980/prospectmesh/seed"
	"github.com/hupe1980/prospectmesh/store"
	"github.com/hupe1980/prospectmesh/stream"
	"github.com/prometheus/client_golang/prometheus"
)

// Options configures the ProspectMesh instance.
type Options struct {
	// Engine configuration (parallelism, retries, backoff)
	EngineConfig engine.Config

	// AgentOptions tune the agent chain.
	AgentOptions []func(o *agent.Options)

	// StreamOptions tune the event bus (subscriber buffers, replay).
	StreamOptions []func(o *stream.Options)

	// Stores (defaults to in-memory implementations if not provided)
	Store      core.ProspectStore
	Directory  core.Directory
	Handoffs   core.HandoffStore
	Proposals  core.ProposalStore
	Compliance *compliance.Engine

	// Index and Embedder enable similarity lookups and near-duplicate draft
	// detection. Both are optional.
	Index    core.VectorIndex
	Embedder model.Embedder

	// Collaborators
	Search    core.Search
	Email     core.Email
	Calendar  core.Calendar
	Generator model.Generator

	// Registerer receives the pipeline metrics; nil disables metrics.
	Registerer     prometheus.Registerer
	MetricsOptions []func(o *metrics.Options)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// ProspectMesh is the high-level façade aggregating the engine and its
// services.
type ProspectMesh struct {
	opts      Options
	engine    *engine.Engine
	callbacks *engine.CallbackManager
	metrics   *metrics.Metrics
}

// New creates a new ProspectMesh instance with optional overrides. Any unset
// store is initialized with an in-memory implementation. The memory store
// also serves as directory and handoff store unless those are given.
func New(optFns ...func(o *Options)) (*ProspectMesh, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Store == nil {
		mem := store.NewMemoryStore()
		opts.Store = mem
		if opts.Directory == nil {
			opts.Directory = mem
		}
		if opts.Handoffs == nil {
			opts.Handoffs = mem
		}
	}
	if opts.Directory == nil {
		if d, ok := opts.Store.(core.Directory); ok {
			opts.Directory = d
		}
	}
	if opts.Handoffs == nil {
		if h, ok := opts.Store.(core.HandoffStore); ok {
			opts.Handoffs = h
		}
	}
	if opts.Compliance == nil {
		opts.Compliance = compliance.New(func(o *compliance.Options) { o.Logger = opts.Logger })
	}

	streamOpts := append([]func(o *stream.Options){func(o *stream.Options) { o.Logger = opts.Logger }}, opts.StreamOptions...)
	var bus engine.Bus = stream.New(streamOpts...)

	callbacks := engine.NewCallbackManager()
	var m *metrics.Metrics
	if opts.Registerer != nil {
		var err error
		if m, err = metrics.New(opts.Registerer, opts.MetricsOptions...); err != nil {
			return nil, err
		}
		m.Register(callbacks)
		bus = m.InstrumentBus(bus)
	}

	eng := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Store = opts.Store
		o.Bus = bus
		o.Chain = agent.NewChain(opts.AgentOptions...)
		o.Index = opts.Index
		o.Compliance = opts.Compliance
		o.Search = opts.Search
		o.Email = opts.Email
		o.Calendar = opts.Calendar
		o.Directory = opts.Directory
		o.Handoffs = opts.Handoffs
		if opts.Proposals != nil {
			o.Proposals = opts.Proposals
		}
		o.Generator = opts.Generator
		o.Embedder = opts.Embedder
		o.Callbacks = callbacks
		o.Logger = opts.Logger
	})

	return &ProspectMesh{opts: opts, engine: eng, callbacks: callbacks, metrics: m}, nil
}

// Engine exposes the underlying engine.
func (m *ProspectMesh) Engine() *engine.Engine { return m.engine }

// Metrics returns the collectors, or nil when metrics are disabled. Pass
// Metrics().ObserveRPC as rpc.Options.Observer to count collaborator calls.
func (m *ProspectMesh) Metrics() *metrics.Metrics { return m.metrics }

// Run starts an asynchronous run returning outcome & error channels.
func (m *ProspectMesh) Run(ctx context.Context, scope core.Scope) (string, <-chan core.Outcome, <-chan error, error) {
	return m.engine.RunPipeline(ctx, scope)
}

// RunSync executes a run to completion and returns every outcome.
func (m *ProspectMesh) RunSync(ctx context.Context, scope core.Scope) (string, []core.Outcome, error) {
	return m.engine.RunPipelineSync(ctx, scope)
}

// Subscribe attaches to the event stream of a running run.
func (m *ProspectMesh) Subscribe(ctx context.Context, runID string) (<-chan core.Event, func(), error) {
	return m.engine.Subscribe(ctx, runID)
}

// OnRunStart registers fn to run when a run starts, before its first event.
// Subscribing from fn observes the complete stream.
func (m *ProspectMesh) OnRunStart(fn func(ctx context.Context, runID string)) {
	m.callbacks.RegisterCallback(engine.NewFunctionCallback(engine.CallbackRunStart,
		func(ctx context.Context, c *engine.CallbackContext) error {
			fn(ctx, c.RunID)
			return nil
		}))
}

// Callbacks returns the callback manager observing every run.
func (m *ProspectMesh) Callbacks() *engine.CallbackManager { return m.callbacks }

// Cancel stops a running run.
func (m *ProspectMesh) Cancel(runID string) error { return m.engine.Cancel(runID) }

// Prospect returns the committed state of a prospect.
func (m *ProspectMesh) Prospect(ctx context.Context, id string) (core.Prospect, error) {
	return m.engine.Prospect(ctx, id)
}

// Prospects lists every stored prospect.
func (m *ProspectMesh) Prospects(ctx context.Context) ([]core.Prospect, error) {
	return m.opts.Store.List(ctx)
}

// Handoff returns the handoff packet of a completed prospect.
func (m *ProspectMesh) Handoff(ctx context.Context, id string) (core.HandoffPacket, error) {
	return m.engine.Handoff(ctx, id)
}

// Suppress records suppression entries.
func (m *ProspectMesh) Suppress(entries ...compliance.Entry) error {
	return m.opts.Compliance.Add(entries...)
}

// Suppressions lists the recorded suppression entries.
func (m *ProspectMesh) Suppressions() []compliance.Entry {
	return m.opts.Compliance.List()
}

// Seed imports a seed document into the store, suppression list and index.
func (m *ProspectMesh) Seed(ctx context.Context, doc *seed.Document, optFns ...func(o *seed.Options)) (seed.Report, error) {
	base := func(o *seed.Options) {
		o.Store = m.opts.Store
		o.Suppressor = m.opts.Compliance
		o.Index = m.opts.Index
		o.Embedder = m.opts.Embedder
		o.Logger = m.opts.Logger
	}
	im := seed.NewImporter(append([]func(o *seed.Options){base}, optFns...)...)
	return im.Import(ctx, doc)
}

// Reset clears run state (prospects, proposals). Suppression data is kept.
func (m *ProspectMesh) Reset(ctx context.Context) error { return m.engine.Reset(ctx) }

// Health checks every collaborator that supports it and joins the failures.
func (m *ProspectMesh) Health(ctx context.Context) error {
	var errs []error
	for name, c := range map[string]any{
		"search":   m.opts.Search,
		"email":    m.opts.Email,
		"calendar": m.opts.Calendar,
		"store":    m.opts.Store,
	} {
		hc, ok := c.(core.HealthChecker)
		if !ok {
			continue
		}
		if err := hc.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
