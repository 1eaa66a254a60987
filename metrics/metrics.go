package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Options configure the collectors.
type Options struct {
	// Namespace prefixes every metric name.
	Namespace string

	// StageBuckets are the histogram buckets of stage durations in seconds.
	StageBuckets []float64
}

// Metrics holds the pipeline collectors.
type Metrics struct {
	outcomes      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	tokens        prometheus.Counter
	verdicts      *prometheus.CounterVec
	runsInFlight  prometheus.Gauge
	rpcCalls      *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer, optFns ...func(o *Options)) (*Metrics, error) {
	opts := Options{
		Namespace:    "prospectmesh",
		StageBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ns := opts.Namespace
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "prospect_outcomes_total",
			Help:      "Prospect outcomes by kind and stage.",
		}, []string{"kind", "stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "stage_duration_seconds",
			Help:      "Duration of single stage attempts.",
			Buckets:   opts.StageBuckets,
		}, []string{"stage", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stage_retries_total",
			Help:      "Stage attempts retried after a retryable error.",
		}, []string{"stage"}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "draft_tokens_total",
			Help:      "Streamed draft fragments.",
		}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "policy_verdicts_total",
			Help:      "Compliance decisions by state and policy.",
		}, []string{"state", "policy"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "runs_in_flight",
			Help:      "Pipeline runs in progress.",
		}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rpc_calls_total",
			Help:      "Collaborator calls by service, method and result.",
		}, []string{"service", "method", "result"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "rpc_call_duration_seconds",
			Help:      "Collaborator call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method"}),
	}

	for _, c := range []prometheus.Collector{
		m.outcomes, m.stageDuration, m.retries, m.tokens,
		m.verdicts, m.runsInFlight, m.rpcCalls, m.rpcDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// Register hooks the collectors into the engine lifecycle.
func (m *Metrics) Register(cm *engine.CallbackManager) {
	cm.RegisterCallback(
		engine.NewFunctionCallback(engine.CallbackRunStart, func(context.Context, *engine.CallbackContext) error {
			m.runsInFlight.Inc()
			return nil
		}),
		engine.NewFunctionCallback(engine.CallbackRunComplete, func(context.Context, *engine.CallbackContext) error {
			m.runsInFlight.Dec()
			return nil
		}),
		engine.NewFunctionCallback(engine.CallbackAfterStage, func(_ context.Context, c *engine.CallbackContext) error {
			m.stageDuration.WithLabelValues(c.Stage.String(), stageResult(c.Err)).Observe(c.Duration.Seconds())
			return nil
		}),
		engine.NewFunctionCallback(engine.CallbackOnRetry, func(_ context.Context, c *engine.CallbackContext) error {
			m.retries.WithLabelValues(c.Stage.String()).Inc()
			return nil
		}),
		engine.NewFunctionCallback(engine.CallbackOnOutcome, func(_ context.Context, c *engine.CallbackContext) error {
			if c.Outcome != nil {
				m.outcomes.WithLabelValues(string(c.Outcome.Kind), c.Outcome.Stage.String()).Inc()
			}
			return nil
		}),
	)
}

// ObserveRPC records one collaborator call. Its signature matches
// rpc.Options.Observer.
func (m *Metrics) ObserveRPC(service, method string, d time.Duration, err error) {
	m.rpcCalls.WithLabelValues(service, method, rpcResult(err)).Inc()
	m.rpcDuration.WithLabelValues(service, method).Observe(d.Seconds())
}

// InstrumentBus counts the token and verdict events flowing through bus.
func (m *Metrics) InstrumentBus(bus engine.Bus) engine.Bus {
	return &instrumentedBus{Bus: bus, m: m}
}

type instrumentedBus struct {
	engine.Bus
	m *Metrics
}

func (b *instrumentedBus) Emit(ctx context.Context, runID string, ev core.Event) error {
	switch ev.Kind {
	case core.EventToken:
		b.m.tokens.Inc()
	case core.EventPolicyVerdict:
		b.m.verdicts.WithLabelValues(ev.Text, ev.Metadata["policy"]).Inc()
	}
	return b.Bus.Emit(ctx, runID, ev)
}

func stageResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case core.IsEngineFault(err):
		return "fault"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case core.IsTransient(err):
		return "retryable"
	}
	return "terminal"
}

func rpcResult(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := core.IsRemoteError(err); ok {
		return "remote_error"
	}
	if core.IsTransient(err) {
		return "transient"
	}
	return "error"
}
