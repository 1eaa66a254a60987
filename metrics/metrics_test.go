package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/engine"
	"github.com/hupe1980/prospectmesh/internal/testutil"
	"github.com/hupe1980/prospectmesh/model"
	"github.com/hupe1980/prospectmesh/stream"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)

	_, err = New(reg, func(o *Options) { o.Namespace = "other" })
	assert.NoError(t, err)
}

func TestObserveRPC(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveRPC("search", "search.query", 10*time.Millisecond, nil)
	m.ObserveRPC("search", "search.query", time.Millisecond, &core.TransientError{Err: errors.New("refused")})
	m.ObserveRPC("email", "email.send", time.Millisecond, &core.RemoteError{Service: "email", Code: "mailbox_invalid"})

	assert.Equal(t, 1.0, promtest.ToFloat64(m.rpcCalls.WithLabelValues("search", "search.query", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.rpcCalls.WithLabelValues("search", "search.query", "transient")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.rpcCalls.WithLabelValues("email", "email.send", "remote_error")))
	assert.Equal(t, 2, promtest.CollectAndCount(m.rpcDuration))
}

func TestStageResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{core.NewEngineFault("vector", errors.New("down")), "fault"},
		{context.Canceled, "cancelled"},
		{core.NewRetryableError(core.StageEnricher, "search failed", errors.New("x")), "retryable"},
		{core.NewTerminalError(core.StageHunter, "malformed company identity", nil), "terminal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stageResult(tt.err))
	}
}

func TestMetrics_EngineRun(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	callbacks := engine.NewCallbackManager()
	m.Register(callbacks)

	eng := engine.New(func(o *engine.Options) {
		o.Callbacks = callbacks
		o.Bus = m.InstrumentBus(stream.New())
		o.Compliance = compliance.New()
		o.Search = &testutil.FakeSearch{}
		o.Email = &testutil.FakeEmail{}
		o.Calendar = &testutil.FakeCalendar{}
		o.Generator = model.NewMockGenerator("Subject: Hello\n", "Body: Hi there,", " let's talk.")
	})

	scope := core.Scope{Companies: []core.Company{
		{ID: "acme", Name: "Acme", Domain: "acme.com", Industry: "SaaS", Size: 250},
		{ID: "bad", Domain: "not a domain"},
	}}
	_, outcomes, err := eng.RunPipelineSync(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.outcomes.WithLabelValues("completed", "curator")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.outcomes.WithLabelValues("failed", "hunter")))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.tokens))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.verdicts.WithLabelValues("allowed", "can-spam")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.runsInFlight))
	assert.Positive(t, promtest.CollectAndCount(m.stageDuration))
}
