package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Interface compliance (compile-time assertions)
var (
	_ Logger = (*PipelineLogger)(nil)
	_ Logger = (*ZapAdapter)(nil)
	_ Logger = NoOpLogger{}
)

func newBufferLogger(buf *bytes.Buffer, level LogLevel) *PipelineLogger {
	cfg := DefaultLoggerConfig()
	cfg.Output = buf
	cfg.AddSource = false
	cfg.Level = level
	return NewLogger(cfg)
}

func TestPipelineLogger_ScopesRunAndProspect(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, LogLevelDebug).WithComponent("engine").WithRun("run-1").WithProspect("acme")

	l.Info("stage committed stage=%s", "hunter")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "stage committed stage=hunter", rec["msg"])
	assert.Equal(t, "engine", rec["component"])
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "acme", rec["prospect_id"])
}

func TestPipelineLogger_Attrs(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Output = &buf
	cfg.AddSource = false
	cfg.CustomAttrs = map[string]interface{}{"host": "worker-1"}
	base := NewLogger(cfg)

	base.WithAttr("batch", 3).Info("scoped")
	base.Info("unscoped")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "worker-1", first["host"])
	assert.EqualValues(t, 3, first["batch"])
	assert.Equal(t, "worker-1", second["host"])
	assert.NotContains(t, second, "batch")
}

func TestPipelineLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, LogLevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestPipelineLogger_DomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, LogLevelDebug)

	l.LogStage("enricher", 2, 10*time.Millisecond, errors.New("search down"))
	assert.Contains(t, buf.String(), `"stage":"enricher"`)
	assert.Contains(t, buf.String(), `"attempt":2`)
	assert.Contains(t, buf.String(), "search down")

	buf.Reset()
	l.LogRPCCall("email", "email.send", time.Millisecond, nil)
	assert.Contains(t, buf.String(), `"method":"email.send"`)

	buf.Reset()
	l.LogLLMCall("mock", 12, time.Millisecond, true, nil)
	assert.Contains(t, buf.String(), `"token_count":12`)
}

func TestZapAdapter_FormatsMessages(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	z := NewZapAdapter(zap.New(core)).With("run_id", "run-1")

	z.Info("prospect %s blocked", "acme")
	z.Debug("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "prospect acme blocked", entries[0].Message)
	assert.Equal(t, "run-1", entries[0].ContextMap()["run_id"])
	assert.Equal(t, "plain", entries[1].Message)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("ERROR"))
	assert.Equal(t, LogLevelInfo, ParseLevel(""))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}
