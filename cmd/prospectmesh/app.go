package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/prospectmesh"
	"github.com/hupe1980/prospectmesh/agent"
	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/hupe1980/prospectmesh/config"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/logging"
	"github.com/hupe1980/prospectmesh/metrics"
	"github.com/hupe1980/prospectmesh/model"
	anthropicmodel "github.com/hupe1980/prospectmesh/model/anthropic"
	"github.com/hupe1980/prospectmesh/model/gemini"
	"github.com/hupe1980/prospectmesh/model/ollama"
	"github.com/hupe1980/prospectmesh/model/openai"
	"github.com/hupe1980/prospectmesh/rpc"
	"github.com/hupe1980/prospectmesh/store"
	"github.com/hupe1980/prospectmesh/store/sqlite"
	"github.com/hupe1980/prospectmesh/stream"
	"github.com/hupe1980/prospectmesh/vector"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var errNoSuppressionFile = errors.New("compliance.suppression_file is not configured")

// app is the wired pipeline of one command invocation.
type app struct {
	cfg    *config.Config
	logger logging.Logger
	mesh   *prospectmesh.ProspectMesh
	gate   *compliance.Engine
	index  *vector.Index

	closers []func() error
}

// newApp builds every component named by cfg. Logs go to logOut.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.logger, err = a.buildLogger(logOut); err != nil {
		return nil, err
	}

	agentOpts, err := cfg.AgentOptions()
	if err != nil {
		return nil, err
	}

	if a.gate, err = a.buildCompliance(); err != nil {
		return nil, err
	}

	a.index, err = vector.New(func(o *vector.Options) {
		o.PersistPath = cfg.Vector.PersistPath
		o.Compress = cfg.Vector.Compress
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	if err := a.index.Load(); err != nil {
		return nil, err
	}

	embedder, err := a.buildEmbedder()
	if err != nil {
		return nil, err
	}
	generator, err := a.buildGenerator(ctx)
	if err != nil {
		return nil, err
	}

	var observe func(service, method string, d time.Duration, err error)
	rpcOpts := a.rpcOptions(func(service, method string, d time.Duration, err error) {
		if observe != nil {
			observe(service, method, d, err)
		}
	})

	prospects, err := a.buildStore(rpcOpts)
	if err != nil {
		return nil, err
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	a.mesh, err = prospectmesh.New(func(o *prospectmesh.Options) {
		o.EngineConfig = cfg.EngineConfig()
		o.AgentOptions = []func(o *agent.Options){agentOpts}
		o.StreamOptions = []func(o *stream.Options){func(o *stream.Options) {
			o.SubscriberBuffer = cfg.Stream.SubscriberBuffer
			o.ReplayBufferSize = cfg.Stream.ReplayBufferSize
			o.SlowSubscriberTimeout = cfg.Stream.SlowSubscriberTimeout.Duration()
		}}
		o.Store = prospects
		o.Compliance = a.gate
		o.Index = a.index
		o.Embedder = embedder
		o.Generator = generator
		if cfg.Services.SearchURL != "" {
			o.Search = rpc.NewSearchClient(cfg.Services.SearchURL, rpcOpts)
		}
		if cfg.Services.EmailURL != "" {
			o.Email = rpc.NewEmailClient(cfg.Services.EmailURL, rpcOpts)
		}
		if cfg.Services.CalendarURL != "" {
			o.Calendar = rpc.NewCalendarClient(cfg.Services.CalendarURL, rpcOpts)
		}
		if reg != nil {
			o.Registerer = reg
			o.MetricsOptions = []func(o *metrics.Options){func(o *metrics.Options) { o.Namespace = cfg.Metrics.Namespace }}
		}
		o.Logger = a.logger
	})
	if err != nil {
		return nil, err
	}
	if m := a.mesh.Metrics(); m != nil {
		observe = m.ObserveRPC
	}

	if reg != nil {
		a.serveMetrics(reg)
	}

	return a, nil
}

func (a *app) buildLogger(out io.Writer) (logging.Logger, error) {
	level := logging.ParseLevel(a.cfg.Logging.Level)
	if a.cfg.Logging.Backend == "zap" {
		z, err := logging.NewZapLogger(level, a.cfg.Logging.Format)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			_ = z.Sync()
			return nil
		})
		return z, nil
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    a.cfg.Logging.Format,
		Output:    out,
		Component: "prospectmesh",
	}), nil
}

func (a *app) buildCompliance() (*compliance.Engine, error) {
	gate := compliance.New(func(o *compliance.Options) {
		o.Sender = a.cfg.Compliance.Sender
		o.Logger = a.logger
	})

	path := a.cfg.Compliance.SuppressionFile
	if path == "" {
		return gate, nil
	}
	entries, err := compliance.LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return gate, nil
		}
		return nil, err
	}
	if err := gate.Replace(entries); err != nil {
		return nil, err
	}
	return gate, nil
}

func (a *app) buildEmbedder() (model.Embedder, error) {
	e := a.cfg.Embedder
	switch e.Provider {
	case "hash":
		return model.NewHashEmbedder(e.Dimensions), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if e.Model != "" {
				o.EmbeddingModel = e.Model
			}
			if a.cfg.LLM.Provider == "openai" {
				o.APIKey = a.cfg.LLM.APIKey
				o.BaseURL = a.cfg.LLM.BaseURL
			}
		}), nil
	case "ollama":
		return ollama.New(func(o *ollama.Options) {
			if e.Model != "" {
				o.EmbeddingModel = e.Model
			}
			if a.cfg.LLM.Provider == "ollama" && a.cfg.LLM.BaseURL != "" {
				o.BaseURL = a.cfg.LLM.BaseURL
			}
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider %q", e.Provider)
	}
}

func (a *app) buildGenerator(ctx context.Context) (model.Generator, error) {
	l := a.cfg.LLM
	temp := *a.cfg.Agents.Temperature
	maxTokens := a.cfg.Agents.MaxTokens

	switch l.Provider {
	case "mock":
		return model.NewMockGenerator(
			"Subject: Customer experience at your company\n",
			"Body: Hi there,\n\n",
			"teams like yours cut churn by investing early in customer success. ",
			"Happy to share what worked for peers.",
		), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if l.Model != "" {
				o.Model = l.Model
			}
			o.APIKey = l.APIKey
			o.BaseURL = l.BaseURL
			o.Temperature = temp
			o.MaxCompletionTokens = int64(maxTokens)
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if l.Model != "" {
				o.Model = anthropic.Model(l.Model)
			}
			o.APIKey = l.APIKey
			o.Temperature = temp
			o.MaxTokens = int64(maxTokens)
		}), nil
	case "gemini":
		g, err := gemini.NewModel(ctx, func(o *gemini.Options) {
			if l.Model != "" {
				o.Model = l.Model
			}
			o.APIKey = l.APIKey
			o.BaseURL = l.BaseURL
			o.Temperature = temp
			o.MaxTokens = int32(maxTokens)
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case "ollama":
		return ollama.New(func(o *ollama.Options) {
			if l.Model != "" {
				o.Model = l.Model
			}
			if l.BaseURL != "" {
				o.BaseURL = l.BaseURL
			}
			o.Temperature = temp
			o.NumPredict = maxTokens
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", l.Provider)
	}
}

func (a *app) rpcOptions(observer func(service, method string, d time.Duration, err error)) func(o *rpc.Options) {
	s := a.cfg.Services
	limiter := rpc.NewLimiter(s.RateLimitRPS)
	return func(o *rpc.Options) {
		o.Timeout = s.Timeout.Duration()
		o.Limiter = limiter
		o.Logger = a.logger
		o.Observer = observer
	}
}

func (a *app) buildStore(rpcOpts func(o *rpc.Options)) (core.ProspectStore, error) {
	switch a.cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		st, err := sqlite.Open(a.cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	case "rpc":
		return rpc.NewStoreClient(a.cfg.Services.StoreURL, rpcOpts), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", a.cfg.Store.Driver)
	}
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed addr=%s error=%v", srv.Addr, err)
		}
	}()
	a.logger.Info("metrics server listening addr=%s", srv.Addr)

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// saveSuppressions writes the suppression list back to the configured file.
func (a *app) saveSuppressions() error {
	path := a.cfg.Compliance.SuppressionFile
	if path == "" {
		return errNoSuppressionFile
	}
	return compliance.SaveFile(path, a.gate.List())
}

// watchSuppressions reloads the suppression file on change until ctx ends.
func (a *app) watchSuppressions(ctx context.Context) error {
	if !a.cfg.Compliance.Watch {
		return nil
	}
	w, err := compliance.NewWatcher(a.gate, a.cfg.Compliance.SuppressionFile, a.logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	a.closers = append(a.closers, w.Close)
	return nil
}

// Close persists the vector index and releases every resource in reverse
// order of acquisition.
func (a *app) Close() error {
	var errs []error
	if a.index != nil {
		if err := a.index.Persist(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

