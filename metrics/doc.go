// Package metrics exposes pipeline activity as Prometheus collectors.
//
// Collectors are registered on a caller supplied registry so several engines
// (or tests) never collide on the default one:
//
//	reg := prometheus.NewRegistry()
//	m, err := metrics.New(reg)
//	if err != nil {
//	    return err
//	}
//	callbacks := engine.NewCallbackManager()
//	m.Register(callbacks)
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Callbacks = callbacks
//	    o.Bus = m.InstrumentBus(stream.New())
//	    o.Search = rpc.NewSearchClient(url, func(o *rpc.Options) { o.Observer = m.ObserveRPC })
//	})
package metrics
