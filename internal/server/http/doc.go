// Package httpserver exposes a shardq runtime over a JSON REST API built on
// chi: enqueue, read, peek, ack and poison endpoints, queue administration,
// a health probe and Prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
