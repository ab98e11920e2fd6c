// Package runtime wires config, storage, metrics and queue handles into a
// single shardq node. It exposes Open/Close, a health check and cached
// queue handles whose lock sweepers it owns.
//
// Example:
//
//	rt, err := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//	q, _ := rt.DefaultQueue(ctx)
//	_, _ = q.Producer().Enqueue(ctx, &queue.Message{Body: []byte("hello")})
package runtime
