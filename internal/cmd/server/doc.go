// Package serverrun exposes the Run entrypoint the CLI uses to start a shardq
// node: the HTTP API and, optionally, an in-process dispatcher driving an
// exec handler. It owns lifecycle and graceful shutdown.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: config.Default(), Handler: serverrun.ExecHandler("cat")})
package serverrun
