// Package log provides shardq's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. It is backed by zap; callers
// never import zap directly, which keeps the call sites uniform:
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormat(log.FormatText),
//	)
//	l = l.With(log.Component("consumer"), log.Str("queue", "jobs"))
//	l.Info("claimed messages", log.Int("count", 3))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level, text or
// JSON format, output paths).
//
// # Interop
//
// RedirectStdLog routes the standard library logger (used by Pebble and
// net/http) through a Logger.
package log
