// Package config loads shardq runtime configuration. Default() gives the
// baseline, Load overlays a JSON or YAML file and FromEnv overlays SHARDQ_*
// environment variables, in that order.
//
// Example:
//
//	cfg, err := config.Load("/etc/shardq.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg})
package config
