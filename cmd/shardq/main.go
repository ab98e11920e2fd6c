package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/shardq/internal/cmd/client"
	serverrun "github.com/rzbill/shardq/internal/cmd/server"
	cfgpkg "github.com/rzbill/shardq/internal/config"
	"github.com/rzbill/shardq/internal/dispatch"
)

func main() {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()

	var serverURL string
	rootCmd := &cobra.Command{
		Use:           "shardq",
		Short:         "shardq sharded job queue",
		Long:          "shardq is a durable, sharded job queue with delayed, repeating and cron messages. This CLI runs the server and talks to it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SHARDQ_HTTP", "http://127.0.0.1:8080"), "Server base URL for client commands")
	rootCmd.PersistentFlags().String("config", os.Getenv("SHARDQ_CONFIG"), "Config file (yaml, json or toml)")

	apiURL := func() string { return serverURL }

	rootCmd.AddCommand(newServerCommand())
	rootCmd.AddCommand(clientcmd.NewQueueCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewMessageCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start a shardq node (HTTP API and optional worker)",
		Aliases: []string{"run"},
		Example: `  shardq server start --data-dir ./data
  shardq server start --backend redis --redis-addr localhost:6379
  shardq server start --exec 'jq . >> jobs.log' --workers-only`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(path)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			applyFlags(cmd, &cfg)

			execCmd, _ := cmd.Flags().GetString("exec")
			workersOnly, _ := cmd.Flags().GetBool("workers-only")
			var handler dispatch.Handler
			if execCmd != "" {
				handler = serverrun.ExecHandler(execCmd)
			}
			if err := serverrun.Run(context.Background(), serverrun.Options{
				Config:      cfg,
				DisableHTTP: workersOnly,
				Handler:     handler,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := startCmd.Flags()
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.String("http", "", "HTTP listen address (default :8080)")
	f.String("backend", "", "Storage backend: pebble|bolt|redis")
	f.String("redis-addr", "", "Redis address when --backend=redis")
	f.String("fsync", "", "Fsync mode for pebble: always|interval|never")
	f.String("queue", "", "Queue served by default and driven by --exec")
	f.Int("shards", 0, "Shard count for an auto-created queue")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	f.String("exec", "", "Shell command run per message; body on stdin, non-zero exit retries")
	f.Int("workers", 0, "Concurrent handler invocations for --exec")
	f.Bool("workers-only", false, "Run the --exec worker without the HTTP API")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

// applyFlags overlays explicitly set flags, which take precedence over the
// config file and SHARDQ_* variables.
func applyFlags(cmd *cobra.Command, cfg *cfgpkg.Config) {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	str("data-dir", &cfg.DataDir)
	str("http", &cfg.HTTP.Addr)
	str("backend", &cfg.Storage.Backend)
	str("redis-addr", &cfg.Storage.RedisAddr)
	str("fsync", &cfg.Storage.Fsync)
	str("queue", &cfg.Queue.Name)
	num("shards", &cfg.Queue.ShardCount)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	num("workers", &cfg.Dispatch.Workers)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
