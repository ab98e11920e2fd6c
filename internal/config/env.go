package config

import (
	"strings"
	"unicode"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "SHARDQ"

// envKeys lists the settings that can be overridden from the environment.
var envKeys = []string{
	"dataDir",
	"storage.backend",
	"storage.fsync",
	"storage.fsyncInterval",
	"storage.boltFile",
	"storage.redisAddr",
	"storage.redisKeyPrefix",
	"storage.redisWaitReplicas",
	"queue.name",
	"queue.autoCreate",
	"queue.shardCount",
	"queue.leaseDuration",
	"queue.poisonLocation",
	"queue.shardPolicy",
	"queue.consistency",
	"sweeper.enabled",
	"sweeper.interval",
	"sweeper.maxPerTick",
	"http.addr",
	"http.rateLimit",
	"http.rateWindow",
	"http.jwtSecret",
	"http.certFile",
	"http.keyFile",
	"dispatch.consumer",
	"dispatch.workers",
	"dispatch.batchSize",
	"dispatch.pollInterval",
	"dispatch.pollRate",
	"dispatch.maxAttempts",
	"dispatch.retryBackoff",
	"dispatch.maxBackoff",
	"log.level",
	"log.format",
	"log.outputs",
}

// EnvName returns the variable that overrides key, e.g.
// "queue.leaseDuration" -> "SHARDQ_QUEUE_LEASE_DURATION".
func EnvName(key string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	b.WriteByte('_')
	prev := rune(0)
	for _, r := range key {
		switch {
		case r == '.':
			b.WriteByte('_')
		case unicode.IsUpper(r) && prev != '.' && prev != 0:
			b.WriteByte('_')
			b.WriteRune(r)
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
		prev = r
	}
	return b.String()
}

// FromEnv overlays SHARDQ_* environment variables onto cfg. If any variable
// fails to decode, cfg is left unchanged.
func FromEnv(cfg *Config) {
	v := viper.New()
	for _, k := range envKeys {
		_ = v.BindEnv(k, EnvName(k))
	}
	next := *cfg
	if err := v.Unmarshal(&next); err != nil {
		return
	}
	*cfg = next
}
