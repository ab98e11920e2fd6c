package log

import (
	stdlog "log"

	"go.uber.org/zap"
)

// Config is the declarative form accepted by ApplyConfig.
type Config struct {
	Level   string   `mapstructure:"level" json:"level"`
	Format  string   `mapstructure:"format" json:"format"`
	Outputs []string `mapstructure:"outputs" json:"outputs"`
}

// ApplyConfig builds a Logger from cfg. Unknown levels are an error; unknown
// formats fall back to text.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		return NewLogger(), nil
	}
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(lvl)}
	if cfg.Format == string(FormatJSON) {
		opts = append(opts, WithFormat(FormatJSON))
	}
	for _, o := range cfg.Outputs {
		opts = append(opts, WithOutput(o))
	}
	return NewLogger(opts...), nil
}

// RedirectStdLog sends output of the standard library's global logger to l at
// info level. The returned func restores the previous behaviour.
func RedirectStdLog(l Logger) func() {
	if zl, ok := l.(*zapLogger); ok {
		return zap.RedirectStdLog(zl.z.WithOptions(zap.AddCallerSkip(-1)))
	}
	return func() {}
}

// ToStdLogger adapts l for libraries that want a *log.Logger.
func ToStdLogger(l Logger) *stdlog.Logger {
	if zl, ok := l.(*zapLogger); ok {
		return zap.NewStdLog(zl.z)
	}
	return stdlog.Default()
}
