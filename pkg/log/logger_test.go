package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": DebugLevel, "INFO": InfoLevel, "warning": WarnLevel, "error": ErrorLevel}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestFieldsReachCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLogger(WithLevel(DebugLevel), WithCore(core)).With(Component("consumer"))

	l.Warn("lease lost", Str("id", "1:0:ab:cd:0"), Int("shard", 3), Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "consumer", ctx["component"])
	assert.Equal(t, "1:0:ab:cd:0", ctx["id"])
	assert.EqualValues(t, 3, ctx["shard"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestSetLevel(t *testing.T) {
	l := NewLogger(WithLevel(InfoLevel), WithOutput("stderr"))
	assert.Equal(t, InfoLevel, l.GetLevel())
	l.SetLevel(ErrorLevel)
	assert.Equal(t, ErrorLevel, l.GetLevel())
}

func TestApplyConfig(t *testing.T) {
	l, err := ApplyConfig(&Config{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, l.GetLevel())

	_, err = ApplyConfig(&Config{Level: "nope"})
	assert.Error(t, err)
}
