package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/shardq/internal/config"
	"github.com/rzbill/shardq/internal/runtime"
	httpserver "github.com/rzbill/shardq/internal/server/http"
	logpkg "github.com/rzbill/shardq/pkg/log"
)

func startServer(t *testing.T) BaseURLFunc {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Fsync = "never"
	cfg.Sweeper.Enabled = false
	cfg.HTTP.RateLimit = 0
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ts := httptest.NewServer(httpserver.New(rt, logpkg.NewNop()).Handler())
	t.Cleanup(ts.Close)
	return func() string { return ts.URL }
}

func run(t *testing.T, baseURL BaseURLFunc, args ...string) string {
	t.Helper()
	root := NewRoot(baseURL)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), buf.String())
	return buf.String()
}

type printed struct {
	ID          string            `json:"id"`
	Shard       int               `json:"shard"`
	Key         string            `json:"key"`
	Headers     map[string]string `json:"headers"`
	PayloadText string            `json:"payload_text"`
	PayloadJSON any               `json:"payload_json"`
}

func parsePrinted(t *testing.T, out string) []printed {
	t.Helper()
	var msgs []printed
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var p printed
		require.NoError(t, json.Unmarshal([]byte(line), &p), line)
		msgs = append(msgs, p)
	}
	return msgs
}

func TestSendReadAck(t *testing.T) {
	base := startServer(t)

	out := run(t, base, "msg", "send", "--data", "hello", "--key", "k1", "--header", "trace=abc")
	require.Contains(t, out, "id: ")

	msgs := parsePrinted(t, run(t, base, "msg", "read", "--consumer", "c1", "--max", "5"))
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].PayloadText)
	require.Equal(t, "k1", msgs[0].Key)
	require.Equal(t, "abc", msgs[0].Headers["trace"])

	out = run(t, base, "msg", "ack", msgs[0].ID, "--consumer", "c1", "--shard", strconv.Itoa(msgs[0].Shard))
	require.Contains(t, out, "status: OK")
	require.Empty(t, strings.TrimSpace(run(t, base, "msg", "peek")))
}

func TestReadAutoAck(t *testing.T) {
	base := startServer(t)
	run(t, base, "msg", "send", "--data", `{"job":1}`)
	run(t, base, "msg", "send", "--data", `{"job":2}`)

	msgs := parsePrinted(t, run(t, base, "msg", "read", "-n", "10", "--ack"))
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].PayloadJSON)

	out := run(t, base, "queue", "info")
	require.Contains(t, out, "messages: 0")
}

func TestDelayedMessageNotVisible(t *testing.T) {
	base := startServer(t)
	run(t, base, "msg", "send", "--data", "later", "--delay", "1h")
	require.Empty(t, strings.TrimSpace(run(t, base, "msg", "read")))

	out := run(t, base, "queue", "stats")
	require.Contains(t, out, "total")
	require.Contains(t, out, "SHARD")
}

func TestPoisonAndList(t *testing.T) {
	base := startServer(t)
	run(t, base, "msg", "send", "--data", "bad")
	msgs := parsePrinted(t, run(t, base, "msg", "read", "-c", "w"))
	require.Len(t, msgs, 1)

	out := run(t, base, "msg", "poison", msgs[0].ID, "-c", "w", "--shard", strconv.Itoa(msgs[0].Shard))
	require.Contains(t, out, "status: OK")

	poisoned := parsePrinted(t, run(t, base, "msg", "poisoned"))
	require.Len(t, poisoned, 1)
	require.Equal(t, msgs[0].ID, poisoned[0].ID)
	require.Equal(t, -1, poisoned[0].Shard)
}

func TestDelete(t *testing.T) {
	base := startServer(t)
	out := run(t, base, "msg", "send", "--data", "x", "--delay", "1h")
	id := strings.TrimSpace(strings.TrimPrefix(strings.Split(out, "\n")[0], "id:"))
	require.NotEmpty(t, id)

	require.Contains(t, run(t, base, "msg", "delete", id), "status: OK")

	root := NewRoot(base)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"msg", "delete", id})
	require.Error(t, root.Execute())
}

func TestQueueCreate(t *testing.T) {
	base := startServer(t)
	out := run(t, base, "queue", "create", "emails", "--shards", "8", "--lease", "1m")
	require.Contains(t, out, "status: OK")
	require.Contains(t, out, "shards:   8")
	require.Contains(t, out, "lease:    1m0s")

	out = run(t, base, "queue", "info", "-q", "emails")
	require.Contains(t, out, "name:     emails")
}

func TestSendFlagValidation(t *testing.T) {
	base := startServer(t)
	cases := [][]string{
		{"msg", "send", "--data", "x", "--every", "1m", "--cron", "* * * * *"},
		{"msg", "send", "--data", "x", "--header", "novalue"},
		{"msg", "send", "--data", "x", "--every", "1m", "--until", "tomorrow"},
		{"msg", "send", "--data", "x", "--cron", "not a cron"},
	}
	for _, args := range cases {
		root := NewRoot(base)
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(args)
		require.Error(t, root.Execute(), strings.Join(args, " "))
	}
}

func TestParseTime(t *testing.T) {
	ms, err := parseTime("2026-03-01T12:00:00Z")
	require.NoError(t, err)
	require.Equal(t, int64(1772366400000), ms)

	ms, err = parseTime("1726833600000")
	require.NoError(t, err)
	require.Equal(t, int64(1726833600000), ms)

	ms, err = parseTime("")
	require.NoError(t, err)
	require.Zero(t, ms)

	_, err = parseTime("yesterday")
	require.Error(t, err)
}
