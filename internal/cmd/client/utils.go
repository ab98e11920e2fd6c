package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	apiv1 "github.com/rzbill/shardq/api/v1"
	"github.com/rzbill/shardq/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// transportFor builds the HTTP transport for cmd, honouring --token and
// SHARDQ_TOKEN.
func transportFor(cmd *cobra.Command, baseURL BaseURLFunc) transports.QueueTransport {
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv("SHARDQ_TOKEN")
	}
	return transports.NewHTTPTransport(baseURL(), token)
}

// addCommonFlags registers the flags every client command shares.
func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("queue", "q", "", "Queue name (default: the server's configured queue)")
	cmd.Flags().String("token", "", "Bearer token (default $SHARDQ_TOKEN)")
}

// decodedMessage renders m with its body as payload_json, payload_text or
// payload_b64, whichever fits first.
func decodedMessage(m apiv1.Message) map[string]any {
	out := map[string]any{
		"id":       m.ID,
		"shard":    m.Shard,
		"priority": m.Priority,
		"attempts": m.Attempts,
		"due":      time.UnixMilli(m.DueAtMs).UTC().Format(time.RFC3339Nano),
	}
	if m.Key != "" {
		out["key"] = m.Key
	}
	if len(m.Headers) > 0 {
		out["headers"] = m.Headers
	}
	if len(m.Trigger) > 0 {
		out["trigger"] = m.Trigger
	}
	payload := m.Body
	// Try JSON first if it looks like JSON
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}

// printMessages writes one JSON object per line.
func printMessages(w io.Writer, msgs []apiv1.Message) error {
	enc := json.NewEncoder(w)
	for _, m := range msgs {
		if err := enc.Encode(decodedMessage(m)); err != nil {
			return err
		}
	}
	return nil
}

// parseHeaders turns repeated key=value flags into a map.
func parseHeaders(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q, want key=value", kv)
		}
		out[k] = v
	}
	return out, nil
}

// parseTime accepts RFC3339 or unix milliseconds and returns unix ms.
func parseTime(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	var ms int64
	if _, err := fmt.Sscanf(s, "%d", &ms); err == nil && ms > 0 {
		return ms, nil
	}
	return 0, fmt.Errorf("invalid time %q, want RFC3339 or unix ms", s)
}
