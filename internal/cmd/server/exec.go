package serverrun

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rzbill/shardq/internal/dispatch"
	"github.com/rzbill/shardq/internal/queue"
)

// ExecHandler returns a handler that runs command through "sh -c" once per
// message. The body is written to stdin and message fields are exported as
// SHARDQ_MESSAGE_ID, SHARDQ_SHARD, SHARDQ_ATTEMPTS, SHARDQ_KEY and
// SHARDQ_HEADER_<NAME>. A non-zero exit fails the attempt.
func ExecHandler(command string) dispatch.Handler {
	return func(ctx context.Context, m *queue.Message) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(m.Body)
		cmd.Env = append(os.Environ(), messageEnv(m)...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.Stdout = os.Stdout
		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return fmt.Errorf("exec %q: %w: %s", command, err, msg)
			}
			return fmt.Errorf("exec %q: %w", command, err)
		}
		return nil
	}
}

func messageEnv(m *queue.Message) []string {
	env := []string{
		"SHARDQ_MESSAGE_ID=" + m.ID,
		"SHARDQ_SHARD=" + strconv.Itoa(m.Shard),
		"SHARDQ_ATTEMPTS=" + strconv.Itoa(m.Attempts),
		"SHARDQ_KEY=" + m.Key,
	}
	for k, v := range m.Headers {
		name := strings.ToUpper(strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
				return r
			}
			return '_'
		}, k))
		env = append(env, "SHARDQ_HEADER_"+name+"="+v)
	}
	return env
}
