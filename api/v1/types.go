// Package apiv1 defines the JSON wire types of the shardq HTTP API. The
// server and the CLI transport share them.
package apiv1

import "encoding/json"

// Trigger schedules a message. Kind is "oneshot", "repeating" or "cron"; an
// absent trigger means a one-shot due now.
type Trigger struct {
	Kind        string `json:"kind"`
	DelayMs     int64  `json:"delayMs,omitempty"`
	IntervalMs  int64  `json:"intervalMs,omitempty"`
	RepeatCount int64  `json:"repeatCount,omitempty"`
	EndTimeMs   int64  `json:"endTimeMs,omitempty"`
	Expr        string `json:"expr,omitempty"`
}

// EnqueueRequest is the body of POST /v1/messages.
type EnqueueRequest struct {
	Queue    string            `json:"queue,omitempty"`
	Body     []byte            `json:"body"`
	Priority uint8             `json:"priority,omitempty"`
	Key      string            `json:"key,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Attempts int               `json:"attempts,omitempty"`
	Trigger  *Trigger          `json:"trigger,omitempty"`
}

// EnqueueResponse identifies the stored message.
type EnqueueResponse struct {
	ID      string `json:"id"`
	Shard   int    `json:"shard"`
	DueAtMs int64  `json:"dueAtMs"`
}

// ReadRequest is the body of POST /v1/messages/read. A nil Shard reads
// across every shard.
type ReadRequest struct {
	Queue     string `json:"queue,omitempty"`
	Consumer  string `json:"consumer"`
	Max       int    `json:"max"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
	Shard     *int   `json:"shard,omitempty"`
}

// AckRequest is the body of POST /v1/messages/ack and /v1/messages/poison.
type AckRequest struct {
	Queue    string `json:"queue,omitempty"`
	Consumer string `json:"consumer"`
	Shard    int    `json:"shard"`
	ID       string `json:"id"`
}

// Message is a stored message as returned by read, peek and poison listing.
// Shard is -1 for messages in the poison row.
type Message struct {
	ID           string            `json:"id"`
	Shard        int               `json:"shard"`
	Body         []byte            `json:"body"`
	Priority     uint8             `json:"priority"`
	Attempts     int               `json:"attempts"`
	Key          string            `json:"key,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	EnqueuedAtMs int64             `json:"enqueuedAtMs"`
	DueAtMs      int64             `json:"dueAtMs"`
	Trigger      json.RawMessage   `json:"trigger,omitempty"`
}

// MessageList wraps list responses.
type MessageList struct {
	Messages []Message `json:"messages"`
}

// CreateQueueRequest is the body of POST /v1/queue. Zero fields take the
// server defaults.
type CreateQueueRequest struct {
	Name            string `json:"name"`
	ShardCount      int    `json:"shardCount,omitempty"`
	LeaseDurationMs int64  `json:"leaseDurationMs,omitempty"`
	PoisonLocation  string `json:"poisonLocation,omitempty"`
}

// QueueInfo is returned by GET /v1/queue.
type QueueInfo struct {
	Name            string `json:"name"`
	ShardCount      int    `json:"shardCount"`
	LeaseDurationMs int64  `json:"leaseDurationMs"`
	PoisonLocation  string `json:"poisonLocation"`
	CreatedAtMs     int64  `json:"createdAtMs"`
	Messages        int    `json:"messages"`
	Poisoned        int    `json:"poisoned"`
	Shards          []int  `json:"shards"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes carried in Error.Code.
const (
	CodeBusy         = "busy"
	CodeNotFound     = "not_found"
	CodeExists       = "exists"
	CodeInvalid      = "invalid_argument"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal"
	CodeUnauthorized = "unauthenticated"
	CodeRateLimited  = "rate_limited"
)
