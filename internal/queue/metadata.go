package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	DefaultShardCount    = 4
	DefaultLeaseDuration = 30 * time.Second
)

// Metadata is the queue-wide configuration persisted in the metadata row.
type Metadata struct {
	ShardCount     int
	LeaseDuration  time.Duration
	PoisonLocation string
	CreatedAt      time.Time
}

type metadataJSON struct {
	ShardCount      int    `json:"shardCount"`
	LeaseDurationNs int64  `json:"leaseDurationNs"`
	PoisonLocation  string `json:"poisonLocation"`
	CreatedAtMs     int64  `json:"createdAtMs,omitempty"`
}

// ShardRow names the row backing shard i of queue.
func ShardRow(queue string, i int) string { return queue + ":" + strconv.Itoa(i) }

// MetaRow names the row holding the metadata entry of queue.
func MetaRow(queue string) string { return queue + ":meta" }

// DefaultPoisonRow names the poison row used when none is configured.
func DefaultPoisonRow(queue string) string { return queue + ":poison" }

// withDefaults fills zero fields.
func (m Metadata) withDefaults(queue string) Metadata {
	if m.ShardCount == 0 {
		m.ShardCount = DefaultShardCount
	}
	if m.LeaseDuration == 0 {
		m.LeaseDuration = DefaultLeaseDuration
	}
	if m.PoisonLocation == "" {
		m.PoisonLocation = DefaultPoisonRow(queue)
	}
	return m
}

// Validate checks m against queue.
func (m Metadata) Validate(queue string) error {
	if m.ShardCount <= 0 {
		return fmt.Errorf("%w: shard count %d", ErrInvalidMetadata, m.ShardCount)
	}
	if m.LeaseDuration <= 0 {
		return fmt.Errorf("%w: lease duration %s", ErrInvalidMetadata, m.LeaseDuration)
	}
	for i := 0; i < m.ShardCount; i++ {
		if m.PoisonLocation == ShardRow(queue, i) {
			return fmt.Errorf("%w: poison location %q is an active shard", ErrInvalidMetadata, m.PoisonLocation)
		}
	}
	if m.PoisonLocation == MetaRow(queue) {
		return fmt.Errorf("%w: poison location %q is the metadata row", ErrInvalidMetadata, m.PoisonLocation)
	}
	return nil
}

func (m Metadata) marshal() ([]byte, error) {
	j := metadataJSON{
		ShardCount:      m.ShardCount,
		LeaseDurationNs: int64(m.LeaseDuration),
		PoisonLocation:  m.PoisonLocation,
	}
	if !m.CreatedAt.IsZero() {
		j.CreatedAtMs = m.CreatedAt.UnixMilli()
	}
	return json.Marshal(j)
}

func unmarshalMetadata(b []byte) (Metadata, error) {
	var j metadataJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return Metadata{}, err
	}
	m := Metadata{
		ShardCount:     j.ShardCount,
		LeaseDuration:  time.Duration(j.LeaseDurationNs),
		PoisonLocation: j.PoisonLocation,
	}
	if j.CreatedAtMs != 0 {
		m.CreatedAt = time.UnixMilli(j.CreatedAtMs)
	}
	return m, nil
}
