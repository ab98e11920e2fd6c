package queue

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/rzbill/shardq/internal/entry"
	"github.com/rzbill/shardq/internal/trigger"
)

// Message is an application payload. Producers fill Body, Priority, Trigger,
// Key and Headers; the queue sets ID, Shard and EnqueuedAt.
type Message struct {
	ID       string
	Shard    int
	Body     []byte
	Priority uint8
	// Trigger schedules the message. Nil means a one-shot due immediately.
	Trigger trigger.Trigger
	// Attempts is a caller-owned retry counter carried with the payload.
	Attempts   int
	Key        string
	Headers    map[string]string
	EnqueuedAt time.Time

	entry entry.Entry
}

// Entry returns the composite key of a stored message.
func (m *Message) Entry() entry.Entry { return m.entry }

// DueTime is the instant the message becomes claimable.
func (m *Message) DueTime() time.Time { return m.entry.DueTime() }

// Stored value: headerLen(4B BE) | header JSON | body | crc32c(header|body)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type header struct {
	Priority     uint8             `json:"priority"`
	Attempts     int               `json:"attempts,omitempty"`
	Key          string            `json:"key,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	EnqueuedAtUs int64             `json:"enqueuedAtUs"`
	Trigger      json.RawMessage   `json:"trigger,omitempty"`
}

func encodeValue(m *Message) ([]byte, error) {
	tb, err := trigger.Marshal(m.Trigger)
	if err != nil {
		return nil, err
	}
	h, err := json.Marshal(header{
		Priority:     m.Priority,
		Attempts:     m.Attempts,
		Key:          m.Key,
		Headers:      m.Headers,
		EnqueuedAtUs: m.EnqueuedAt.UnixMicro(),
		Trigger:      tb,
	})
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 4+len(h)+len(m.Body)+4)
	out = binary.BigEndian.AppendUint32(out, uint32(len(h)))
	out = append(out, h...)
	out = append(out, m.Body...)
	crc := crc32.Update(0, castagnoli, h)
	crc = crc32.Update(crc, castagnoli, m.Body)
	return binary.BigEndian.AppendUint32(out, crc), nil
}

// decodeValue rebuilds the message stored under e.
func decodeValue(e entry.Entry, b []byte) (*Message, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptValue, len(b))
	}
	hlen := int(binary.BigEndian.Uint32(b[:4]))
	if hlen < 0 || 4+hlen+4 > len(b) {
		return nil, fmt.Errorf("%w: header length %d", ErrCorruptValue, hlen)
	}
	h := b[4 : 4+hlen]
	body := b[4+hlen : len(b)-4]
	crc := crc32.Update(0, castagnoli, h)
	crc = crc32.Update(crc, castagnoli, body)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptValue)
	}
	var hd header
	if err := json.Unmarshal(h, &hd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptValue, err)
	}
	tr, err := trigger.Unmarshal(hd.Trigger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptValue, err)
	}
	return &Message{
		ID:         e.String(),
		Body:       append([]byte(nil), body...),
		Priority:   hd.Priority,
		Trigger:    tr,
		Attempts:   hd.Attempts,
		Key:        hd.Key,
		Headers:    hd.Headers,
		EnqueuedAt: time.UnixMicro(hd.EnqueuedAtUs),
		entry:      e,
	}, nil
}
