package entry

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/shardq/pkg/id"
)

// Len is the size of an encoded column.
const Len = 1 + 1 + id.Len + 16 + 1

const delimiter = ":"

// Type is the entry category. Lock sorts before Message so claims can be
// loaded with a single leading range read.
type Type uint8

const (
	TypeLock Type = iota
	TypeMessage
	TypeMetadata
)

func (t Type) String() string {
	switch t {
	case TypeLock:
		return "lock"
	case TypeMessage:
		return "message"
	case TypeMetadata:
		return "metadata"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// State is the mutable marker of an entry.
type State uint8

const (
	StateNone State = iota
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateBusy:
		return "busy"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Entry is the composite key of one queue column. The zero value is a valid
// Lock entry at the epoch.
type Entry struct {
	Type      Type
	Priority  uint8
	Timestamp id.ID
	Random    uuid.UUID
	State     State
}

// NewMessage returns a Message entry in state None.
func NewMessage(priority uint8, ts id.ID, random uuid.UUID) Entry {
	return Entry{Type: TypeMessage, Priority: priority, Timestamp: ts, Random: random, State: StateNone}
}

// NewMetadata returns the single well-known Metadata entry.
func NewMetadata() Entry {
	return Entry{Type: TypeMetadata}
}

// LockEntry returns the sibling Lock entry marking a claim on e.
func (e Entry) LockEntry() Entry {
	return Entry{Type: TypeLock, Priority: e.Priority, Timestamp: e.Timestamp, Random: e.Random, State: StateBusy}
}

// MessageEntry returns the Message entry that the Lock entry e guards.
func (e Entry) MessageEntry() Entry {
	return Entry{Type: TypeMessage, Priority: e.Priority, Timestamp: e.Timestamp, Random: e.Random, State: StateNone}
}

// DueTime is the instant embedded in the timestamp component.
func (e Entry) DueTime() time.Time { return e.Timestamp.Time() }

// Bytes returns the ordered binary column form.
func (e Entry) Bytes() []byte {
	b := make([]byte, Len)
	e.put(b)
	return b
}

func (e Entry) put(b []byte) {
	b[0] = byte(e.Type)
	b[1] = e.Priority
	copy(b[2:2+id.Len], e.Timestamp[:])
	copy(b[2+id.Len:2+id.Len+16], e.Random[:])
	b[Len-1] = byte(e.State)
}

// String returns the colon-delimited identifier.
func (e Entry) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(e.Type)))
	sb.WriteString(delimiter)
	sb.WriteString(strconv.Itoa(int(e.Priority)))
	sb.WriteString(delimiter)
	sb.WriteString(e.Timestamp.String())
	sb.WriteString(delimiter)
	sb.WriteString(e.Random.String())
	sb.WriteString(delimiter)
	sb.WriteString(strconv.Itoa(int(e.State)))
	return sb.String()
}

// Compare orders entries the way their columns sort: type, priority,
// timestamp, random, state, each compared as unsigned big-endian bytes.
func Compare(a, b Entry) int {
	return bytes.Compare(a.Bytes(), b.Bytes())
}

// Decode parses the binary column form.
func Decode(b []byte) (Entry, error) {
	if len(b) != Len {
		return Entry{}, &FormatError{Input: fmt.Sprintf("%x", b), Reason: fmt.Sprintf("want %d bytes, got %d", Len, len(b))}
	}
	var e Entry
	e.Type = Type(b[0])
	e.Priority = b[1]
	copy(e.Timestamp[:], b[2:2+id.Len])
	copy(e.Random[:], b[2+id.Len:2+id.Len+16])
	e.State = State(b[Len-1])
	return e, nil
}

// Parse parses the text form produced by String. It is the strict inverse
// of String: non-canonical spellings are rejected.
func Parse(s string) (Entry, error) {
	parts := strings.Split(s, delimiter)
	if len(parts) != 5 {
		return Entry{}, &FormatError{Input: s, Reason: fmt.Sprintf("want <type>:<priority>:<timestamp>:<random>:<state>, got %d components", len(parts))}
	}
	typ, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return Entry{}, &FormatError{Input: s, Component: "type", Err: err}
	}
	prio, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return Entry{}, &FormatError{Input: s, Component: "priority", Err: err}
	}
	ts, err := id.Parse(parts[2])
	if err != nil {
		return Entry{}, &FormatError{Input: s, Component: "timestamp", Err: err}
	}
	random, err := uuid.Parse(parts[3])
	if err != nil {
		return Entry{}, &FormatError{Input: s, Component: "random", Err: err}
	}
	state, err := strconv.ParseUint(parts[4], 10, 8)
	if err != nil {
		return Entry{}, &FormatError{Input: s, Component: "state", Err: err}
	}
	e := Entry{
		Type:      Type(typ),
		Priority:  uint8(prio),
		Timestamp: ts,
		Random:    random,
		State:     State(state),
	}
	// leading zeros, braced or dash-free UUIDs and upper-case hex all parse
	// above; only the exact String form is accepted
	if e.String() != s {
		return Entry{}, &FormatError{Input: s, Reason: "not in canonical form"}
	}
	return e, nil
}
