package id

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"
)

// Len is the encoded size of an ID in bytes.
const Len = 16

// ID is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes unix_micros][8 bytes uniqueifier].
type ID [Len]byte

// Zero is the smallest ID; it sorts before every generated ID.
var Zero ID

// New builds an ID from its two halves.
func New(micros, unique uint64) ID {
	var i ID
	binary.BigEndian.PutUint64(i[0:8], micros)
	binary.BigEndian.PutUint64(i[8:16], unique)
	return i
}

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, Len); copy(b, i[:]); return b }

// String returns a 32 character lowercase hex string.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Micros returns the embedded unix time in microseconds.
func (i ID) Micros() uint64 { return binary.BigEndian.Uint64(i[0:8]) }

// Unique returns the embedded uniqueifier.
func (i ID) Unique() uint64 { return binary.BigEndian.Uint64(i[8:16]) }

// Time returns the embedded instant.
func (i ID) Time() time.Time { return time.UnixMicro(int64(i.Micros())) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < Len; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Parse decodes the hex form produced by String.
func Parse(s string) (ID, error) {
	var i ID
	if len(s) != Len*2 {
		return i, fmt.Errorf("id: want %d hex chars, got %d", Len*2, len(s))
	}
	if _, err := hex.Decode(i[:], []byte(s)); err != nil {
		return i, fmt.Errorf("id: %w", err)
	}
	return i, nil
}

// FromBytes copies a 16-byte slice into an ID.
func FromBytes(b []byte) (ID, error) {
	var i ID
	if len(b) != Len {
		return i, fmt.Errorf("id: want %d bytes, got %d", Len, len(b))
	}
	copy(i[:], b)
	return i, nil
}

// Generator produces IDs with a per-process monotonic uniqueifier.
type Generator struct {
	mu         sync.Mutex
	lastMicros int64
	sequence   uint64
}

// NewGenerator creates a Generator whose uniqueifier starts at a random
// offset so that concurrent processes rarely share uniqueifier values.
func NewGenerator() *Generator {
	var seed [8]byte
	_, _ = rand.Read(seed[:])
	// keep headroom below MaxUint64 so the first overflow is far away
	return &Generator{sequence: binary.BigEndian.Uint64(seed[:]) >> 1}
}

// NowMicros returns current time in microseconds since Unix epoch.
var NowMicros = func() int64 { return time.Now().UnixMicro() }

// Next returns an ID stamped with the current time. If the clock goes
// backwards it reuses lastMicros; if the sequence overflows within the same
// microsecond it waits for the next one.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	us := NowMicros()
	if us < g.lastMicros {
		us = g.lastMicros
	}

	if us == g.lastMicros {
		if g.sequence == math.MaxUint64 {
			for {
				us = NowMicros()
				if us > g.lastMicros {
					break
				}
				time.Sleep(time.Microsecond * 50)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence++
	}

	g.lastMicros = us
	return New(uint64(us), g.sequence)
}

// At returns an ID stamped with t. Negative instants clamp to the epoch.
func (g *Generator) At(t time.Time) ID {
	g.mu.Lock()
	g.sequence++
	seq := g.sequence
	g.mu.Unlock()

	us := t.UnixMicro()
	if us < 0 {
		us = 0
	}
	return New(uint64(us), seq)
}

// Bound returns the smallest ID carrying the given microsecond; every ID
// generated for an earlier instant sorts before it.
func Bound(micros uint64) ID { return New(micros, 0) }
