package entry

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rzbill/shardq/pkg/id"
)

func sample(t Type, prio uint8, micros uint64, state State) Entry {
	return Entry{Type: t, Priority: prio, Timestamp: id.New(micros, 9), Random: uuid.New(), State: state}
}

func TestRoundTrip(t *testing.T) {
	entries := []Entry{
		{},
		sample(TypeMessage, 0, 1, StateNone),
		sample(TypeMessage, 255, 1<<62, StateBusy),
		sample(TypeLock, 7, uint64(time.Now().UnixMicro()), StateBusy),
		NewMetadata(),
	}
	for _, e := range entries {
		got, err := Parse(e.String())
		if err != nil {
			t.Fatalf("parse %q: %v", e.String(), err)
		}
		if diff := cmp.Diff(e, got); diff != "" {
			t.Fatalf("text round trip (-want +got):\n%s", diff)
		}
		got, err = Decode(e.Bytes())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if diff := cmp.Diff(e, got); diff != "" {
			t.Fatalf("binary round trip (-want +got):\n%s", diff)
		}
	}
}

func TestParseRejectsWrongComponentCount(t *testing.T) {
	e := sample(TypeMessage, 1, 100, StateNone)
	inputs := []string{
		"",
		"1:2:3",
		e.String() + ":0",
		"1:2:" + e.Timestamp.String() + ":" + e.Random.String(),
	}
	for _, in := range inputs {
		_, err := Parse(in)
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("Parse(%q): want FormatError, got %v", in, err)
		}
	}
}

func TestParseRejectsBadComponent(t *testing.T) {
	e := sample(TypeMessage, 1, 100, StateNone)
	inputs := map[string]string{
		"type":      "x:1:" + e.Timestamp.String() + ":" + e.Random.String() + ":0",
		"priority":  "1:300:" + e.Timestamp.String() + ":" + e.Random.String() + ":0",
		"timestamp": "1:1:nothex:" + e.Random.String() + ":0",
		"random":    "1:1:" + e.Timestamp.String() + ":not-a-uuid:0",
		"state":     "1:1:" + e.Timestamp.String() + ":" + e.Random.String() + ":-1",
	}
	for component, in := range inputs {
		_, err := Parse(in)
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: want FormatError, got %v", component, err)
		}
		if fe.Component != component {
			t.Fatalf("want component %s, got %s", component, fe.Component)
		}
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want FormatError, got %v", err)
	}
}

func TestOrderingFollowsDueTime(t *testing.T) {
	g := id.NewGenerator()
	base := time.UnixMilli(1_700_000_000_000)
	var prev Entry
	for i := 0; i < 50; i++ {
		e := NewMessage(3, g.At(base.Add(time.Duration(i)*time.Millisecond)), uuid.New())
		if i > 0 && Compare(prev, e) >= 0 {
			t.Fatalf("entry %d does not sort after its predecessor", i)
		}
		prev = e
	}
}

func TestOrderingPriorityBeforeTime(t *testing.T) {
	g := id.NewGenerator()
	late := NewMessage(0, g.At(time.UnixMilli(2000)), uuid.New())
	early := NewMessage(1, g.At(time.UnixMilli(1000)), uuid.New())
	if Compare(late, early) >= 0 {
		t.Fatalf("lower priority value must sort first")
	}
	lock := early.LockEntry()
	if Compare(lock, late) >= 0 {
		t.Fatalf("lock entries must sort before messages")
	}
}

func TestDueBound(t *testing.T) {
	g := id.NewGenerator()
	at := time.UnixMilli(5000)
	e := NewMessage(2, g.At(at), uuid.New())
	upper := DueBound(TypeMessage, 2, uint64(at.UnixMicro()))
	if bytes.Compare(e.Bytes(), upper) >= 0 {
		t.Fatalf("entry due at bound must be inside the range")
	}
	later := NewMessage(2, g.At(at.Add(time.Microsecond)), uuid.New())
	if bytes.Compare(later.Bytes(), upper) < 0 {
		t.Fatalf("entry due after bound must be outside the range")
	}
	if !bytes.HasPrefix(e.Bytes(), PriorityPrefix(TypeMessage, 2)) {
		t.Fatalf("priority prefix mismatch")
	}
}

func TestLockEntryPairing(t *testing.T) {
	e := sample(TypeMessage, 4, 100, StateNone)
	l := e.LockEntry()
	if l.Type != TypeLock || l.State != StateBusy || l.Timestamp != e.Timestamp || l.Random != e.Random {
		t.Fatalf("lock entry must mirror message identity: %+v", l)
	}
	if l.MessageEntry() != e {
		t.Fatalf("message entry must invert lock entry")
	}
	if !bytes.HasPrefix(append(LockPrefix(e), []byte("consumer-a")...), LockPrefix(e)) {
		t.Fatalf("lock prefix must prefix owner columns")
	}
}

func TestParseRejectsNonCanonicalForms(t *testing.T) {
	e := sample(TypeMessage, 5, 100, StateNone)
	ts, rnd := e.Timestamp.String(), e.Random.String()
	inputs := map[string]string{
		"leading zero priority": "1:05:" + ts + ":" + rnd + ":0",
		"leading zero type":     "01:5:" + ts + ":" + rnd + ":0",
		"plus sign":             "1:+5:" + ts + ":" + rnd + ":0",
		"braced uuid":           "1:5:" + ts + ":{" + rnd + "}:0",
		"urn uuid":              "1:5:" + ts + ":urn:uuid:" + rnd + ":0",
		"dash-free uuid":        "1:5:" + ts + ":" + strings.ReplaceAll(rnd, "-", "") + ":0",
		"upper-case uuid":       "1:5:" + ts + ":" + strings.ToUpper(rnd) + ":0",
		"upper-case timestamp":  "1:5:" + strings.ToUpper(ts) + ":" + rnd + ":0",
	}
	for name, in := range inputs {
		if in == e.String() {
			continue
		}
		if _, err := Parse(in); err == nil {
			t.Fatalf("%s: Parse(%q) accepted a non-canonical identifier", name, in)
		}
	}

	got, err := Parse(e.String())
	if err != nil {
		t.Fatalf("canonical form rejected: %v", err)
	}
	if got.String() != e.String() {
		t.Fatalf("round trip: got %s want %s", got, e)
	}
}
