package entry

import "github.com/rzbill/shardq/pkg/id"

// TypePrefix returns the one-byte prefix shared by every column of type t.
func TypePrefix(t Type) []byte { return []byte{byte(t)} }

// PriorityPrefix returns the prefix shared by entries of type t and priority p.
func PriorityPrefix(t Type, p uint8) []byte { return []byte{byte(t), p} }

// DueBound returns the exclusive upper bound for entries of type t and
// priority p whose timestamp embeds a time at or before micros.
func DueBound(t Type, p uint8, micros uint64) []byte {
	b := make([]byte, 2+id.Len)
	b[0] = byte(t)
	b[1] = p
	copy(b[2:], id.Bound(micros+1).Bytes())
	return b
}

// LockPrefix returns the prefix of every Lock column guarding e, regardless of
// the owner suffix appended by claimants.
func LockPrefix(e Entry) []byte { return e.LockEntry().Bytes() }
