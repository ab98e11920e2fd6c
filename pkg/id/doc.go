// Package id provides the 128-bit, lexicographically sortable time identifier
// used as the timestamp component of queue entries.
//
// # Format
//
// The ID is 16 bytes big-endian: [8 bytes unix_micros][8 bytes uniqueifier].
// Byte-wise comparison preserves chronological order, and IDs generated for
// the same microsecond by one Generator remain strictly increasing by
// uniqueifier.
//
// # Monotonicity
//
// Next pins to the last seen microsecond when the clock regresses, and waits
// for the next microsecond if the uniqueifier would overflow. At stamps an
// arbitrary (usually future) instant, so only the uniqueifier is monotonic.
//
// Usage
//
//	g := id.NewGenerator()
//	due := g.At(time.Now().Add(time.Minute))
//	b := due.Bytes()   // 16-byte representation
//	s := due.String()  // hex string
package id
