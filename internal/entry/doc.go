// Package entry encodes and decodes the composite key that orders every column
// of a queue shard row.
//
// An entry is the 5-tuple (type, priority, timestamp, random, state). Its
// binary column form is
//
//	type(1) | priority(1) | timestamp(16) | random(16) | state(1)
//
// so byte-wise comparison of two columns equals component-by-component
// comparison of their tuples. A range scan over one shard row therefore yields
// Lock entries first, then Message entries ordered by priority and due time.
//
// The text form, used for message identifiers surfaced to callers, is the
// colon-delimited tuple in encoding order:
//
//	type:priority:timestamp:random:state
//
// with decimal enums, 32 hex digits for the timestamp and a canonical UUID for
// the random component. Both forms round trip exactly.
package entry
