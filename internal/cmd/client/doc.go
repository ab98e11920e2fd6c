// Package client provides the `shardq` command-line client.
//
// The CLI talks to a shardq node's HTTP API to produce, claim and settle
// messages from a terminal. It is primarily intended for developers and
// operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. The standalone binary reads --server or
// SHARDQ_HTTP and defaults to http://127.0.0.1:8080. When the server
// requires a bearer token, pass --token or set SHARDQ_TOKEN.
//
// Usage
//
//	shardq queue create emails --shards 8 --lease 1m
//	shardq queue info -q emails
//	shardq queue stats -q emails
//
//	shardq msg send -q emails --data '{"to":"a@example.com"}' --key user-1
//	shardq msg send -q emails --data reminder --delay 15m
//	shardq msg send -q emails --data digest --cron "0 9 * * 1-5" --until 2026-12-31T00:00:00Z
//	shardq msg send -q emails --data ping --every 30s --repeat 10
//
//	# Claim up to 10 due messages as consumer w1, then settle one
//	shardq msg read -q emails -c w1 -n 10
//	shardq msg ack ID -q emails -c w1 --shard 3
//	shardq msg poison ID -q emails -c w1 --shard 3
//
//	shardq msg read -q emails -c w1 --ack     # claim and ack in one go
//	shardq msg peek -q emails --limit 20
//	shardq msg poisoned -q emails
//	shardq msg delete ID -q emails
//
// Notes
//
//   - read prints one JSON object per message. Bodies are rendered as
//     payload_json, payload_text or payload_b64.
//   - ack and poison need the consumer identity and shard the message was
//     read with; the claim is released only if that consumer still holds it.
//   - Recurring messages are rescheduled by ack, not by read.
package client
