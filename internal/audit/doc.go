// Package audit persists the session lifecycle as an append-only event
// trail. Every usage_start, usage_end, and alert_triggered is written to
// each configured sink: a dated JSONL file per camera for grep-ability and
// a SQLite database for queries.
//
// Writes are best-effort. A sink failure is logged and counted but never
// surfaces to the lifecycle, because losing an audit row must not stall
// frame processing.
package audit
