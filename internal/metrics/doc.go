// Package metrics holds the relay's aggregate counters and the periodic
// reporter that samples room/client counts and process memory and hands
// each snapshot to its sinks (structured log, optional Postgres).
package metrics
