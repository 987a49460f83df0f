// Copyright (c) OpsMind Authors.
// Licensed under the MIT License.

/*
Package usage implements the usage and savings accountant: per-call,
write-once records of what each prompt optimization saved, with per-agent
and per-day aggregation for dashboards and telemetry.

Records accumulate in memory for the lifetime of the process (or a
configured retention window); persistence, if any, is the caller's concern.
Writes are append-only and safe under concurrent access. Aggregation follows
a snapshot-then-reduce pattern: it copies the record slice under a read lock
and reduces outside it, so repeated aggregation never blocks writers and
never double-counts.

Cost is derived from a per-model rate table (USD per million tokens),
supplied by external configuration rather than hard-coded.
*/
package usage
