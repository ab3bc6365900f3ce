/*
Package coordinator implements the Shard Coordinator component (spec.md
§4.H): it decides, for every document operation, whether to apply it to
a local shard, forward it to that shard's primary, or fan it out to
replicas, and it scatters cluster-wide scans across every shard's
primary.

A write resolves its document key, routes it to a shard id via
pkg/shard.Route, and looks up that shard's assignment in the in-memory
ShardTable (loaded from pkg/shard.Store). If this node is the primary it
applies locally and fans the write out to replicas with a best-effort
deadline using an idempotent upsert; otherwise it forwards the request
to the primary over HTTP with the X-Shard-Direct header so the primary
does not re-forward. A degenerate table (no assignment yet) falls back
to the ring formula in pkg/shard.IsShardReplica and stores locally
rather than risk losing the write, trusting a later rebalance to repair
placement.
*/
package coordinator
