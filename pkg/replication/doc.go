/*
Package replication implements the Replication Worker (spec.md §4.K): a
per-peer pull loop that keeps this node's copy of every unsharded,
non-physical-shard collection eventually consistent with the rest of
the cluster by replaying peers' operation logs.

One tick per peer: ask the peer for entries after the last sequence this
node has applied from it (PullSince), group consecutive entries by
(database, collection, op) so inserts/updates/deletes land as one
upsert_batch/delete_batch call instead of one round trip per document,
skip anything destined for a physical shard collection (those are
placed directly by the Shard Coordinator's fan-out, never replayed
here), and advance the per-peer cursor only if the pull returned at
least one entry — an empty response must never advance the cursor, or a
momentarily-stale primary could cause entries to be skipped forever.

Heartbeats flow on their own ticker and simply update
pkg/cluster.State's last-seen bookkeeping; dead-node detection and
rebalance triggering are pkg/cluster.Monitor's job already, not
duplicated here.
*/
package replication
