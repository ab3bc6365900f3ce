/*
Package migration implements the Migration Engine (spec.md §4.J): moving
documents between physical shard collections after the Rebalancer
recomputes placement, without ever dropping a document that has not
been confirmed safe at its new home.

Reshard scans every physical shard collection from 0 up to
max(oldShards, newShards) on the local node. A kept shard (index below
newShards) is only scanned by the node that was its OLD primary, so a
multi-node cluster doesn't migrate the same document from three places
at once; a removed shard (index at or above newShards) is scanned by
whichever node happens to hold it locally, because once it is gone
cluster-wide nobody else has a copy to fall back on. Each document is
re-routed with the NEW shard count; one that still lands on its current
physical shard is left alone, and the rest are sent in batches through a
BatchSender (pkg/coordinator.Coordinator in production — its Insert path
already knows how to place a document locally or forward it to the new
primary). A batch is only deleted from its source shard once its
documents have been verified reachable at the new location — locally
via a direct Get, or remotely via the shard-internal _verify RPC — so a
verify failure or an unreachable node blocks cleanup rather than risking
silent data loss. An in-memory journal records per-document outcomes so
a later pass in the same process skips documents already confirmed
migrated; it starts empty after a restart.
*/
package migration
