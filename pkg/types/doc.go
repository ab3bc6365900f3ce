/*
Package types defines the core data structures shared by solidb's storage,
sharding, replication, and query layers.

# Core Types

Documents & Collections:
  - Document: a stored JSON document (_key, _id, _rev, plus free-form fields)
  - CollectionMeta: name, CollectionType, schema hash, indexes, shard config
  - IndexDef: secondary/unique/geo/fulltext/vector/TTL index descriptor

Sharding:
  - ShardConfig: num_shards, shard_key, replication_factor
  - ShardAssignment: one shard's primary node and replica nodes
  - ShardTable: the full per-collection placement map

Replication:
  - LogEntry: one append-only operation-log record
  - HLC: hybrid logical clock reading (ts_ms, count)
  - VersionVector: per-node logical clocks, used for client/offline sync
    conflict detection only — node-to-node replication orders by HLC and
    (origin_node, origin_seq), not version vectors

Cluster:
  - Member: one cluster node's membership record (status, heartbeat, seq)

Columnar:
  - ColumnDef / ColumnarMeta: column type declarations for analytics
    collections

# Thread Safety

Types in this package carry no synchronization themselves — callers holding
a *CollectionMeta, *ShardTable, etc. across goroutines are responsible for
their own locking. VersionVector.Compare and HLC.Before are pure functions
safe to call concurrently.
*/
package types
