/*
Package storage is the KV Engine Facade: a column-family abstraction over
bbolt that every higher-level component stores its records through.

Unlike a one-bucket-per-domain-type store, storage.Engine exposes named
column families opened on demand — "documents:mydb:users",
"oplog:node-1", "shardtable:mydb", "cluster:members" — so each
component owns its own key layout without the storage layer knowing the
domain's shape. AtomicBatch lets a single commit span column families,
which the Collection layer needs when an insert touches both the primary
document CF and one or more index CFs.

	┌────────────────────── BoltEngine ──────────────────────┐
	│  file: <dataDir>/solidb.db, one bucket per CF           │
	│                                                          │
	│  documents:<db>:<collection>     key = document key     │
	│  index:<db>:<collection>:<name>  key = indexed value    │
	│  oplog:<node_id>                 key = big-endian seq   │
	│  shardtable:<db>                 key = collection name   │
	│  cluster:members                 key = node_id           │
	│  columnar:<db>:<collection>      key = row-group id       │
	└──────────────────────────────────────────────────────────┘

All CF operations are individually transactional; AtomicBatch commits a
set of puts/deletes across column families as one bbolt transaction.
*/
package storage
