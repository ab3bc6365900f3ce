// Package sdbql implements the query language's parser and evaluator:
// FOR … FILTER … SORT … LIMIT … COLLECT AGGREGATE … RETURN, plus the
// INSERT/UPDATE/REMOVE/UPSERT terminal actions.
//
// Grounded on original_source/src/sdbql/executor/{evaluate,aggregation,
// mod}.rs for the general tree-walking semantics and error taxonomy,
// execution/streaming.rs for the bulk-insert fast path, and
// builtins/geo.rs for the haversine distance constant. Two query shapes
// bypass row-at-a-time evaluation entirely: a single COLLECT … AGGREGATE
// over a columnar collection delegates straight to pkg/columnar, and a
// bulk `FOR i IN start..end INSERT … INTO coll` with at least 5000 rows
// batches through Collection.InsertBatch instead of one Insert per row.
package sdbql
