/*
Package doc implements the Collection component (spec.md §4.B): document
CRUD with atomic index maintenance, a lazily-compiled JSON-Schema cache,
edge-document validation, and a non-blocking change stream.

Every successful mutation computes the set of index entries to add/remove
across all of a collection's secondary indexes (regular, unique, geo,
full-text, TTL) and folds them into the same storage.Batch as the document
write, so index state can never diverge from document state. Vector
indexes are the one exception: they live in-memory (pkg/vector) and are
persisted on a throttled schedule and restored from the last snapshot
when the collection opens; they are not rebuilt from a document scan.
*/
package doc
