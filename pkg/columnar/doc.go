/*
Package columnar implements the Columnar Collection component (spec.md
§4.C): a column-oriented store for analytics and time-series workloads,
with LZ4-compressed row groups, predicate pushdown, and group-by
aggregation including TIME_BUCKET.

Rows are appended in groups (one group per InsertRows/InsertRowWithID
call); each group's column values are LZ4-compressed independently so a
projection only has to decompress the columns a query actually reads.
Row groups are immutable once written — DeleteRow records a tombstone
rather than rewriting a group, matching the append-then-compact shape
column stores use in practice.
*/
package columnar
