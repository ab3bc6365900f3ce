/*
Package rebalancer implements the Rebalancer component (spec.md §4.I): a
periodic pass that recomputes shard placement whenever cluster
membership or a collection's declared shard count changes, persists the
new table, and hands any shard-count change (expansion/contraction) off
to a Migrator to move data.

One pass: list every sharded collection, compute fresh assignments with
pkg/shard.ComputeAssignments against the currently active node set (the
previous table feeds in as the stability hint), persist the table via
pkg/shard.Store and push it into the Shard Coordinator, and — if the
shard count itself changed — invoke the registered Migrator. A pass is
skipped entirely if one is already running, matching the original's
single-flight guard.
*/
package rebalancer
