/*
Package metrics registers and exposes the cluster's Prometheus metrics:
node/collection/document gauges, replication lag and pull counters,
shard and rebalance counters, migration batch outcomes, SDBQL fast-path
hit counts, and per-operation latency histograms. Handler() serves them
in the standard exposition format for scraping.

Timer is the shared helper every component uses to record a duration
against a histogram: `defer metrics.NewTimer().ObserveDuration(h)`.
*/
package metrics
