/*
Package vector implements the in-memory approximate-nearest-neighbour
index backing a collection's vector secondary index (spec.md §4.B, §9
open question ii). The design is a single-layer, navigable small-world
graph in the spirit of HNSW: every point keeps up to M greedy-search
neighbours, and insertion explores efConstruction candidates before
settling the point's edges. Any ANN with the same search/insert contract
satisfies the spec; a full multi-layer HNSW was not required to meet it.

The graph lives entirely in memory and is never part of a crash-consistent
KV write — Collection persists it on a throttled ticker (see
Snapshot/Restore) instead and restores the last snapshot on open. Points
written after that snapshot are lost on a crash; nothing rebuilds the graph
from a document scan.
*/
package vector
