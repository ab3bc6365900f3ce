package shard

import (
	"fmt"
	"sort"

	"github.com/solidb/solidb/pkg/types"
)

// ComputeAssignments computes a full ShardTable for numShards shards over
// nodes, with replicationFactor copies of each shard (1 means primary
// only). previous, if non-nil, is the prior placement for this
// collection; the algorithm prefers to keep a node in the role it
// already held for a given shard (primary stays primary, replica stays
// replica) before considering load, so a single node failure promotes
// an existing replica rather than handing the shard to a fresh node.
//
// Two passes: primaries are placed first by ascending primary load, then
// replicas by ascending total load, each pass breaking ties by stability
// (this shard, then other shards), then by node ID.
func ComputeAssignments(nodes []string, numShards, replicationFactor uint16, previous map[uint16]*types.ShardAssignment) (map[uint16]*types.ShardAssignment, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes available for shard assignment")
	}

	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)

	assignments := make(map[uint16]*types.ShardAssignment, numShards)
	primaryLoad := make(map[string]int, len(sorted))
	totalLoad := make(map[string]int, len(sorted))
	for _, n := range sorted {
		primaryLoad[n] = 0
		totalLoad[n] = 0
	}

	// Pass 1: primaries, by ascending primary_load, then stability, then
	// avoid-used-elsewhere, then total_load, then ID.
	for shardID := uint16(0); shardID < numShards; shardID++ {
		candidates := append([]string(nil), sorted...)
		prevThis := previous[shardID]

		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if primaryLoad[a] != primaryLoad[b] {
				return primaryLoad[a] < primaryLoad[b]
			}

			aWasPrimary := prevThis != nil && prevThis.PrimaryNode == a
			bWasPrimary := prevThis != nil && prevThis.PrimaryNode == b
			if aWasPrimary != bWasPrimary {
				return aWasPrimary
			}

			aWasReplica := prevThis != nil && contains(prevThis.ReplicaNodes, a)
			bWasReplica := prevThis != nil && contains(prevThis.ReplicaNodes, b)
			if aWasReplica != bWasReplica {
				return aWasReplica
			}

			aPrimaryElsewhere := usedAsPrimaryElsewhere(previous, shardID, a)
			bPrimaryElsewhere := usedAsPrimaryElsewhere(previous, shardID, b)
			if aPrimaryElsewhere != bPrimaryElsewhere {
				return !aPrimaryElsewhere
			}

			aReplicaElsewhere := usedAsReplicaElsewhere(previous, shardID, a)
			bReplicaElsewhere := usedAsReplicaElsewhere(previous, shardID, b)
			if aReplicaElsewhere != bReplicaElsewhere {
				return !aReplicaElsewhere
			}

			if totalLoad[a] != totalLoad[b] {
				return totalLoad[a] < totalLoad[b]
			}
			return a < b
		})

		best := candidates[0]
		primaryLoad[best]++
		totalLoad[best]++
		assignments[shardID] = &types.ShardAssignment{ShardID: shardID, PrimaryNode: best}
	}

	// Pass 2: replicas, by ascending total_load, then stability, then
	// avoid-used-elsewhere, then ID.
	targetReplicas := 0
	if replicationFactor > 0 {
		targetReplicas = int(replicationFactor) - 1
	}
	if targetReplicas > 0 {
		if len(nodes) < 2 {
			// Not enough nodes to place any replica; primaries-only table
			// is returned, matching the degenerate single-node case.
		} else {
			for shardID := uint16(0); shardID < numShards; shardID++ {
				primary := assignments[shardID].PrimaryNode
				prevThis := previous[shardID]

				for r := 0; r < targetReplicas; r++ {
					var candidates []string
					for _, n := range sorted {
						if n == primary || contains(assignments[shardID].ReplicaNodes, n) {
							continue
						}
						candidates = append(candidates, n)
					}
					if len(candidates) == 0 {
						break
					}

					sort.SliceStable(candidates, func(i, j int) bool {
						a, b := candidates[i], candidates[j]
						if totalLoad[a] != totalLoad[b] {
							return totalLoad[a] < totalLoad[b]
						}

						aWasReplica := prevThis != nil && contains(prevThis.ReplicaNodes, a)
						bWasReplica := prevThis != nil && contains(prevThis.ReplicaNodes, b)
						if aWasReplica != bWasReplica {
							return aWasReplica
						}

						aUsedElsewhere := usedElsewhere(previous, shardID, a)
						bUsedElsewhere := usedElsewhere(previous, shardID, b)
						if aUsedElsewhere != bUsedElsewhere {
							return !aUsedElsewhere
						}

						return a < b
					})

					best := candidates[0]
					assignments[shardID].ReplicaNodes = append(assignments[shardID].ReplicaNodes, best)
					totalLoad[best]++
				}

				sort.Strings(assignments[shardID].ReplicaNodes)
			}
		}
	}

	return assignments, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func usedAsPrimaryElsewhere(previous map[uint16]*types.ShardAssignment, shardID uint16, node string) bool {
	for sid, a := range previous {
		if sid != shardID && a.PrimaryNode == node {
			return true
		}
	}
	return false
}

func usedAsReplicaElsewhere(previous map[uint16]*types.ShardAssignment, shardID uint16, node string) bool {
	for sid, a := range previous {
		if sid != shardID && contains(a.ReplicaNodes, node) {
			return true
		}
	}
	return false
}

func usedElsewhere(previous map[uint16]*types.ShardAssignment, shardID uint16, node string) bool {
	for sid, a := range previous {
		if sid != shardID && (a.PrimaryNode == node || contains(a.ReplicaNodes, node)) {
			return true
		}
	}
	return false
}
