// Package shard implements shard placement (ComputeAssignments), routing
// (Route, IsShardReplica), and the per-collection ShardTable: spec.md
// §4.F/G.
package shard

import (
	"hash/fnv"

	"github.com/solidb/solidb/pkg/types"
)

// Route hashes key to a shard ID in [0, numShards). Ported from the
// original implementation's DefaultHasher-based router: any stable,
// uniform hash works here since routing only needs to be a deterministic
// function of the key, not cryptographically secure.
func Route(key string, numShards uint16) uint16 {
	if numShards == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return uint16(h.Sum64() % uint64(numShards))
}

// IsShardReplica reports whether nodeIdx (this node's position in a
// sorted, stable node list) should hold a copy of shardID, under a
// replication factor of replicationFactor across numNodes nodes. It
// checks the consecutive ring window shardID, shardID+1, …,
// shardID+replicationFactor-1 (mod numNodes) and does not consult the
// ShardTable; ComputeAssignments places shards by load, not by this ring.
func IsShardReplica(shardID uint16, nodeIdx int, replicationFactor uint16, numNodes int) bool {
	if numNodes == 0 {
		return false
	}
	for i := uint16(0); i < replicationFactor; i++ {
		target := (int(shardID) + int(i)) % numNodes
		if target == nodeIdx {
			return true
		}
	}
	return false
}

// NewTable builds a ShardTable for database/collection from a freshly
// computed assignment map.
func NewTable(database, collection string, numShards uint16, assignments map[uint16]*types.ShardAssignment) *types.ShardTable {
	return &types.ShardTable{
		Database:   database,
		Collection: collection,
		NumShards:  numShards,
		Shards:     assignments,
	}
}

// AssignmentFor returns the placement of the shard that owns key, or nil
// if the table has no entry for that shard.
func AssignmentFor(t *types.ShardTable, shardKey string) *types.ShardAssignment {
	id := Route(shardKey, t.NumShards)
	return t.Shards[id]
}
