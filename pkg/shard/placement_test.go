package shard

import (
	"testing"

	"github.com/solidb/solidb/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestComputeAssignmentsRoundRobin(t *testing.T) {
	nodes := []string{"node1", "node2", "node3"}
	assignments, err := ComputeAssignments(nodes, 3, 1, nil)
	require.NoError(t, err)
	require.Len(t, assignments, 3)
	require.Equal(t, "node1", assignments[0].PrimaryNode)
	require.Equal(t, "node2", assignments[1].PrimaryNode)
	require.Equal(t, "node3", assignments[2].PrimaryNode)
}

func TestComputeAssignmentsReplicasDistinctFromPrimary(t *testing.T) {
	nodes := []string{"node1", "node2", "node3"}
	assignments, err := ComputeAssignments(nodes, 3, 2, nil)
	require.NoError(t, err)
	for i := uint16(0); i < 3; i++ {
		a := assignments[i]
		require.Len(t, a.ReplicaNodes, 1)
		require.NotEqual(t, a.PrimaryNode, a.ReplicaNodes[0])
	}
}

func TestComputeAssignmentsEvenLoad(t *testing.T) {
	nodes := []string{"node1", "node2"}
	assignments, err := ComputeAssignments(nodes, 4, 1, nil)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, a := range assignments {
		counts[a.PrimaryNode]++
	}
	require.Equal(t, 2, counts["node1"])
	require.Equal(t, 2, counts["node2"])
}

func TestComputeAssignmentsPromotesReplicaOnFailure(t *testing.T) {
	// Shard 0 was primary=A, replica=C. A fails; available nodes are B, C, D.
	// A fresh round-robin would put the primary on B (index 0), losing the
	// data C already replicated. Stability must promote C instead.
	previous := map[uint16]*types.ShardAssignment{
		0: {ShardID: 0, PrimaryNode: "A", ReplicaNodes: []string{"C"}},
	}
	nodes := []string{"B", "C", "D"}
	assignments, err := ComputeAssignments(nodes, 1, 3, previous)
	require.NoError(t, err)

	s0 := assignments[0]
	require.Equal(t, "C", s0.PrimaryNode)
	require.NotContains(t, s0.ReplicaNodes, "C")
	require.Contains(t, s0.ReplicaNodes, "B")
	require.Contains(t, s0.ReplicaNodes, "D")
}

func TestComputeAssignmentsNoDuplicateNodeInShard(t *testing.T) {
	nodes := []string{"1", "2"}
	assignments, err := ComputeAssignments(nodes, 1, 2, nil)
	require.NoError(t, err)
	s0 := assignments[0]
	require.Len(t, s0.ReplicaNodes, 1)
	require.NotEqual(t, s0.PrimaryNode, s0.ReplicaNodes[0])
}

func TestRouteIsDeterministic(t *testing.T) {
	a := Route("user-42", 16)
	b := Route("user-42", 16)
	require.Equal(t, a, b)
	require.Less(t, a, uint16(16))
}

func TestRouteZeroShards(t *testing.T) {
	require.Equal(t, uint16(0), Route("anything", 0))
}

func TestIsShardReplicaRing(t *testing.T) {
	// 4 nodes, RF=2: shard 0's ring is nodes {0,1}.
	require.True(t, IsShardReplica(0, 0, 2, 4))
	require.True(t, IsShardReplica(0, 1, 2, 4))
	require.False(t, IsShardReplica(0, 2, 2, 4))
	require.False(t, IsShardReplica(0, 3, 2, 4))
}

func TestIsShardReplicaWrapsAround(t *testing.T) {
	// shard 3, RF=2, 4 nodes: ring is {3, 0}.
	require.True(t, IsShardReplica(3, 3, 2, 4))
	require.True(t, IsShardReplica(3, 0, 2, 4))
	require.False(t, IsShardReplica(3, 1, 2, 4))
}
