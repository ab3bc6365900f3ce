package rebalancer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/solidb/solidb/pkg/cluster"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

func discardLogger() zerolog.Logger { return zerolog.Nop() }

func openTestEngine(t *testing.T) storage.Engine {
	t.Helper()
	engine, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

type staticRegistry struct{ collections []ShardedCollection }

func (r *staticRegistry) ShardedCollections() []ShardedCollection { return r.collections }

type recordingSink struct {
	tables map[string]*types.ShardTable
}

func (s *recordingSink) SetShardTable(database, collection string, table *types.ShardTable) {
	if s.tables == nil {
		s.tables = make(map[string]*types.ShardTable)
	}
	s.tables[database+"/"+collection] = table
}

type recordingMigrator struct {
	calls int
	from  uint16
	to    uint16
}

func (m *recordingMigrator) Reshard(ctx context.Context, database, collection string, oldShards, newShards uint16, oldAssignments, newAssignments map[uint16]*types.ShardAssignment) error {
	m.calls++
	m.from = oldShards
	m.to = newShards
	return nil
}

func newTestCluster(t *testing.T, engine storage.Engine, selfID string, nodeIDs ...string) *cluster.State {
	t.Helper()
	st, err := cluster.Open(engine, selfID)
	require.NoError(t, err)
	for _, id := range nodeIDs {
		require.NoError(t, st.Upsert(&types.Member{NodeID: id, Status: types.NodeActive}))
	}
	return st
}

func TestRebalanceComputesAndPersistsFreshTable(t *testing.T) {
	engine := openTestEngine(t)
	cl := newTestCluster(t, engine, "node-1", "node-1", "node-2")

	reg := &staticRegistry{collections: []ShardedCollection{
		{Database: "db", Collection: "items", Config: types.ShardConfig{NumShards: 4, ReplicationFactor: 1}},
	}}
	tables := NewEngineTableStores(engine)
	sink := &recordingSink{}

	r := New(reg, tables, sink, cl, nil, time.Hour, discardLogger())
	require.NoError(t, r.Rebalance(context.Background()))

	table, ok := sink.tables["db/items"]
	require.True(t, ok)
	require.Equal(t, uint16(4), table.NumShards)
	require.Len(t, table.Shards, 4)
	for _, a := range table.Shards {
		require.NotEmpty(t, a.PrimaryNode)
	}

	store, err := tables.For("db")
	require.NoError(t, err)
	persisted, err := store.Load("items")
	require.NoError(t, err)
	require.Equal(t, table.NumShards, persisted.NumShards)
}

func TestRebalanceInvokesMigratorOnShardCountChange(t *testing.T) {
	engine := openTestEngine(t)
	cl := newTestCluster(t, engine, "node-1", "node-1")

	tables := NewEngineTableStores(engine)
	store, err := tables.For("db")
	require.NoError(t, err)
	require.NoError(t, store.Save(&types.ShardTable{
		Database: "db", Collection: "items", NumShards: 2,
		Shards: map[uint16]*types.ShardAssignment{
			0: {ShardID: 0, PrimaryNode: "node-1"},
			1: {ShardID: 1, PrimaryNode: "node-1"},
		},
	}))

	reg := &staticRegistry{collections: []ShardedCollection{
		{Database: "db", Collection: "items", Config: types.ShardConfig{NumShards: 4, ReplicationFactor: 1}},
	}}
	sink := &recordingSink{}
	migrator := &recordingMigrator{}

	r := New(reg, tables, sink, cl, migrator, time.Hour, discardLogger())
	require.NoError(t, r.Rebalance(context.Background()))

	require.Equal(t, 1, migrator.calls)
	require.Equal(t, uint16(2), migrator.from)
	require.Equal(t, uint16(4), migrator.to)
}

func TestRebalanceSkipsWhenAlreadyRunning(t *testing.T) {
	engine := openTestEngine(t)
	cl := newTestCluster(t, engine, "node-1", "node-1")
	reg := &staticRegistry{}
	tables := NewEngineTableStores(engine)
	sink := &recordingSink{}

	r := New(reg, tables, sink, cl, nil, time.Hour, discardLogger())
	r.running = 1
	require.NoError(t, r.Rebalance(context.Background()))
	require.Nil(t, sink.tables)
}

func TestCountMovesDetectsPrimaryChange(t *testing.T) {
	prev := map[uint16]*types.ShardAssignment{
		0: {ShardID: 0, PrimaryNode: "node-1", ReplicaNodes: []string{"node-2"}},
	}
	next := map[uint16]*types.ShardAssignment{
		0: {ShardID: 0, PrimaryNode: "node-2", ReplicaNodes: []string{"node-1"}},
	}
	require.Equal(t, 1, countMoves(prev, next))
	require.Equal(t, 0, countMoves(prev, prev))
}
