package coordinator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

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

func TestInsertFallsBackToLocalWithoutShardTable(t *testing.T) {
	engine := openTestEngine(t)
	c := New(engine, nil, nil, nil, "node-1", nil, discardLogger())

	meta := types.CollectionMeta{Database: "db", Name: "items", Type: types.CollectionDocument,
		ShardConfig: &types.ShardConfig{NumShards: 4, ReplicationFactor: 1}}

	d, err := c.Insert(context.Background(), "db", "items", meta, map[string]interface{}{"name": "widget"})
	require.NoError(t, err)
	require.NotEmpty(t, d.Key)

	got, err := c.Get("db", "items", meta, d.Key)
	require.NoError(t, err)
	require.Equal(t, "widget", got.Fields["name"])
}

type fakeForwarder struct {
	batches []BatchResponse
	calls   []string
}

func (f *fakeForwarder) ForwardBatch(ctx context.Context, apiAddress, database, collection string, direct bool, docs []map[string]interface{}) (BatchResponse, error) {
	f.calls = append(f.calls, apiAddress)
	return BatchResponse{Inserted: len(docs), N: len(docs)}, nil
}

func (f *fakeForwarder) Verify(ctx context.Context, apiAddress, database, collection string, keys []string) (VerifyResponse, error) {
	return VerifyResponse{}, nil
}

func TestInsertForwardsToPrimaryWhenNotResponsible(t *testing.T) {
	engine := openTestEngine(t)
	fwd := &fakeForwarder{}
	c := New(engine, nil, nil, nil, "node-2", fwd, discardLogger())

	meta := types.CollectionMeta{Database: "db", Name: "items", Type: types.CollectionDocument,
		ShardConfig: &types.ShardConfig{NumShards: 4, ReplicationFactor: 1}}
	c.SetShardTable("db", "items", &types.ShardTable{
		Database: "db", Collection: "items", NumShards: 4,
		Shards: map[uint16]*types.ShardAssignment{
			0: {ShardID: 0, PrimaryNode: "node-1"},
			1: {ShardID: 1, PrimaryNode: "node-1"},
			2: {ShardID: 2, PrimaryNode: "node-1"},
			3: {ShardID: 3, PrimaryNode: "node-1"},
		},
	})

	_, err := c.Insert(context.Background(), "db", "items", meta, map[string]interface{}{"_key": "k1", "name": "widget"})
	require.NoError(t, err)
	require.Len(t, fwd.calls, 1)
	require.Equal(t, "node-1", fwd.calls[0])
}

func TestInsertAppliesLocallyWhenPrimary(t *testing.T) {
	engine := openTestEngine(t)
	fwd := &fakeForwarder{}
	c := New(engine, nil, nil, nil, "node-1", fwd, discardLogger())

	meta := types.CollectionMeta{Database: "db", Name: "items", Type: types.CollectionDocument,
		ShardConfig: &types.ShardConfig{NumShards: 4, ReplicationFactor: 2}}
	c.SetShardTable("db", "items", &types.ShardTable{
		Database: "db", Collection: "items", NumShards: 4,
		Shards: map[uint16]*types.ShardAssignment{
			0: {ShardID: 0, PrimaryNode: "node-1", ReplicaNodes: []string{"node-2"}},
			1: {ShardID: 1, PrimaryNode: "node-1", ReplicaNodes: []string{"node-2"}},
			2: {ShardID: 2, PrimaryNode: "node-1", ReplicaNodes: []string{"node-2"}},
			3: {ShardID: 3, PrimaryNode: "node-1", ReplicaNodes: []string{"node-2"}},
		},
	})

	d, err := c.Insert(context.Background(), "db", "items", meta, map[string]interface{}{"_key": "k1", "name": "widget"})
	require.NoError(t, err)
	require.Equal(t, "k1", d.Key)

	got, err := c.Get("db", "items", meta, "k1")
	require.NoError(t, err)
	require.Equal(t, "widget", got.Fields["name"])
}

func TestBreakerSkipsNodeAfterFailures(t *testing.T) {
	b := newBreaker()
	require.True(t, b.Allowed("n1"))
	b.RecordFailure("n1")
	require.False(t, b.Allowed("n1"))
	b.RecordSuccess("n1")
	require.True(t, b.Allowed("n1"))
}
