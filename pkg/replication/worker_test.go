package replication

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/solidb/solidb/pkg/cluster"
	"github.com/solidb/solidb/pkg/doc"
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

type fakeTransport struct {
	batches map[string]SyncBatch
	pulls   []uint64
}

func (f *fakeTransport) PullSince(ctx context.Context, peerAddr string, afterSeq uint64, maxBatchBytes int) (SyncBatch, error) {
	f.pulls = append(f.pulls, afterSeq)
	return f.batches[peerAddr], nil
}

func (f *fakeTransport) SendHeartbeat(ctx context.Context, peerAddr string, stats HeartbeatStats) error {
	return nil
}

type openingCollections struct {
	engine storage.Engine
	meta   map[string]types.CollectionMeta
}

func (c *openingCollections) Open(database, collection string) (*doc.Collection, error) {
	m := c.meta[database+"/"+collection]
	m.Database = database
	m.Name = collection
	return doc.Open(c.engine, m, nil)
}

func TestPullFromPeerAppliesInsertsAndAdvancesCursor(t *testing.T) {
	engine := openTestEngine(t)
	cl, err := cluster.Open(engine, "node-1")
	require.NoError(t, err)
	require.NoError(t, cl.Upsert(&types.Member{NodeID: "node-2", APIAddress: "10.0.0.2:9000", Status: types.NodeActive}))

	payload, _ := json.Marshal(map[string]interface{}{"name": "widget"})
	transport := &fakeTransport{batches: map[string]SyncBatch{
		"10.0.0.2:9000": {
			HasMore:         false,
			CurrentSequence: 2,
			Entries: []types.LogEntry{
				{Seq: 1, OriginNode: "node-2", OriginSeq: 1, Database: "db", Collection: "items", Op: types.OpInsert, Key: "k1", Data: payload},
				{Seq: 2, OriginNode: "node-2", OriginSeq: 2, Database: "db", Collection: "items", Op: types.OpInsert, Key: "k2", Data: payload},
			},
		},
	}}
	collections := &openingCollections{engine: engine, meta: map[string]types.CollectionMeta{}}

	w, err := New(engine, "node-1", cl, transport, collections, nil, DefaultConfig(), discardLogger())
	require.NoError(t, err)

	require.NoError(t, w.pullFromPeer("node-2"))
	require.Equal(t, uint64(2), w.cursors.Get("node-2"))
	require.Equal(t, []uint64{0}, transport.pulls)

	col, err := collections.Open("db", "items")
	require.NoError(t, err)
	require.Equal(t, int64(2), col.Count())
}

func TestPullFromPeerDoesNotAdvanceCursorOnEmptyBatch(t *testing.T) {
	engine := openTestEngine(t)
	cl, err := cluster.Open(engine, "node-1")
	require.NoError(t, err)
	require.NoError(t, cl.Upsert(&types.Member{NodeID: "node-2", APIAddress: "10.0.0.2:9000", Status: types.NodeActive}))

	transport := &fakeTransport{batches: map[string]SyncBatch{}}
	collections := &openingCollections{engine: engine, meta: map[string]types.CollectionMeta{}}
	w, err := New(engine, "node-1", cl, transport, collections, nil, DefaultConfig(), discardLogger())
	require.NoError(t, err)

	require.NoError(t, w.cursors.Set("node-2", 5))
	require.NoError(t, w.pullFromPeer("node-2"))
	require.Equal(t, uint64(5), w.cursors.Get("node-2"))
}

func TestIsPhysicalShardCollection(t *testing.T) {
	require.True(t, isPhysicalShardCollection("items_s0"))
	require.True(t, isPhysicalShardCollection("items_s12"))
	require.False(t, isPhysicalShardCollection("items"))
	require.False(t, isPhysicalShardCollection("items_staging"))
}

func TestGroupEntriesSplitsSchemaOpsIndividually(t *testing.T) {
	entries := []types.LogEntry{
		{Database: "db", Collection: "items", Op: types.OpInsert, Key: "k1"},
		{Database: "db", Collection: "items", Op: types.OpInsert, Key: "k2"},
		{Database: "db", Collection: "items", Op: types.OpCreateCollection},
		{Database: "db", Collection: "items", Op: types.OpCreateCollection},
		{Database: "db", Collection: "items", Op: types.OpInsert, Key: "k3"},
	}
	groups := groupEntries(entries)
	require.Len(t, groups, 4)
	require.Len(t, groups[0].entries, 2)
	require.Len(t, groups[1].entries, 1)
	require.Len(t, groups[2].entries, 1)
	require.Len(t, groups[3].entries, 1)
}

func TestWorkerStartStop(t *testing.T) {
	engine := openTestEngine(t)
	cl, err := cluster.Open(engine, "node-1")
	require.NoError(t, err)
	w, err := New(engine, "node-1", cl, &fakeTransport{batches: map[string]SyncBatch{}}, &openingCollections{engine: engine, meta: map[string]types.CollectionMeta{}}, nil, DefaultConfig(), discardLogger())
	require.NoError(t, err)
	w.Start()
	time.Sleep(10 * time.Millisecond)
	w.Stop()
}
