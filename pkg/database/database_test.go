package database

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/solidb/solidb/pkg/types"
)

func discardLogger() zerolog.Logger { return zerolog.Nop() }

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	d, err := New(Config{NodeID: "node-1", DataDir: t.TempDir(), APIAddress: "127.0.0.1:9000"}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestCreateDatabaseAndCollectionRoundTrip(t *testing.T) {
	d := newTestDatabase(t)
	require.NoError(t, d.CreateDatabase("shop"))
	require.NoError(t, d.CreateCollection(context.Background(), types.CollectionMeta{
		Database: "shop",
		Name:     "orders",
		Type:     types.CollectionDocument,
	}))

	meta, ok := d.CollectionMeta("shop", "orders")
	require.True(t, ok)
	require.Equal(t, "orders", meta.Name)

	col, err := d.Open("shop", "orders")
	require.NoError(t, err)
	doc, err := col.Insert(map[string]interface{}{"item": "widget"})
	require.NoError(t, err)
	require.NotEmpty(t, doc.Key)

	again, err := d.Open("shop", "orders")
	require.NoError(t, err)
	require.Same(t, col, again)
}

func TestCreateCollectionRequiresExistingDatabase(t *testing.T) {
	d := newTestDatabase(t)
	err := d.CreateCollection(context.Background(), types.CollectionMeta{Database: "missing", Name: "x"})
	require.Error(t, err)
}

func TestShardedCollectionSeedsShardTableOnCreate(t *testing.T) {
	d := newTestDatabase(t)
	require.NoError(t, d.CreateDatabase("shop"))
	require.NoError(t, d.CreateCollection(context.Background(), types.CollectionMeta{
		Database: "shop",
		Name:     "events",
		Type:     types.CollectionDocument,
		ShardConfig: &types.ShardConfig{
			NumShards:         4,
			ShardKey:          "_key",
			ReplicationFactor: 1,
		},
	}))

	store, err := d.tableStores.For("shop")
	require.NoError(t, err)
	table, err := store.Load("events")
	require.NoError(t, err)
	require.Equal(t, uint16(4), table.NumShards)
}

func TestDeleteDatabaseRemovesCollections(t *testing.T) {
	d := newTestDatabase(t)
	require.NoError(t, d.CreateDatabase("shop"))
	require.NoError(t, d.CreateCollection(context.Background(), types.CollectionMeta{Database: "shop", Name: "orders", Type: types.CollectionDocument}))
	require.NoError(t, d.DeleteDatabase("shop"))

	_, ok := d.CollectionMeta("shop", "orders")
	require.False(t, ok)
}

func TestApplySchemaOpsUsedByReplication(t *testing.T) {
	d := newTestDatabase(t)
	require.NoError(t, d.ApplyCreateDatabase("replica-db"))
	require.NoError(t, d.ApplyCreateCollection("replica-db", types.CollectionMeta{Name: "items", Type: types.CollectionDocument}))

	col, err := d.Open("replica-db", "items")
	require.NoError(t, err)
	require.NotNil(t, col)

	require.NoError(t, d.ApplyDeleteCollection("replica-db", "items"))
	_, ok := d.CollectionMeta("replica-db", "items")
	require.False(t, ok)
}
