package rebalancer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/solidb/solidb/pkg/cluster"
	"github.com/solidb/solidb/pkg/metrics"
	"github.com/solidb/solidb/pkg/shard"
	"github.com/solidb/solidb/pkg/types"
)

// ShardedCollection names one collection the rebalancer should keep
// placed, as reported by the database orchestrator's collection
// registry.
type ShardedCollection struct {
	Database   string
	Collection string
	Config     types.ShardConfig
}

// Registry enumerates every currently-declared sharded collection.
type Registry interface {
	ShardedCollections() []ShardedCollection
}

// TableStore persists and loads one collection's ShardTable, the
// subset of pkg/shard.Store's surface the rebalancer needs.
type TableStore interface {
	Load(collection string) (*types.ShardTable, error)
	Save(t *types.ShardTable) error
}

// TableStores resolves the TableStore for a database (one shard
// column-family per database, per pkg/shard.Store).
type TableStores interface {
	For(database string) (TableStore, error)
}

// PlacementSink receives a freshly computed table so the Shard
// Coordinator starts routing against it immediately, without waiting for
// a reload.
type PlacementSink interface {
	SetShardTable(database, collection string, table *types.ShardTable)
}

// Migrator moves data between shard layouts after a shard-count change.
// pkg/migration implements this; rebalancer only depends on the
// interface so the two packages don't import each other.
type Migrator interface {
	Reshard(ctx context.Context, database, collection string, oldShards, newShards uint16, oldAssignments, newAssignments map[uint16]*types.ShardAssignment) error
}

// Rebalancer periodically recomputes shard placement for every sharded
// collection and triggers migration on shard-count changes.
type Rebalancer struct {
	registry Registry
	tables   TableStores
	sink     PlacementSink
	cluster  *cluster.State
	migrator Migrator
	logger   zerolog.Logger

	interval time.Duration
	stopCh   chan struct{}
	running  int32

	mu              sync.Mutex
	lastCompletedAt time.Time
}

// New builds a Rebalancer. migrator may be nil — shard-count changes
// still recompute and persist the table, but data movement is skipped
// and a warning is logged rather than panicking.
func New(registry Registry, tables TableStores, sink PlacementSink, clusterState *cluster.State, migrator Migrator, interval time.Duration, logger zerolog.Logger) *Rebalancer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Rebalancer{
		registry: registry,
		tables:   tables,
		sink:     sink,
		cluster:  clusterState,
		migrator: migrator,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (r *Rebalancer) Start() { go r.run() }
func (r *Rebalancer) Stop()  { close(r.stopCh) }

func (r *Rebalancer) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Rebalance(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("rebalance pass failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Rebalance runs one pass over every sharded collection. Concurrent
// passes are refused — a slow migration triggered by one pass must not
// overlap with the next tick's placement recompute.
func (r *Rebalancer) Rebalance(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		r.logger.Warn().Msg("rebalance already in progress, skipping")
		return nil
	}
	defer atomic.StoreInt32(&r.running, 0)

	nodes := r.activeNodesSorted()
	if len(nodes) == 0 {
		return nil
	}

	for _, sc := range r.registry.ShardedCollections() {
		if err := r.rebalanceOne(ctx, sc, nodes); err != nil {
			r.logger.Error().Err(err).Str("database", sc.Database).Str("collection", sc.Collection).Msg("rebalance collection failed")
		}
	}

	r.mu.Lock()
	r.lastCompletedAt = time.Now()
	r.mu.Unlock()
	return nil
}

func (r *Rebalancer) activeNodesSorted() []string {
	if r.cluster == nil {
		return nil
	}
	ids := r.cluster.ActiveNodeIDs()
	sort.Strings(ids)
	return ids
}

func (r *Rebalancer) rebalanceOne(ctx context.Context, sc ShardedCollection, nodes []string) error {
	store, err := r.tables.For(sc.Database)
	if err != nil {
		return err
	}

	current, err := store.Load(sc.Collection)
	if err != nil {
		current = nil // no table yet: first placement
	}

	var previous map[uint16]*types.ShardAssignment
	oldShards := sc.Config.NumShards
	needsMigration := false
	if current != nil {
		previous = current.Shards
		if current.NumShards != sc.Config.NumShards {
			oldShards = current.NumShards
			needsMigration = true
		}
	}

	assignments, err := shard.ComputeAssignments(nodes, sc.Config.NumShards, sc.Config.ReplicationFactor, previous)
	if err != nil {
		return err
	}

	moves := countMoves(previous, assignments)
	if moves > 0 {
		metrics.ShardRebalanceMovesTotal.Add(float64(moves))
	}

	table := shard.NewTable(sc.Database, sc.Collection, sc.Config.NumShards, assignments)
	if err := store.Save(table); err != nil {
		return err
	}
	r.sink.SetShardTable(sc.Database, sc.Collection, table)

	if needsMigration {
		if r.migrator == nil {
			r.logger.Warn().Str("database", sc.Database).Str("collection", sc.Collection).
				Msg("shard count changed but no migrator is wired; table updated without moving data")
			return nil
		}
		return r.migrator.Reshard(ctx, sc.Database, sc.Collection, oldShards, sc.Config.NumShards, previous, assignments)
	}
	return nil
}

// countMoves counts how many shards changed primary or replica set
// between two assignment maps, for the rebalance-moves metric.
func countMoves(previous, next map[uint16]*types.ShardAssignment) int {
	moves := 0
	for sid, n := range next {
		p, ok := previous[sid]
		if !ok || p.PrimaryNode != n.PrimaryNode || !sameSet(p.ReplicaNodes, n.ReplicaNodes) {
			moves++
		}
	}
	return moves
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}
