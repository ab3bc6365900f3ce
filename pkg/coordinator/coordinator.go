package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solidb/solidb/pkg/cluster"
	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/doc"
	"github.com/solidb/solidb/pkg/events"
	"github.com/solidb/solidb/pkg/oplog"
	"github.com/solidb/solidb/pkg/shard"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

// fanoutDeadline bounds how long a fire-and-forget replica fan-out push
// is allowed to run before it is abandoned; replication factor
// correctness is eventual (spec.md §4.H step 4), so a slow replica never
// blocks the primary's response to the caller.
const fanoutDeadline = 3 * time.Second

// Coordinator routes document operations to the shard(s) responsible for
// them, applying locally, forwarding to a primary, or fanning out to
// replicas as spec.md §4.H specifies.
type Coordinator struct {
	engine    storage.Engine
	broker    *events.Broker
	cluster   *cluster.State
	log       *oplog.Log
	selfID    string
	forwarder Forwarder
	breaker   *breaker
	logger    zerolog.Logger

	mu          sync.RWMutex
	tables      map[string]*types.ShardTable
	collections map[string]*doc.Collection
}

// New builds a Coordinator. log may be nil for components that do not
// need operation-log append (e.g. tests exercising routing only).
func New(engine storage.Engine, broker *events.Broker, clusterState *cluster.State, log *oplog.Log, selfID string, forwarder Forwarder, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		engine:      engine,
		broker:      broker,
		cluster:     clusterState,
		log:         log,
		selfID:      selfID,
		forwarder:   forwarder,
		breaker:     newBreaker(),
		logger:      logger,
		tables:      make(map[string]*types.ShardTable),
		collections: make(map[string]*doc.Collection),
	}
}

func tableKey(database, collection string) string { return database + "/" + collection }

// SetShardTable installs the placement table a collection should route
// against. Called at startup (from pkg/shard.Store.Load) and whenever
// the rebalancer recomputes assignments.
func (c *Coordinator) SetShardTable(database, collection string, table *types.ShardTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[tableKey(database, collection)] = table
}

func (c *Coordinator) tableFor(database, collection string) *types.ShardTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[tableKey(database, collection)]
}

func (c *Coordinator) shardCollection(database, collection string, shardID uint16, meta types.CollectionMeta) (*doc.Collection, error) {
	key := tableKey(database, doc.PhysicalName(collection, shardID))
	c.mu.RLock()
	col, ok := c.collections[key]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[key]; ok {
		return col, nil
	}
	physical := meta
	physical.Name = doc.PhysicalName(collection, shardID)
	col, err := doc.Open(c.engine, physical, c.broker)
	if err != nil {
		return nil, err
	}
	c.collections[key] = col
	return col, nil
}

// route resolves the shard id, assignment, and whether this node is the
// primary or a replica for shardKeyValue, consulting the shard table
// first and falling back to the algorithmic ring (spec.md §4.H step 6)
// when no table entry exists yet.
func (c *Coordinator) route(database, collection string, cfg *types.ShardConfig, shardKeyValue string) (shardID uint16, assignment *types.ShardAssignment, isPrimary, isReplica bool) {
	numShards := uint16(1)
	rf := uint16(1)
	if cfg != nil && cfg.NumShards > 0 {
		numShards = cfg.NumShards
		rf = cfg.ReplicationFactor
		if rf == 0 {
			rf = 1
		}
	}
	shardID = shard.Route(shardKeyValue, numShards)

	if table := c.tableFor(database, collection); table != nil {
		if a := table.Shards[shardID]; a != nil {
			isPrimary = a.PrimaryNode == c.selfID
			for _, r := range a.ReplicaNodes {
				if r == c.selfID {
					isReplica = true
				}
			}
			return shardID, a, isPrimary, isReplica
		}
	}

	// Degenerate fallback: no table yet, decide via the ring formula
	// against currently active nodes.
	nodes := c.activeNodeIDsSorted()
	if len(nodes) == 0 {
		return shardID, nil, true, false
	}
	idx := indexOf(nodes, c.selfID)
	if idx < 0 {
		return shardID, nil, true, false // can't place self, store locally to avoid data loss
	}
	if shard.IsShardReplica(shardID, idx, rf, len(nodes)) {
		return shardID, nil, true, false
	}
	// Not responsible under the ring formula either, but spec.md §4.H
	// step 6 says store locally anyway rather than lose the write; a
	// later rebalance corrects placement.
	return shardID, nil, true, false
}

func (c *Coordinator) activeNodeIDsSorted() []string {
	if c.cluster == nil {
		return nil
	}
	ids := c.cluster.ActiveNodeIDs()
	sort.Strings(ids)
	return ids
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

func shardKeyFieldValue(cfg *types.ShardConfig, key string, data map[string]interface{}) string {
	if cfg == nil || cfg.ShardKey == "" || cfg.ShardKey == "_key" {
		return key
	}
	if v, ok := data[cfg.ShardKey]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return key
}

// Insert routes a single document insert per spec.md §4.H steps 1-6.
func (c *Coordinator) Insert(ctx context.Context, database, collection string, meta types.CollectionMeta, data map[string]interface{}) (types.Document, error) {
	key, err := doc.ResolveKey(data)
	if err != nil {
		return types.Document{}, err
	}
	data["_key"] = key

	shardID, assignment, isPrimary, isReplica := c.route(database, collection, meta.ShardConfig, shardKeyFieldValue(meta.ShardConfig, key, data))
	_ = isReplica

	if !isPrimary && assignment != nil {
		resp, err := c.forwardToPrimary(ctx, database, collection, assignment.PrimaryNode, data)
		if err != nil {
			return types.Document{}, err
		}
		if resp.Inserted == 0 && resp.N == 0 {
			return types.Document{}, dberr.ShardUnavailable("primary " + assignment.PrimaryNode + " rejected the write")
		}
		return types.NewDocument(collection, key, data), nil
	}

	col, err := c.shardCollection(database, collection, shardID, meta)
	if err != nil {
		return types.Document{}, err
	}
	inserted, err := col.Insert(data)
	if err != nil {
		return types.Document{}, err
	}

	c.appendLog(database, collection, shardID, types.OpInsert, inserted.Key, nil)

	if assignment != nil && len(assignment.ReplicaNodes) > 0 {
		c.fanOutReplicas(database, collection, assignment.ReplicaNodes, []map[string]interface{}{inserted.ToMap()})
	}
	return inserted, nil
}

func (c *Coordinator) forwardToPrimary(ctx context.Context, database, collection, primary string, data map[string]interface{}) (BatchResponse, error) {
	if c.forwarder == nil {
		return BatchResponse{}, dberr.ShardUnavailable("no forwarder configured")
	}
	if !c.breaker.Allowed(primary) {
		return BatchResponse{}, dberr.ShardUnavailable("primary " + primary + " is circuit-broken")
	}
	resp, err := c.forwarder.ForwardBatch(ctx, primary, database, collection, true, []map[string]interface{}{data})
	if err != nil {
		c.breaker.RecordFailure(primary)
		return BatchResponse{}, err
	}
	c.breaker.RecordSuccess(primary)
	return resp, nil
}

// fanOutReplicas pushes docs to every replica with a bounded deadline,
// fire-and-forget: failures are logged and feed the circuit breaker, but
// never surface to the caller (spec.md §4.H step 4, "eventual").
func (c *Coordinator) fanOutReplicas(database, collection string, replicas []string, docs []map[string]interface{}) {
	if c.forwarder == nil {
		return
	}
	for _, node := range replicas {
		node := node
		if !c.breaker.Allowed(node) {
			continue
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), fanoutDeadline)
			defer cancel()
			if _, err := c.forwarder.ForwardBatch(ctx, node, database, collection, false, docs); err != nil {
				c.breaker.RecordFailure(node)
				c.logger.Debug().Str("node", node).Err(err).Msg("replica fan-out failed")
				return
			}
			c.breaker.RecordSuccess(node)
		}()
	}
}

func (c *Coordinator) appendLog(database, collection string, shardID uint16, op types.OpKind, key string, data []byte) {
	if c.log == nil {
		return
	}
	sid := shardID
	if _, err := c.log.Append(types.LogEntry{Database: database, Collection: collection, Op: op, Key: key, Data: data, ShardID: &sid}); err != nil {
		c.logger.Warn().Err(err).Msg("append operation log entry failed")
	}
}

// Get reads a document from whichever shard holds it locally (primary
// preferred) — spec.md §4.H "Reads" clause.
func (c *Coordinator) Get(database, collection string, meta types.CollectionMeta, key string) (types.Document, error) {
	shardID, _, isPrimary, isReplica := c.route(database, collection, meta.ShardConfig, shardKeyFieldValue(meta.ShardConfig, key, nil))
	if !isPrimary && !isReplica {
		return types.Document{}, dberr.ShardUnavailable("not a holder of this shard")
	}
	col, err := c.shardCollection(database, collection, shardID, meta)
	if err != nil {
		return types.Document{}, err
	}
	return col.Get(key)
}

// Update routes an update the same way Insert does.
func (c *Coordinator) Update(ctx context.Context, database, collection string, meta types.CollectionMeta, key string, patch map[string]interface{}) (types.Document, error) {
	shardID, assignment, isPrimary, _ := c.route(database, collection, meta.ShardConfig, shardKeyFieldValue(meta.ShardConfig, key, patch))

	if !isPrimary && assignment != nil {
		merged := map[string]interface{}{"_key": key}
		for k, v := range patch {
			merged[k] = v
		}
		if _, err := c.forwardToPrimary(ctx, database, collection, assignment.PrimaryNode, merged); err != nil {
			return types.Document{}, err
		}
		return types.NewDocument(collection, key, patch), nil
	}

	col, err := c.shardCollection(database, collection, shardID, meta)
	if err != nil {
		return types.Document{}, err
	}
	updated, err := col.Update(key, patch)
	if err != nil {
		return types.Document{}, err
	}
	c.appendLog(database, collection, shardID, types.OpUpdate, key, nil)
	if assignment != nil && len(assignment.ReplicaNodes) > 0 {
		full := updated.ToMap()
		c.fanOutReplicas(database, collection, assignment.ReplicaNodes, []map[string]interface{}{full})
	}
	return updated, nil
}

// Delete routes a delete the same way Insert/Update do.
func (c *Coordinator) Delete(database, collection string, meta types.CollectionMeta, key string) error {
	shardID, assignment, isPrimary, _ := c.route(database, collection, meta.ShardConfig, shardKeyFieldValue(meta.ShardConfig, key, nil))
	if !isPrimary && assignment != nil {
		return dberr.ShardUnavailable("delete must be issued against the shard primary " + assignment.PrimaryNode)
	}
	col, err := c.shardCollection(database, collection, shardID, meta)
	if err != nil {
		return err
	}
	if err := col.Delete(key); err != nil {
		return err
	}
	c.appendLog(database, collection, shardID, types.OpDelete, key, nil)
	return nil
}

// ScanAllShards scatters a scan to every shard this node physically
// holds and concatenates the results. Cross-node scatter (asking peer
// primaries for the shards they hold) is left to the caller driving
// multiple Coordinators' ScanAllShards and merging — this method covers
// the local half of spec.md §4.H's "cluster-wide scans scatter" clause.
func (c *Coordinator) ScanAllShards(database, collection string, meta types.CollectionMeta, limit int) ([]types.Document, error) {
	numShards := uint16(1)
	if meta.Sharded() {
		numShards = meta.ShardConfig.NumShards
	}
	var out []types.Document
	for sid := uint16(0); sid < numShards; sid++ {
		col, err := c.shardCollection(database, collection, sid, meta)
		if err != nil {
			continue
		}
		docs, err := col.Scan(limit)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}

// SendBatch places a batch of already-keyed documents using the
// CURRENT shard table (meta.ShardConfig), routing each one exactly as
// Insert would — locally if this node is primary for its new shard,
// forwarded to the primary otherwise. It returns the keys that were
// placed successfully. The Rebalancer/Migration Engine call this after
// persisting a new ShardTable, so "current" already means "new".
func (c *Coordinator) SendBatch(ctx context.Context, database, collection string, meta types.CollectionMeta, docs []map[string]interface{}) ([]string, error) {
	placed := make([]string, 0, len(docs))
	for _, d := range docs {
		inserted, err := c.Insert(ctx, database, collection, meta, d)
		if err != nil {
			c.logger.Warn().Err(err).Str("database", database).Str("collection", collection).Msg("migration batch item failed")
			continue
		}
		placed = append(placed, inserted.Key)
	}
	return placed, nil
}

// Count sums per-shard document counts this node physically holds.
func (c *Coordinator) Count(database, collection string, meta types.CollectionMeta) int64 {
	numShards := uint16(1)
	if meta.Sharded() {
		numShards = meta.ShardConfig.NumShards
	}
	var total int64
	for sid := uint16(0); sid < numShards; sid++ {
		col, err := c.shardCollection(database, collection, sid, meta)
		if err != nil {
			continue
		}
		total += col.Count()
	}
	return total
}
