// Package database is the top-level orchestrator: it owns the KV engine
// and wires every other component together in the dependency order
// spec.md §9 names ("KV → Log → Cluster State → Shard Table →
// Coordinator → Worker → Rebalancer"), replacing warren's
// manager.NewManager/Manager construction sequence with solidb's own.
package database

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solidb/solidb/pkg/cluster"
	"github.com/solidb/solidb/pkg/columnar"
	"github.com/solidb/solidb/pkg/coordinator"
	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/doc"
	"github.com/solidb/solidb/pkg/events"
	"github.com/solidb/solidb/pkg/migration"
	"github.com/solidb/solidb/pkg/oplog"
	"github.com/solidb/solidb/pkg/rebalancer"
	"github.com/solidb/solidb/pkg/replication"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

// Config is everything a node needs to construct its Database.
type Config struct {
	NodeID      string
	DataDir     string
	BindAddress string // TCP sync listener, pkg/synctransport
	APIAddress  string // HTTP shard-internal RPC + client surface

	RebalanceInterval time.Duration
	Replication       replication.Config

	// Transport is the Sync Transport implementation (pkg/synctransport
	// in production); nil runs the node without peer pull/heartbeat,
	// useful for single-node deployments and tests.
	Transport replication.Transport

	// ClusterID derives the shared HMAC key pkg/synctransport uses to
	// authenticate sync connections (security.DeriveKeyFromClusterID);
	// empty runs the cluster unauthenticated.
	ClusterID string
}

// Database is one node's whole storage and coordination stack.
type Database struct {
	cfg    Config
	logger zerolog.Logger

	engine  storage.Engine
	broker  *events.Broker
	log     *oplog.Log
	cluster *cluster.State
	monitor *cluster.Monitor

	registry    *registry
	coordinator *coordinator.Coordinator
	handler     *coordinator.Handler
	forwarder   *coordinator.HTTPForwarder

	tableStores *rebalancer.EngineTableStores
	migrator    *migration.Migrator
	rebalancer  *rebalancer.Rebalancer
	replication *replication.Worker

	mu          sync.Mutex
	collections map[string]*doc.Collection
	columnars   map[string]*columnar.Collection
}

// New constructs a Database following spec.md §9's dependency order.
// Open is cheap to call repeatedly in tests; Start/Stop govern the
// background workers (rebalancer, replication, dead-node monitor).
func New(cfg Config, logger zerolog.Logger) (*Database, error) {
	if cfg.NodeID == "" {
		return nil, dberr.BadRequest("node id is required")
	}

	// 1. KV engine.
	engine, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, dberr.Internal("open storage engine", err)
	}

	// 2. Operation log (+ HLC clock).
	log, err := oplog.Open(engine, cfg.NodeID)
	if err != nil {
		return nil, dberr.Internal("open operation log", err)
	}

	// 3. Cluster state.
	clusterState, err := cluster.Open(engine, cfg.NodeID)
	if err != nil {
		return nil, dberr.Internal("open cluster state", err)
	}
	if cfg.APIAddress != "" {
		if err := clusterState.Upsert(&types.Member{
			NodeID:     cfg.NodeID,
			APIAddress: cfg.APIAddress,
			Status:     types.NodeActive,
			Role:       types.RolePrimaryCapable,
		}); err != nil {
			return nil, dberr.Internal("register self in cluster state", err)
		}
	}

	reg, err := openRegistry(engine)
	if err != nil {
		return nil, dberr.Internal("open collection registry", err)
	}

	broker := events.NewBroker()
	broker.Start()

	forwarder := coordinator.NewHTTPForwarder(10 * time.Second)

	// 4. Shard table store (opened lazily per database) + 5. Coordinator.
	coord := coordinator.New(engine, broker, clusterState, log, cfg.NodeID, forwarder, logger)

	d := &Database{
		cfg:         cfg,
		logger:      logger,
		engine:      engine,
		broker:      broker,
		log:         log,
		cluster:     clusterState,
		registry:    reg,
		coordinator: coord,
		forwarder:   forwarder,
		tableStores: rebalancer.NewEngineTableStores(engine),
		collections: make(map[string]*doc.Collection),
		columnars:   make(map[string]*columnar.Collection),
	}
	// d itself satisfies coordinator.MetaLookup once its registry field is
	// set above; the handler can reference d before the rest of d's
	// fields (rebalancer, migrator) are filled in below.
	d.handler = coordinator.NewHandler(coord, d)

	// 6. Replication worker, if a transport was supplied.
	if cfg.Transport != nil {
		worker, err := replication.New(engine, cfg.NodeID, clusterState, cfg.Transport, d, d, cfg.Replication, logger)
		if err != nil {
			return nil, dberr.Internal("open replication worker", err)
		}
		d.replication = worker
	}

	d.migrator = migration.New(engine, broker, d, coord, forwarder, &migration.ClusterResolver{Cluster: clusterState}, cfg.NodeID, logger)

	// 7. Rebalancer.
	interval := cfg.RebalanceInterval
	d.rebalancer = rebalancer.New(d, d.tableStores, coord, clusterState, d.migrator, interval, logger)

	d.monitor = cluster.NewMonitor(clusterState, nil, cluster.HeartbeatTimeout)

	return d, nil
}

// Start launches every background worker: dead-node monitor,
// replication pull/heartbeat loop, rebalancer tick.
func (d *Database) Start() {
	d.monitor.Start()
	if d.replication != nil {
		d.replication.Start()
	}
	d.rebalancer.Start()
}

// Stop halts every background worker and closes the KV engine.
func (d *Database) Stop() error {
	d.rebalancer.Stop()
	if d.replication != nil {
		d.replication.Stop()
	}
	d.monitor.Stop()
	d.broker.Stop()
	return d.engine.Close()
}

// Handler returns the shard-internal HTTP RPC surface (spec.md §6).
func (d *Database) Handler() *coordinator.Handler { return d.handler }

// Log returns the local operation log, used by pkg/synctransport.Server
// to answer peers' IncrementalSyncRequests.
func (d *Database) Log() *oplog.Log { return d.log }

// ReceiveHeartbeat forwards a peer's heartbeat to the replication
// worker, if one is running. It is the callback pkg/synctransport.Server
// invokes for incoming Heartbeat messages.
func (d *Database) ReceiveHeartbeat(nodeID string, currentSeq uint64) error {
	if d.replication == nil {
		return nil
	}
	return d.replication.ReceiveHeartbeat(replication.HeartbeatStats{NodeID: nodeID, CurrentSeq: currentSeq})
}

// CollectionMeta satisfies pkg/coordinator.MetaLookup and
// pkg/migration's dependency of the same name.
func (d *Database) CollectionMeta(database, collection string) (types.CollectionMeta, bool) {
	return d.registry.get(database, collection)
}

// ColumnarMeta returns the stored metadata for a columnar (analytics)
// collection, used by pkg/sdbql to detect when a FOR source can take
// its columnar aggregation fast path.
func (d *Database) ColumnarMeta(database, collection string) (types.ColumnarMeta, bool) {
	return d.registry.getColumnar(database, collection)
}

// ShardedCollections satisfies pkg/rebalancer.Registry.
func (d *Database) ShardedCollections() []rebalancer.ShardedCollection {
	return d.registry.shardedCollections()
}

// CreateDatabase registers a new logical database.
func (d *Database) CreateDatabase(database string) error {
	if err := d.registry.createDatabase(database); err != nil {
		return err
	}
	d.appendSchemaOp(database, "", types.OpCreateDatabase, nil)
	return nil
}

// DeleteDatabase removes a database and every collection within it.
func (d *Database) DeleteDatabase(database string) error {
	if err := d.registry.deleteDatabase(database); err != nil {
		return err
	}
	d.mu.Lock()
	for key := range d.collections {
		if hasPrefix(key, database+"/") {
			delete(d.collections, key)
		}
	}
	d.mu.Unlock()
	d.appendSchemaOp(database, "", types.OpDeleteDatabase, nil)
	return nil
}

// CreateCollection registers meta and, if sharded, seeds its initial
// shard table via an immediate out-of-band rebalance rather than waiting
// for the next tick, so the first write has somewhere to route to.
func (d *Database) CreateCollection(ctx context.Context, meta types.CollectionMeta) error {
	if !d.registry.hasDatabase(meta.Database) {
		return dberr.NotFound("database " + meta.Database + " does not exist")
	}
	meta.CreatedAt = timeNow()
	if err := d.registry.putCollection(meta); err != nil {
		return err
	}
	raw, _ := marshalMeta(meta)
	d.appendSchemaOp(meta.Database, meta.Name, types.OpCreateCollection, raw)
	if meta.Sharded() {
		return d.rebalancer.Rebalance(ctx)
	}
	return nil
}

// DeleteCollection drops a collection's metadata and cached handle.
func (d *Database) DeleteCollection(database, collection string) error {
	if err := d.registry.deleteCollection(database, collection); err != nil {
		return err
	}
	key := database + "/" + collection
	d.mu.Lock()
	delete(d.collections, key)
	delete(d.columnars, key)
	d.mu.Unlock()
	d.appendSchemaOp(database, collection, types.OpDeleteCollection, nil)
	return nil
}

// Open opens (or returns the cached handle for) a logical document
// collection. Satisfies pkg/replication.Collections.
func (d *Database) Open(database, collection string) (*doc.Collection, error) {
	key := database + "/" + collection
	d.mu.Lock()
	if c, ok := d.collections[key]; ok {
		d.mu.Unlock()
		return c, nil
	}
	d.mu.Unlock()

	meta, ok := d.registry.get(database, collection)
	if !ok {
		return nil, dberr.CollectionNotFound(collection)
	}
	col, err := doc.Open(d.engine, meta, d.broker)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.collections[key]; ok {
		return existing, nil
	}
	d.collections[key] = col
	return col, nil
}

// CreateColumnarCollection registers a new columnar (analytics)
// collection's column schema.
func (d *Database) CreateColumnarCollection(meta types.ColumnarMeta) error {
	if !d.registry.hasDatabase(meta.Database) {
		return dberr.NotFound("database " + meta.Database + " does not exist")
	}
	meta.CreatedAt = timeNow()
	return d.registry.putColumnar(meta)
}

// OpenColumnar opens (or returns the cached handle for) a columnar
// collection, used by the SDBQL Executor's columnar aggregation fast
// path (spec.md §4.M).
func (d *Database) OpenColumnar(database, collection string) (*columnar.Collection, error) {
	key := database + "/" + collection
	d.mu.Lock()
	if c, ok := d.columnars[key]; ok {
		d.mu.Unlock()
		return c, nil
	}
	d.mu.Unlock()

	meta, ok := d.registry.getColumnar(database, collection)
	if !ok {
		return nil, dberr.CollectionNotFound(collection)
	}
	col, err := columnar.Open(d.engine, meta)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.columnars[key]; ok {
		return existing, nil
	}
	d.columnars[key] = col
	return col, nil
}

// ApplyCreateDatabase, ApplyDeleteDatabase, ApplyCreateCollection and
// ApplyDeleteCollection satisfy pkg/replication.SchemaOps: applying a
// schema operation pulled from a peer's log, never logging it again
// locally (it already has its origin elsewhere).
func (d *Database) ApplyCreateDatabase(database string) error {
	return d.registry.createDatabase(database)
}

func (d *Database) ApplyDeleteDatabase(database string) error {
	return d.registry.deleteDatabase(database)
}

func (d *Database) ApplyCreateCollection(database string, meta types.CollectionMeta) error {
	meta.Database = database
	return d.registry.putCollection(meta)
}

func (d *Database) ApplyDeleteCollection(database, collection string) error {
	return d.registry.deleteCollection(database, collection)
}

func (d *Database) appendSchemaOp(database, collection string, op types.OpKind, data []byte) {
	_, err := d.log.Append(types.LogEntry{Database: database, Collection: collection, Op: op, Data: data})
	if err != nil {
		d.logger.Warn().Err(err).Str("database", database).Str("collection", collection).Msg("append schema op to log failed")
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func timeNow() time.Time { return time.Now() }

func marshalMeta(meta types.CollectionMeta) ([]byte, error) {
	return json.Marshal(meta)
}
