package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solidb/solidb/pkg/coordinator"
	"github.com/solidb/solidb/pkg/doc"
	"github.com/solidb/solidb/pkg/events"
	"github.com/solidb/solidb/pkg/shard"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

// batchSize bounds how many documents are sent to the BatchSender per
// call. maxDocsPerShard caps how much of one physical shard a single
// pass will move, so a runaway collection can't hang a rebalance pass
// indefinitely — the remainder is picked up on the next pass.
const (
	batchSize              = 2000
	maxDocsPerShard        = 20000
	maxConsecutiveFailures = 5
	failureRateThreshold   = 0.1
)

// BatchSender places already-keyed documents using the CURRENT shard
// table, reporting back which keys were placed. pkg/coordinator.Coordinator
// implements this via its SendBatch method.
type BatchSender interface {
	SendBatch(ctx context.Context, database, collection string, meta types.CollectionMeta, docs []map[string]interface{}) ([]string, error)
}

// NodeResolver maps a node id to the address migration uses for remote
// verification. pkg/cluster.State backs this in production.
type NodeResolver interface {
	APIAddress(nodeID string) (string, bool)
}

// Migrator implements pkg/rebalancer.Migrator: it moves a collection's
// documents to match a freshly computed shard table.
type Migrator struct {
	engine    storage.Engine
	broker    *events.Broker
	meta      coordinator.MetaLookup
	sender    BatchSender
	forwarder coordinator.Forwarder
	nodes     NodeResolver
	journal   *Journal
	selfID    string
	logger    zerolog.Logger

	mu          sync.Mutex
	collections map[string]*doc.Collection
}

func New(engine storage.Engine, broker *events.Broker, meta coordinator.MetaLookup, sender BatchSender, forwarder coordinator.Forwarder, nodes NodeResolver, selfID string, logger zerolog.Logger) *Migrator {
	return &Migrator{
		engine:      engine,
		broker:      broker,
		meta:        meta,
		sender:      sender,
		forwarder:   forwarder,
		nodes:       nodes,
		journal:     NewJournal(),
		selfID:      selfID,
		logger:      logger,
		collections: make(map[string]*doc.Collection),
	}
}

func (m *Migrator) physicalCollection(database, collection string, shardID uint16, meta types.CollectionMeta) (*doc.Collection, error) {
	name := doc.PhysicalName(collection, shardID)
	key := database + "/" + name

	m.mu.Lock()
	defer m.mu.Unlock()
	if col, ok := m.collections[key]; ok {
		return col, nil
	}
	physical := meta
	physical.Name = name
	col, err := doc.Open(m.engine, physical, m.broker)
	if err != nil {
		return nil, err
	}
	m.collections[key] = col
	return col, nil
}

// Reshard migrates database.collection's documents from the old shard
// layout to the new one, satisfying pkg/rebalancer.Migrator.
func (m *Migrator) Reshard(ctx context.Context, database, collection string, oldShards, newShards uint16, oldAssignments, newAssignments map[uint16]*types.ShardAssignment) error {
	meta, ok := m.meta.CollectionMeta(database, collection)
	if !ok {
		return fmt.Errorf("migration: unknown collection %s/%s", database, collection)
	}

	scanLimit := oldShards
	if newShards > scanLimit {
		scanLimit = newShards
	}

	for s := uint16(0); s < scanLimit; s++ {
		if err := m.reshardOneShard(ctx, database, collection, meta, s, newShards, oldAssignments, newAssignments); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) reshardOneShard(ctx context.Context, database, collection string, meta types.CollectionMeta, s, newShards uint16, oldAssignments, newAssignments map[uint16]*types.ShardAssignment) error {
	source, err := m.physicalCollection(database, collection, s, meta)
	if err != nil {
		return nil // no local data in this shard, nothing to do
	}

	shouldMigrate := s >= newShards // removed shard: whoever holds data must move it
	if !shouldMigrate {
		a := oldAssignments[s]
		shouldMigrate = a != nil && a.PrimaryNode == m.selfID
	}
	if !shouldMigrate {
		return nil
	}

	docs, err := source.Scan(0)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	toMove := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		if m.journal.IsMigrated(database, collection, d.Key) {
			continue
		}
		newShardID := shard.Route(d.Key, newShards)
		if newShardID == s {
			continue // still routes to the same physical shard, leave in place
		}
		toMove = append(toMove, d.ToMap())
	}
	if len(toMove) > maxDocsPerShard {
		m.logger.Warn().Str("database", database).Str("collection", collection).Uint16("shard", s).
			Int("docs", len(toMove)).Msg("truncating migration batch to maxDocsPerShard for this pass")
		toMove = toMove[:maxDocsPerShard]
	}
	if len(toMove) == 0 {
		return nil
	}

	moved, failed := m.moveDocuments(ctx, database, collection, meta, s, newShards, toMove, newAssignments)

	failureRate := float64(failed) / float64(len(toMove))
	m.logger.Info().Str("database", database).Str("collection", collection).Uint16("shard", s).
		Int("moved", moved).Int("failed", failed).Msg("shard migration pass complete")
	if failureRate > failureRateThreshold {
		return fmt.Errorf("migration: shard %d of %s/%s: %d/%d documents failed to migrate", s, database, collection, failed, len(toMove))
	}
	return nil
}

func (m *Migrator) moveDocuments(ctx context.Context, database, collection string, meta types.CollectionMeta, sourceShard, newShards uint16, docs []map[string]interface{}, newAssignments map[uint16]*types.ShardAssignment) (moved, failed int) {
	source, err := m.physicalCollection(database, collection, sourceShard, meta)
	if err != nil {
		return 0, len(docs)
	}

	consecutiveFailures := 0
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		// A failed send is retried up to 3 times, backing off 30s, 60s, 120s.
		var sent []string
		var err error
		for attempt := 0; ; attempt++ {
			sent, err = m.sender.SendBatch(ctx, database, collection, meta, batch)
			if (err == nil && len(sent) > 0) || attempt == 3 || ctx.Err() != nil {
				break
			}
			select {
			case <-time.After((30 * time.Second) << uint(attempt)):
			case <-ctx.Done():
			}
		}
		if err != nil || len(sent) == 0 {
			failed += len(batch)
			consecutiveFailures++
			m.recordJournal(database, collection, batch, newShards, StatusFailed)
			if consecutiveFailures >= maxConsecutiveFailures {
				m.logger.Error().Str("database", database).Str("collection", collection).
					Msg("aborting migration for shard: too many consecutive batch failures")
				break
			}
			continue
		}
		consecutiveFailures = 0

		verified := m.verify(ctx, database, collection, sent, newShards, newAssignments)
		if len(verified) < len(sent) {
			failed += len(sent) - len(verified)
		}
		if len(verified) == 0 {
			continue
		}

		deleted, err := source.DeleteBatch(verified)
		if err != nil {
			failed += len(verified)
			continue
		}
		moved += deleted
		m.recordJournalKeys(database, collection, verified, sourceShard, newShards, StatusMigrated)
	}
	return moved, failed
}

// verify confirms each sent key is reachable at its new physical shard
// before the source copy is allowed to be deleted: locally via a direct
// Get when this node now holds the shard, remotely via the
// shard-internal _verify RPC otherwise. A key that cannot be confirmed
// either way is left out, which means its source copy survives —
// failing closed against data loss rather than trusting the send.
func (m *Migrator) verify(ctx context.Context, database, collection string, keys []string, newShards uint16, newAssignments map[uint16]*types.ShardAssignment) []string {
	var verified []string
	remoteKeys := make(map[string][]string) // node -> keys, grouped by physical shard below

	for _, key := range keys {
		shardID := shard.Route(key, newShards)
		a := newAssignments[shardID]
		if a == nil || a.PrimaryNode == m.selfID {
			meta, ok := m.meta.CollectionMeta(database, collection)
			if !ok {
				verified = append(verified, key) // trust, collection meta vanished mid-pass
				continue
			}
			col, err := m.physicalCollection(database, collection, shardID, meta)
			if err != nil {
				continue
			}
			if _, err := col.Get(key); err == nil {
				verified = append(verified, key)
			}
			continue
		}
		remoteKeys[a.PrimaryNode] = append(remoteKeys[a.PrimaryNode], key)
	}

	if len(remoteKeys) == 0 {
		return verified
	}
	if m.forwarder == nil || m.nodes == nil {
		// No cluster wiring: single-node deployment, trust the send.
		for _, ks := range remoteKeys {
			verified = append(verified, ks...)
		}
		return verified
	}

	for node, ks := range remoteKeys {
		addr, ok := m.nodes.APIAddress(node)
		if !ok {
			continue // can't reach it, don't mark verified
		}
		vctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		resp, err := m.forwarder.Verify(vctx, addr, database, collection, ks)
		cancel()
		if err != nil {
			m.logger.Warn().Str("node", node).Err(err).Msg("remote migration verify failed, not deleting source")
			continue
		}
		verified = append(verified, resp.Found...)
	}
	return verified
}

func (m *Migrator) recordJournal(database, collection string, docs []map[string]interface{}, newShards uint16, status Status) {
	for _, d := range docs {
		key, _ := d["_key"].(string)
		if key == "" {
			continue
		}
		m.journal.Record(Entry{
			Database: database, Collection: collection, DocumentKey: key,
			TargetShard: shard.Route(key, newShards), MigratedAt: time.Now(), Status: status,
		})
	}
}

func (m *Migrator) recordJournalKeys(database, collection string, keys []string, sourceShard, newShards uint16, status Status) {
	for _, key := range keys {
		m.journal.Record(Entry{
			Database: database, Collection: collection, DocumentKey: key,
			SourceShard: sourceShard, TargetShard: shard.Route(key, newShards),
			MigratedAt: time.Now(), Status: status,
		})
	}
}

// Stats exposes journal statistics for the owning collection's pass.
func (m *Migrator) Stats() Stats { return m.journal.Stats() }
