package replication

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/solidb/solidb/pkg/cluster"
	"github.com/solidb/solidb/pkg/storage"
)

// Config mirrors the original's SyncConfig defaults (spec.md §4.K).
type Config struct {
	HeartbeatInterval time.Duration
	DeadNodeTimeout   time.Duration
	MaxBatchBytes     int
	SyncInterval      time.Duration
}

// DefaultConfig matches the original's hardcoded defaults: 5s heartbeat,
// 15s dead-node timeout, 1MB batches, 1s sync tick.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		DeadNodeTimeout:   15 * time.Second,
		MaxBatchBytes:     1024 * 1024,
		SyncInterval:      time.Second,
	}
}

// Worker runs the per-peer pull loop, the heartbeat loop, and feeds
// pkg/cluster.State's heartbeat bookkeeping (dead-node detection and
// rebalance triggering live there already, see pkg/cluster.Monitor).
type Worker struct {
	selfID    string
	cluster   *cluster.State
	transport Transport
	cursors   *cursorStore
	apply     *applier
	cfg       Config
	logger    zerolog.Logger

	stopCh chan struct{}
}

// New builds a Worker. schema may be nil; schema-carrying log entries
// are then skipped without being applied.
func New(engine storage.Engine, selfID string, clusterState *cluster.State, transport Transport, collections Collections, schema SchemaOps, cfg Config, logger zerolog.Logger) (*Worker, error) {
	cursors, err := openCursorStore(engine, selfID)
	if err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval <= 0 || cfg.DeadNodeTimeout <= 0 || cfg.SyncInterval <= 0 || cfg.MaxBatchBytes <= 0 {
		cfg = DefaultConfig()
	}
	return &Worker{
		selfID:    selfID,
		cluster:   clusterState,
		transport: transport,
		cursors:   cursors,
		apply:     &applier{collections: collections, schema: schema},
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}, nil
}

func (w *Worker) Start() { go w.run() }
func (w *Worker) Stop()  { close(w.stopCh) }

func (w *Worker) run() {
	syncTicker := time.NewTicker(w.cfg.SyncInterval)
	heartbeatTicker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer syncTicker.Stop()
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-syncTicker.C:
			w.pullAllPeers()
		case <-heartbeatTicker.C:
			w.sendHeartbeats()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker) peers() []string {
	var peers []string
	for _, m := range w.cluster.Members() {
		if m.NodeID != w.selfID {
			peers = append(peers, m.NodeID)
		}
	}
	return peers
}

func (w *Worker) pullAllPeers() {
	for _, peerID := range w.peers() {
		if err := w.pullFromPeer(peerID); err != nil {
			w.logger.Warn().Str("peer", peerID).Err(err).Msg("pull from peer failed")
		}
	}
}

// pullFromPeer implements spec.md §4.K's pull loop: request entries
// after this peer's last-applied sequence, apply them grouped, and
// advance the cursor only when entries actually arrived.
func (w *Worker) pullFromPeer(peerID string) error {
	member, ok := w.cluster.Get(peerID)
	if !ok || member.APIAddress == "" {
		return nil
	}

	for {
		after := w.cursors.Get(peerID)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		batch, err := w.transport.PullSince(ctx, member.APIAddress, after, w.cfg.MaxBatchBytes)
		cancel()
		if err != nil {
			return err
		}
		if len(batch.Entries) == 0 {
			return nil
		}

		maxSeq := after
		for _, g := range groupEntries(batch.Entries) {
			if err := w.apply.applyGroup(g); err != nil {
				w.logger.Warn().Str("peer", peerID).Str("database", g.database).Str("collection", g.collection).
					Err(err).Msg("apply replicated batch failed")
				continue
			}
			for _, e := range g.entries {
				if e.OriginSeq > maxSeq {
					maxSeq = e.OriginSeq
				}
			}
		}
		if maxSeq > after {
			if err := w.cursors.Set(peerID, maxSeq); err != nil {
				return err
			}
		}

		if !batch.HasMore {
			return nil
		}
	}
}

func (w *Worker) sendHeartbeats() {
	for _, peerID := range w.peers() {
		member, ok := w.cluster.Get(peerID)
		if !ok || member.APIAddress == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.transport.SendHeartbeat(ctx, member.APIAddress, HeartbeatStats{NodeID: w.selfID})
		cancel()
		if err != nil {
			w.logger.Debug().Str("peer", peerID).Err(err).Msg("heartbeat send failed")
			continue
		}
	}
}

// ReceiveHeartbeat is called by the shard-internal HTTP handler when a
// peer's heartbeat arrives, updating this node's view of that peer's
// liveness (spec.md §4.K "update peer last-seen").
func (w *Worker) ReceiveHeartbeat(stats HeartbeatStats) error {
	return w.cluster.Heartbeat(stats.NodeID, stats.CurrentSeq)
}
