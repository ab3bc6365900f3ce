// Package cluster implements Cluster State (spec.md §4.E): the
// membership table every node keeps of its peers, heartbeat tracking,
// and dead-node detection. The detection loop is ported from the
// teacher's reconciler ticker, generalized from container/task
// reconciliation to peer liveness.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/health"
	"github.com/solidb/solidb/pkg/log"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

const cfMembers = "cluster:members"

// HeartbeatTimeout is how long a member can go without a heartbeat
// before State marks it Dead.
const HeartbeatTimeout = 30 * time.Second

// State is the in-memory, persisted view of cluster membership.
type State struct {
	selfID string
	cf     storage.CF

	mu      sync.RWMutex
	members map[string]*types.Member

	stopCh chan struct{}
}

// Open loads persisted membership from engine and returns a State for
// selfID.
func Open(engine storage.Engine, selfID string) (*State, error) {
	cf, err := engine.ColumnFamily(cfMembers)
	if err != nil {
		return nil, fmt.Errorf("cluster members column family: %w", err)
	}

	s := &State{selfID: selfID, cf: cf, members: make(map[string]*types.Member), stopCh: make(chan struct{})}

	it := cf.RangeIterator(nil, nil)
	defer it.Close()
	for it.Next() {
		var m types.Member
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			return nil, dberr.Internal("decode member", err)
		}
		s.members[m.NodeID] = &m
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Upsert adds or updates a member record, persisting it immediately.
func (s *State) Upsert(m *types.Member) error {
	s.mu.Lock()
	s.members[m.NodeID] = m
	s.mu.Unlock()

	data, err := json.Marshal(m)
	if err != nil {
		return dberr.Internal("marshal member", err)
	}
	if err := s.cf.Put([]byte(m.NodeID), data); err != nil {
		return dberr.Internal("persist member", err)
	}
	return nil
}

// Heartbeat records that nodeID is alive as of now, advancing it out of
// Dead if it had been marked down.
func (s *State) Heartbeat(nodeID string, lastSeq uint64) error {
	s.mu.Lock()
	m, ok := s.members[nodeID]
	if !ok {
		s.mu.Unlock()
		return dberr.NotFound("unknown member " + nodeID)
	}
	m.LastHeartbeat = time.Now()
	m.LastSeq = lastSeq
	if m.Status == types.NodeDead {
		m.Status = types.NodeActive
	}
	cp := *m
	s.mu.Unlock()

	return s.Upsert(&cp)
}

// Members returns a snapshot of all known members.
func (s *State) Members() []*types.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Member, 0, len(s.members))
	for _, m := range s.members {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// Get returns the member record for nodeID.
func (s *State) Get(nodeID string) (*types.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[nodeID]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// ActiveNodeIDs returns the IDs of members currently in NodeActive
// status — the candidate pool for shard placement — in no particular
// order; callers that need a stable order sort the result.
func (s *State) ActiveNodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, m := range s.members {
		if m.Status == types.NodeActive {
			out = append(out, id)
		}
	}
	return out
}

// Monitor runs the dead-node-detection loop: every interval, any member
// whose last heartbeat is older than HeartbeatTimeout is marked Dead,
// optionally confirmed with a direct reachability probe before the
// transition (reducing false positives from a missed heartbeat alone).
type Monitor struct {
	state    *State
	checker  health.Checker
	interval time.Duration
	stopCh   chan struct{}
}

// NewMonitor builds a Monitor. checker may be nil to skip the
// confirmation probe and rely on heartbeat age alone.
func NewMonitor(state *State, checker health.Checker, interval time.Duration) *Monitor {
	return &Monitor{state: state, checker: checker, interval: interval, stopCh: make(chan struct{})}
}

func (m *Monitor) Start() { go m.run() }
func (m *Monitor) Stop()  { close(m.stopCh) }

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	logger := log.WithComponent("cluster")
	for {
		select {
		case <-ticker.C:
			m.sweep(logger)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) sweep(logger zerolog.Logger) {
	now := time.Now()
	for _, member := range m.state.Members() {
		if member.NodeID == m.state.selfID {
			continue
		}
		if member.Status == types.NodeDead {
			continue
		}
		if now.Sub(member.LastHeartbeat) <= HeartbeatTimeout {
			continue
		}
		if m.checker != nil {
			if res := m.checker.Check(context.Background()); res.Healthy {
				continue
			}
		}
		member.Status = types.NodeDead
		if err := m.state.Upsert(member); err != nil {
			logger.Error().Err(err).Str("node_id", member.NodeID).Msg("failed to persist dead node status")
			continue
		}
		logger.Warn().Str("node_id", member.NodeID).Msg("node marked dead: heartbeat timeout")
	}
}
