package cluster

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
	"github.com/stretchr/testify/require"
)

func discardLogger() zerolog.Logger {
	return zerolog.Nop()
}

func openTestEngine(t *testing.T) storage.Engine {
	t.Helper()
	eng, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestUpsertAndGet(t *testing.T) {
	s, err := Open(openTestEngine(t), "node-a")
	require.NoError(t, err)

	require.NoError(t, s.Upsert(&types.Member{NodeID: "node-b", Status: types.NodeActive}))

	m, ok := s.Get("node-b")
	require.True(t, ok)
	require.Equal(t, types.NodeActive, m.Status)
}

func TestHeartbeatRevivesDeadNode(t *testing.T) {
	s, err := Open(openTestEngine(t), "node-a")
	require.NoError(t, err)
	require.NoError(t, s.Upsert(&types.Member{NodeID: "node-b", Status: types.NodeDead}))

	require.NoError(t, s.Heartbeat("node-b", 10))

	m, ok := s.Get("node-b")
	require.True(t, ok)
	require.Equal(t, types.NodeActive, m.Status)
	require.Equal(t, uint64(10), m.LastSeq)
}

func TestMonitorMarksStaleMemberDead(t *testing.T) {
	s, err := Open(openTestEngine(t), "node-a")
	require.NoError(t, err)
	require.NoError(t, s.Upsert(&types.Member{
		NodeID:        "node-b",
		Status:        types.NodeActive,
		LastHeartbeat: time.Now().Add(-time.Hour),
	}))

	mon := NewMonitor(s, nil, time.Millisecond)
	mon.sweep(discardLogger())

	m, ok := s.Get("node-b")
	require.True(t, ok)
	require.Equal(t, types.NodeDead, m.Status)
}

func TestActiveNodeIDsExcludesDead(t *testing.T) {
	s, err := Open(openTestEngine(t), "node-a")
	require.NoError(t, err)
	require.NoError(t, s.Upsert(&types.Member{NodeID: "b", Status: types.NodeActive}))
	require.NoError(t, s.Upsert(&types.Member{NodeID: "c", Status: types.NodeDead}))

	ids := s.ActiveNodeIDs()
	require.Contains(t, ids, "b")
	require.NotContains(t, ids, "c")
}
