package oplog

import (
	"testing"

	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T) storage.Engine {
	t.Helper()
	dir := t.TempDir()
	eng, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	eng := openTestEngine(t)
	l, err := Open(eng, "node-a")
	require.NoError(t, err)

	e1, err := l.Append(types.LogEntry{Database: "db", Collection: "c", Op: types.OpInsert, Key: "k1"})
	require.NoError(t, err)
	e2, err := l.Append(types.LogEntry{Database: "db", Collection: "c", Op: types.OpInsert, Key: "k2"})
	require.NoError(t, err)

	require.Equal(t, uint64(1), e1.Seq)
	require.Equal(t, uint64(2), e2.Seq)
	require.Equal(t, "node-a", e1.OriginNode)
}

func TestAfterReturnsOnlyNewerEntries(t *testing.T) {
	eng := openTestEngine(t)
	l, err := Open(eng, "node-a")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := l.Append(types.LogEntry{Database: "db", Collection: "c", Op: types.OpInsert})
		require.NoError(t, err)
	}

	entries, err := l.After(3, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(4), entries[0].Seq)
	require.Equal(t, uint64(5), entries[1].Seq)
}

func TestOpenRecoversNextSeq(t *testing.T) {
	dir := t.TempDir()
	eng, err := storage.Open(dir)
	require.NoError(t, err)

	l, err := Open(eng, "node-a")
	require.NoError(t, err)
	_, err = l.Append(types.LogEntry{Database: "db", Collection: "c", Op: types.OpInsert})
	require.NoError(t, err)
	_, err = l.Append(types.LogEntry{Database: "db", Collection: "c", Op: types.OpInsert})
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	eng2, err := storage.Open(dir)
	require.NoError(t, err)
	defer eng2.Close()

	l2, err := Open(eng2, "node-a")
	require.NoError(t, err)
	require.Equal(t, uint64(2), l2.LastSeq())

	e3, err := l2.Append(types.LogEntry{Database: "db", Collection: "c", Op: types.OpInsert})
	require.NoError(t, err)
	require.Equal(t, uint64(3), e3.Seq)
}

func TestClockMonotonic(t *testing.T) {
	c := NewClock("node-a")
	a := c.Next()
	b := c.Next()
	require.True(t, a.Before(b))
}

func TestClockObserveAdvancesPastRemote(t *testing.T) {
	c := NewClock("node-a")
	remote := types.HLC{TSMillis: 9999999999999, Count: 5}
	c.Observe(remote)
	next := c.Next()
	require.True(t, remote.Before(next))
}
