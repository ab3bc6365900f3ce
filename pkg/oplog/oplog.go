// Package oplog implements the Operation Log (spec.md §4.D): an
// append-only, per-node record of every mutation, stamped with a hybrid
// logical clock and a monotonically increasing local sequence number.
// Replication pulls entries after a given sequence; nothing is ever
// rewritten in place.
package oplog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

func cfName(nodeID string) string { return "oplog:" + nodeID }

// Clock produces HLC readings for a single node. It is safe for
// concurrent use.
type Clock struct {
	mu       sync.Mutex
	nodeID   string
	lastMs   int64
	lastCnt  uint32
	nowFn    func() time.Time
}

// NewClock builds a Clock for nodeID using wall-clock time.
func NewClock(nodeID string) *Clock {
	return &Clock{nodeID: nodeID, nowFn: time.Now}
}

// Next returns an HLC reading guaranteed to be greater than every prior
// reading returned by this Clock, per spec.md §4.D: if physical time has
// advanced past the last reading, count resets to 0; otherwise count is
// incremented to break the tie.
func (c *Clock) Next() types.HLC {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn().UnixMilli()
	if now > c.lastMs {
		c.lastMs = now
		c.lastCnt = 0
	} else {
		c.lastCnt++
	}
	return types.HLC{TSMillis: c.lastMs, Count: c.lastCnt}
}

// Observe folds a remote HLC reading into the local clock so that
// subsequent local readings are ordered after it, per the standard HLC
// merge rule.
func (c *Clock) Observe(remote types.HLC) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn().UnixMilli()
	switch {
	case now > c.lastMs && now > remote.TSMillis:
		c.lastMs = now
		c.lastCnt = 0
	case remote.TSMillis > c.lastMs:
		c.lastMs = remote.TSMillis
		c.lastCnt = remote.Count + 1
	case remote.TSMillis == c.lastMs:
		if remote.Count >= c.lastCnt {
			c.lastCnt = remote.Count + 1
		}
	}
}

// Log is the append-only per-node operation log, backed by one column
// family keyed by big-endian sequence number.
type Log struct {
	engine storage.Engine
	cf     storage.CF
	nodeID string
	clock  *Clock

	mu     sync.Mutex
	nextSeq uint64
}

// Open opens (or creates) the log for nodeID and recovers nextSeq by
// scanning for the highest persisted sequence number.
func Open(engine storage.Engine, nodeID string) (*Log, error) {
	cf, err := engine.ColumnFamily(cfName(nodeID))
	if err != nil {
		return nil, fmt.Errorf("oplog column family: %w", err)
	}
	l := &Log{engine: engine, cf: cf, nodeID: nodeID, clock: NewClock(nodeID)}

	it := cf.RangeIterator(nil, nil)
	defer it.Close()
	var maxSeq uint64
	for it.Next() {
		seq := binary.BigEndian.Uint64(it.Key())
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	l.nextSeq = maxSeq + 1
	return l, nil
}

// Append assigns a sequence number and HLC to entry and persists it.
// entry.OriginNode/OriginSeq must already identify the entry's true
// origin (this node for locally generated writes, a peer's for entries
// received during replication and re-appended locally).
func (l *Log) Append(entry types.LogEntry) (types.LogEntry, error) {
	l.mu.Lock()
	seq := l.nextSeq
	l.nextSeq++
	l.mu.Unlock()

	entry.Seq = seq
	if entry.HLC == (types.HLC{}) {
		entry.HLC = l.clock.Next()
	}
	if entry.OriginNode == "" {
		entry.OriginNode = l.nodeID
		entry.OriginSeq = seq
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return types.LogEntry{}, dberr.Internal("marshal log entry", err)
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	if err := l.cf.Put(key, data); err != nil {
		return types.LogEntry{}, dberr.Internal("persist log entry", err)
	}
	return entry, nil
}

// After returns entries with seq > after, in ascending order, capped at
// limit (0 means unbounded).
func (l *Log) After(after uint64, limit int) ([]types.LogEntry, error) {
	start := make([]byte, 8)
	binary.BigEndian.PutUint64(start, after+1)

	it := l.cf.RangeIterator(start, nil)
	defer it.Close()

	var out []types.LogEntry
	for it.Next() {
		var e types.LogEntry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, dberr.Internal("decode log entry", err)
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LastSeq returns the most recently assigned sequence number, or 0 if
// the log is empty.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.nextSeq == 0 {
		return 0
	}
	return l.nextSeq - 1
}

// ObserveRemote folds a peer's HLC reading into this node's clock, per
// the replication worker's duty to keep clocks causally consistent
// across the cluster (spec.md §4.D).
func (l *Log) ObserveRemote(hlc types.HLC) {
	l.clock.Observe(hlc)
}
