package vector

import (
	"encoding/json"
	"time"

	"github.com/solidb/solidb/pkg/storage"
)

// snapshot is the JSON-serializable form of an Index, used for the
// throttled persistence pass and for restoring the index when a
// Collection opens.
type snapshot struct {
	Dim       int                 `json:"dim"`
	M         int                 `json:"m"`
	Ef        int                 `json:"ef"`
	Vectors   map[string][]float32 `json:"vectors"`
	Neighbors map[string][]string `json:"neighbors"`
	Entry     string              `json:"entry"`
}

// Snapshot serializes the index's current state.
func (idx *Index) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return json.Marshal(snapshot{
		Dim: idx.dim, M: idx.m, Ef: idx.ef,
		Vectors: idx.vectors, Neighbors: idx.neighbors, Entry: idx.entry,
	})
}

// Restore replaces the index's contents with a previously-saved snapshot.
func (idx *Index) Restore(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dim, idx.m, idx.ef = s.Dim, s.M, s.Ef
	idx.vectors = s.Vectors
	idx.neighbors = s.Neighbors
	idx.entry = s.Entry
	if idx.vectors == nil {
		idx.vectors = make(map[string][]float32)
	}
	if idx.neighbors == nil {
		idx.neighbors = make(map[string][]string)
	}
	return nil
}

// Persister periodically snapshots a set of named vector indexes to a
// storage.CF, the ticker-loop shape shared with the cluster Monitor and
// the rebalancer — the graphs themselves are never part of a document's
// atomic KV write, so they are flushed on their own schedule. Collection
// restores the last snapshot when it opens; points written after that
// snapshot are missing, and no code rebuilds an index from a document scan.
type Persister struct {
	cf       storage.CF
	indexes  func() map[string]*Index
	interval time.Duration
	stopCh   chan struct{}
}

// NewPersister builds a Persister that snapshots indexes() into cf every
// interval.
func NewPersister(cf storage.CF, indexes func() map[string]*Index, interval time.Duration) *Persister {
	return &Persister{cf: cf, indexes: indexes, interval: interval, stopCh: make(chan struct{})}
}

// Start begins the snapshot loop in a background goroutine.
func (p *Persister) Start() {
	ticker := time.NewTicker(p.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				p.flush()
			case <-p.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the snapshot loop.
func (p *Persister) Stop() {
	close(p.stopCh)
}

func (p *Persister) flush() {
	for name, idx := range p.indexes() {
		data, err := idx.Snapshot()
		if err != nil {
			continue
		}
		_ = p.cf.Put([]byte(name), data)
	}
}
