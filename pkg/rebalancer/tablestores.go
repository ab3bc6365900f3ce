package rebalancer

import (
	"sync"

	"github.com/solidb/solidb/pkg/shard"
	"github.com/solidb/solidb/pkg/storage"
)

// EngineTableStores opens and caches one pkg/shard.Store per database on
// first use, satisfying TableStores against a single underlying engine.
type EngineTableStores struct {
	engine storage.Engine

	mu     sync.Mutex
	stores map[string]*shard.Store
}

func NewEngineTableStores(engine storage.Engine) *EngineTableStores {
	return &EngineTableStores{engine: engine, stores: make(map[string]*shard.Store)}
}

func (e *EngineTableStores) For(database string) (TableStore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.stores[database]; ok {
		return s, nil
	}
	s, err := shard.NewStore(e.engine, database)
	if err != nil {
		return nil, err
	}
	e.stores[database] = s
	return s, nil
}
