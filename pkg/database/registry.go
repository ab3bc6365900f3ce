package database

import (
	"encoding/json"
	"sync"

	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/rebalancer"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

const cfDatabases = "registry:databases"
const cfCollections = "registry:collections"
const cfColumnars = "registry:columnars"

func collectionRegistryKey(database, collection string) []byte {
	return []byte(database + "/" + collection)
}

// registry is the persisted catalog of databases and collection
// metadata, replacing warren's manager.fsm service/task tables with the
// document-database equivalent: database names and CollectionMeta blobs,
// cached in memory and written through to storage on every change.
type registry struct {
	databasesCF   storage.CF
	collectionsCF storage.CF
	columnarsCF   storage.CF

	mu          sync.RWMutex
	databases   map[string]struct{}
	collections map[string]types.CollectionMeta
	columnars   map[string]types.ColumnarMeta
}

func openRegistry(engine storage.Engine) (*registry, error) {
	dbCF, err := engine.ColumnFamily(cfDatabases)
	if err != nil {
		return nil, err
	}
	collCF, err := engine.ColumnFamily(cfCollections)
	if err != nil {
		return nil, err
	}
	colCF, err := engine.ColumnFamily(cfColumnars)
	if err != nil {
		return nil, err
	}

	r := &registry{
		databasesCF:   dbCF,
		collectionsCF: collCF,
		columnarsCF:   colCF,
		databases:     make(map[string]struct{}),
		collections:   make(map[string]types.CollectionMeta),
		columnars:     make(map[string]types.ColumnarMeta),
	}

	it := dbCF.PrefixIterator(nil)
	for it.Next() {
		r.databases[string(it.Key())] = struct{}{}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	it = collCF.PrefixIterator(nil)
	for it.Next() {
		var meta types.CollectionMeta
		if err := json.Unmarshal(it.Value(), &meta); err != nil {
			continue
		}
		r.collections[string(it.Key())] = meta
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	it = colCF.PrefixIterator(nil)
	for it.Next() {
		var meta types.ColumnarMeta
		if err := json.Unmarshal(it.Value(), &meta); err != nil {
			continue
		}
		r.columnars[string(it.Key())] = meta
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *registry) createDatabase(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.databases[name]; ok {
		return dberr.Conflict("database " + name + " already exists")
	}
	if err := r.databasesCF.Put([]byte(name), []byte{1}); err != nil {
		return err
	}
	r.databases[name] = struct{}{}
	return nil
}

func (r *registry) deleteDatabase(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.databasesCF.Delete([]byte(name)); err != nil {
		return err
	}
	delete(r.databases, name)
	prefix := name + "/"
	for key := range r.collections {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(r.collections, key)
			_ = r.collectionsCF.Delete([]byte(key))
		}
	}
	return nil
}

func (r *registry) hasDatabase(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.databases[name]
	return ok
}

func (r *registry) putCollection(meta types.CollectionMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return dberr.Internal("marshal collection meta", err)
	}
	key := collectionRegistryKey(meta.Database, meta.Name)
	if err := r.collectionsCF.Put(key, raw); err != nil {
		return err
	}
	r.mu.Lock()
	r.collections[string(key)] = meta
	r.mu.Unlock()
	return nil
}

func (r *registry) deleteCollection(database, collection string) error {
	key := collectionRegistryKey(database, collection)
	if err := r.collectionsCF.Delete(key); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.collections, string(key))
	r.mu.Unlock()
	return nil
}

func (r *registry) get(database, collection string) (types.CollectionMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.collections[string(collectionRegistryKey(database, collection))]
	return meta, ok
}

func (r *registry) putColumnar(meta types.ColumnarMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return dberr.Internal("marshal columnar meta", err)
	}
	key := collectionRegistryKey(meta.Database, meta.Name)
	if err := r.columnarsCF.Put(key, raw); err != nil {
		return err
	}
	r.mu.Lock()
	r.columnars[string(key)] = meta
	r.mu.Unlock()
	return nil
}

func (r *registry) getColumnar(database, collection string) (types.ColumnarMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.columnars[string(collectionRegistryKey(database, collection))]
	return meta, ok
}

// shardedCollections satisfies pkg/rebalancer.Registry.
func (r *registry) shardedCollections() []rebalancer.ShardedCollection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []rebalancer.ShardedCollection
	for _, meta := range r.collections {
		if meta.Sharded() {
			out = append(out, rebalancer.ShardedCollection{
				Database:   meta.Database,
				Collection: meta.Name,
				Config:     *meta.ShardConfig,
			})
		}
	}
	return out
}
