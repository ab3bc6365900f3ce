package doc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/events"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
	"github.com/solidb/solidb/pkg/vector"
)

const docPrefix = "d:"

func docsCF(database, collection string) string {
	return fmt.Sprintf("documents:%s:%s", database, collection)
}

func docKey(key string) []byte {
	return []byte(docPrefix + key)
}

// Collection is one named document collection: its physical document
// column family, its secondary indexes, a schema cache, an in-memory
// vector index, and a handle to the cluster-wide change-stream broker.
type Collection struct {
	engine   storage.Engine
	database string

	mu   sync.RWMutex
	meta types.CollectionMeta
	cf   storage.CF

	indexes         *indexSet
	schema          *schemaCache
	vectors         map[string]*vector.Index // by index name
	vectorPersister *vector.Persister

	broker *events.Broker

	count int64 // dirty-tolerant cache of meta.DocCount
}

// Open attaches to (creating if necessary) the document column family for
// meta.Database/meta.Name and returns a ready Collection.
func Open(engine storage.Engine, meta types.CollectionMeta, broker *events.Broker) (*Collection, error) {
	cf, err := engine.ColumnFamily(docsCF(meta.Database, meta.Name))
	if err != nil {
		return nil, dberr.Internal("open document column family", err)
	}

	c := &Collection{
		engine:   engine,
		database: meta.Database,
		meta:     meta,
		cf:       cf,
		schema:   newSchemaCache(),
		vectors:  make(map[string]*vector.Index),
		broker:   broker,
		count:    meta.DocCount,
	}

	idx, err := newIndexSet(engine, meta.Database, meta.Name, meta.Indexes)
	if err != nil {
		return nil, err
	}
	c.indexes = idx

	for _, def := range meta.Indexes {
		if def.Kind == types.IndexVector {
			c.vectors[def.Name] = vector.NewIndex(def.VectorDim, def.VectorM, def.VectorEfCons)
		}
	}

	if len(c.vectors) > 0 {
		vecCF, err := engine.ColumnFamily(fmt.Sprintf("vectorsnap:%s:%s", meta.Database, meta.Name))
		if err != nil {
			return nil, dberr.Internal("open vector snapshot column family", err)
		}
		c.restoreVectorSnapshots(vecCF)
		c.vectorPersister = vector.NewPersister(vecCF, c.vectorIndexes, 30*time.Second)
		c.vectorPersister.Start()
	}

	return c, nil
}

// Close stops background work (the vector-index persister) owned by the
// collection.
func (c *Collection) Close() {
	if c.vectorPersister != nil {
		c.vectorPersister.Stop()
	}
}

func (c *Collection) vectorIndexes() map[string]*vector.Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*vector.Index, len(c.vectors))
	for k, v := range c.vectors {
		out[k] = v
	}
	return out
}

func (c *Collection) restoreVectorSnapshots(cf storage.CF) {
	for name, idx := range c.vectors {
		data, err := cf.Get([]byte(name))
		if err != nil {
			continue
		}
		_ = idx.Restore(data)
	}
}

// SetSchema compiles and installs a new JSON-Schema for the collection,
// validating the schema document itself before storing it.
func (c *Collection) SetSchema(schemaJSON string) error {
	hash := SchemaHash(schemaJSON)
	c.schema.invalidate()
	if _, err := c.schema.validatorFor(schemaJSON, hash); err != nil {
		return err
	}
	c.mu.Lock()
	c.meta.SchemaJSON = schemaJSON
	c.meta.SchemaHash = hash
	c.mu.Unlock()
	return nil
}

// RemoveSchema clears the collection's schema and invalidates the cache.
func (c *Collection) RemoveSchema() {
	c.schema.invalidate()
	c.mu.Lock()
	c.meta.SchemaJSON = ""
	c.meta.SchemaHash = ""
	c.mu.Unlock()
}

// Meta returns a copy of the collection's descriptor.
func (c *Collection) Meta() types.CollectionMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta
}

// Get fetches a document by key.
func (c *Collection) Get(key string) (types.Document, error) {
	raw, err := c.cf.Get(docKey(key))
	if err != nil {
		return types.Document{}, dberr.NotFound(fmt.Sprintf("document %q not found", key))
	}
	var d types.Document
	if err := unmarshalDoc(raw, &d); err != nil {
		return types.Document{}, dberr.Internal("decode document", err)
	}
	return d, nil
}

// GetMany best-effort fetches keys, silently skipping ones that don't exist.
func (c *Collection) GetMany(keys []string) []types.Document {
	out := make([]types.Document, 0, len(keys))
	for _, k := range keys {
		if d, err := c.Get(k); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// Insert stores data as a new document, maintaining all secondary indexes.
func (c *Collection) Insert(data map[string]interface{}) (types.Document, error) {
	return c.insert(data, true)
}

// InsertNoIndex stores data without touching secondary indexes, for bulk
// loads that will reindex in a separate pass.
func (c *Collection) InsertNoIndex(data map[string]interface{}) (types.Document, error) {
	return c.insert(data, false)
}

func (c *Collection) insert(data map[string]interface{}, updateIndexes bool) (types.Document, error) {
	meta := c.Meta()

	if meta.Type == types.CollectionEdge {
		if err := validateEdgeDocument(data); err != nil {
			return types.Document{}, err
		}
	}
	if err := c.schema.validate(meta, data); err != nil {
		return types.Document{}, err
	}

	key, err := extractOrGenerateKey(data)
	if err != nil {
		return types.Document{}, err
	}

	d := types.NewDocument(meta.Name, key, data)
	raw, err := marshalDoc(d)
	if err != nil {
		return types.Document{}, dberr.Internal("encode document", err)
	}

	err = c.engine.AtomicBatch(func(b *storage.Batch) error {
		b.Put(docsCF(meta.Database, meta.Name), docKey(key), raw)
		if updateIndexes {
			return c.indexes.forInsert(b, key, d.ToMap())
		}
		return nil
	})
	if err != nil {
		return types.Document{}, err
	}

	if updateIndexes {
		c.updateVectorsOnUpsert(key, d.ToMap())
	}
	c.bumpCount(1)
	c.publish(events.EventDocInserted, key, d.ToMap(), nil)

	return d, nil
}

// Update applies patch to the document at key, recomputing index deltas.
func (c *Collection) Update(key string, patch map[string]interface{}) (types.Document, error) {
	return c.update(key, "", patch)
}

// UpdateWithRev applies patch only if the document's current revision
// matches expectedRev (optimistic concurrency), returning Conflict otherwise.
func (c *Collection) UpdateWithRev(key, expectedRev string, patch map[string]interface{}) (types.Document, error) {
	return c.update(key, expectedRev, patch)
}

func (c *Collection) update(key, expectedRev string, patch map[string]interface{}) (types.Document, error) {
	meta := c.Meta()
	if meta.Type == types.CollectionTimeseries {
		return types.Document{}, dberr.OperationNotSupported("update is not allowed on timeseries collections")
	}

	old, err := c.Get(key)
	if err != nil {
		return types.Document{}, err
	}
	if expectedRev != "" && old.Rev != expectedRev {
		return types.Document{}, dberr.Conflict(fmt.Sprintf("document %q has been modified: expected rev %q, current %q", key, expectedRev, old.Rev))
	}

	oldMap := old.ToMap()
	updated := old
	updated.Update(patch)
	newMap := updated.ToMap()

	if meta.Type == types.CollectionEdge {
		if err := validateEdgeDocument(newMap); err != nil {
			return types.Document{}, err
		}
	}
	if err := c.schema.validate(meta, newMap); err != nil {
		return types.Document{}, err
	}

	raw, err := marshalDoc(updated)
	if err != nil {
		return types.Document{}, dberr.Internal("encode document", err)
	}

	err = c.engine.AtomicBatch(func(b *storage.Batch) error {
		b.Put(docsCF(meta.Database, meta.Name), docKey(key), raw)
		return c.indexes.forUpdate(b, key, oldMap, newMap)
	})
	if err != nil {
		return types.Document{}, err
	}

	c.updateVectorsOnUpsert(key, newMap)
	c.publish(events.EventDocUpdated, key, newMap, oldMap)

	return updated, nil
}

// Delete removes a document and all its index entries atomically.
func (c *Collection) Delete(key string) error {
	meta := c.Meta()
	old, err := c.Get(key)
	if err != nil {
		return err
	}
	oldMap := old.ToMap()

	err = c.engine.AtomicBatch(func(b *storage.Batch) error {
		b.Delete(docsCF(meta.Database, meta.Name), docKey(key))
		return c.indexes.forDelete(b, key, oldMap)
	})
	if err != nil {
		return err
	}

	c.removeVectors(key)
	c.bumpCount(-1)
	c.publish(events.EventDocDeleted, key, nil, oldMap)

	return nil
}

// InsertBatch inserts documents one after another, each through Insert
// and its own atomic batch. The first schema, edge or unique violation
// stops the call and returns the error; documents inserted before it
// stay stored.
func (c *Collection) InsertBatch(docs []map[string]interface{}) ([]types.Document, error) {
	out := make([]types.Document, 0, len(docs))
	for _, data := range docs {
		d, err := c.Insert(data)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// UpsertBatch inserts or overwrites (key, data) pairs idempotently; used
// by replication and migration where the caller already owns the key.
func (c *Collection) UpsertBatch(items []struct {
	Key  string
	Data map[string]interface{}
}) (int, error) {
	meta := c.Meta()
	n, added := 0, 0
	err := c.engine.AtomicBatch(func(b *storage.Batch) error {
		for _, item := range items {
			rev, _ := item.Data["_rev"].(string)
			delete(item.Data, "_rev")
			delete(item.Data, "_key")
			delete(item.Data, "_id")
			if rev == "" {
				rev = types.NewRevision()
			}
			d := types.Document{Key: item.Key, ID: meta.Name + "/" + item.Key, Rev: rev, Fields: item.Data}
			raw, err := marshalDoc(d)
			if err != nil {
				return dberr.Internal("encode document", err)
			}
			b.Put(docsCF(meta.Database, meta.Name), docKey(item.Key), raw)
			if old, gerr := c.Get(item.Key); gerr == nil {
				if err := c.indexes.forUpdate(b, item.Key, old.ToMap(), item.Data); err != nil {
					return err
				}
			} else {
				if err := c.indexes.forInsert(b, item.Key, item.Data); err != nil {
					return err
				}
				added++
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.bumpCount(int64(added))
	return n, nil
}

// DeleteBatch deletes keys atomically, tolerating already-missing keys.
func (c *Collection) DeleteBatch(keys []string) (int, error) {
	meta := c.Meta()
	n := 0
	err := c.engine.AtomicBatch(func(b *storage.Batch) error {
		for _, key := range keys {
			old, err := c.Get(key)
			if err != nil {
				continue
			}
			b.Delete(docsCF(meta.Database, meta.Name), docKey(key))
			if err := c.indexes.forDelete(b, key, old.ToMap()); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.bumpCount(-int64(n))
	return n, nil
}

// Scan returns up to limit documents in key order (0 means unbounded).
func (c *Collection) Scan(limit int) ([]types.Document, error) {
	it := c.cf.PrefixIterator([]byte(docPrefix))
	defer it.Close()

	var out []types.Document
	for it.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var d types.Document
		if err := unmarshalDoc(it.Value(), &d); err != nil {
			return nil, dberr.Internal("decode document", err)
		}
		out = append(out, d)
	}
	return out, it.Err()
}

// Truncate removes every document in the collection.
func (c *Collection) Truncate() (int, error) {
	docs, err := c.Scan(0)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key
	}
	return c.DeleteBatch(keys)
}

// PruneOlderThan deletes documents whose UUIDv7 key encodes a timestamp
// strictly before cutoffMillis (ms since epoch). Keys that are not
// well-formed UUIDs are left untouched.
func (c *Collection) PruneOlderThan(cutoffMillis int64) (int, error) {
	docs, err := c.Scan(0)
	if err != nil {
		return 0, err
	}
	var toDelete []string
	for _, d := range docs {
		id, err := uuid.Parse(d.Key)
		if err != nil {
			continue
		}
		if id.Version() != 7 {
			continue
		}
		ms := uuidV7Millis(id)
		if ms < cutoffMillis {
			toDelete = append(toDelete, d.Key)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	return c.DeleteBatch(toDelete)
}

// Count returns the in-memory document counter, which is dirty-tolerant
// and reconcilable via RecountDocuments.
func (c *Collection) Count() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// RecountDocuments rescans the document prefix and resynchronizes the
// in-memory counter, returning the corrected value.
func (c *Collection) RecountDocuments() (int64, error) {
	docs, err := c.Scan(0)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.count = int64(len(docs))
	c.meta.DocCount = c.count
	c.mu.Unlock()
	return int64(len(docs)), nil
}

func (c *Collection) bumpCount(delta int64) {
	c.mu.Lock()
	c.count += delta
	c.meta.DocCount = c.count
	c.mu.Unlock()
}

func (c *Collection) publish(t events.EventType, key string, data, oldData map[string]interface{}) {
	if c.broker == nil {
		return
	}
	meta := c.Meta()
	c.broker.Publish(&events.Event{
		Type:       t,
		Timestamp:  time.Now(),
		Database:   meta.Database,
		Collection: meta.Name,
		Key:        key,
		Data:       data,
		OldData:    oldData,
	})
}

// ResolveKey extracts the caller-supplied "_key" from data, or mints a
// fresh UUIDv7 one, without performing an insert. The Shard Coordinator
// calls this ahead of routing so it can compute the shard id from the
// same key Insert will end up using.
func ResolveKey(data map[string]interface{}) (string, error) {
	return extractOrGenerateKey(data)
}

// PhysicalName returns the collection name a given shard's data is
// physically stored under, per spec.md §4.H ("apply to physical CF
// C_s<sid>").
func PhysicalName(collection string, shardID uint16) string {
	return fmt.Sprintf("%s_s%d", collection, shardID)
}

// extractOrGenerateKey pulls "_key" out of data (erroring if present but
// not a string), or mints a time-ordered UUIDv7 key when absent.
func extractOrGenerateKey(data map[string]interface{}) (string, error) {
	if raw, ok := data["_key"]; ok {
		s, ok := raw.(string)
		if !ok {
			return "", dberr.InvalidDocument("_key must be a string")
		}
		delete(data, "_key")
		return s, nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", dberr.Internal("generate document key", err)
	}
	return id.String(), nil
}

// uuidV7Millis extracts the millisecond timestamp from the upper 48 bits
// of a UUIDv7, per spec.md §3's key layout.
func uuidV7Millis(id uuid.UUID) int64 {
	b := id[:]
	ms := uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 | uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
	return int64(ms)
}
