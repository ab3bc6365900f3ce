package coordinator

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/solidb/solidb/pkg/types"
)

// MetaLookup resolves a collection's CollectionMeta (sharding config
// included) for the handler to route an inbound shard-internal RPC
// against. The database orchestrator (pkg/database.Database) implements
// this over its collection registry.
type MetaLookup interface {
	CollectionMeta(database, collection string) (types.CollectionMeta, bool)
}

// Handler serves the shard-internal HTTP RPC surface spec.md §6 names:
// _batch, _replica, _verify. copy_shard is handled by pkg/migration,
// which owns the scan-and-upsert rebuild logic it needs.
type Handler struct {
	coordinator *Coordinator
	meta        MetaLookup
}

func NewHandler(coordinator *Coordinator, meta MetaLookup) *Handler {
	return &Handler{coordinator: coordinator, meta: meta}
}

// ServeHTTP expects paths of the form
// /_api/database/{db}/document/{coll}/{_batch|_replica|_verify}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// ["_api","database",db,"document",coll,action]
	if len(parts) != 6 || parts[0] != "_api" || parts[1] != "database" || parts[3] != "document" {
		http.NotFound(w, r)
		return
	}
	database, collection, action := parts[2], parts[4], parts[5]

	meta, ok := h.meta.CollectionMeta(database, collection)
	if !ok {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}

	switch action {
	case "_batch":
		h.handleBatch(w, r, database, collection, meta, true)
	case "_replica":
		h.handleBatch(w, r, database, collection, meta, false)
	case "_verify":
		h.handleVerify(w, r, database, collection, meta)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request, database, collection string, meta types.CollectionMeta, direct bool) {
	var docs []map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	inserted := 0
	if direct {
		// The sender marked this as a direct write (X-Shard-Direct). Each
		// document goes through Coordinator.Insert, which routes it against
		// this node's own shard table and forwards it again if that table
		// names a different primary.
		for _, d := range docs {
			if _, err := h.coordinator.Insert(r.Context(), database, collection, meta, d); err == nil {
				inserted++
			}
		}
	} else {
		// Replica path: idempotent upsert per shard, no further fan-out.
		byShard := make(map[uint16][]struct {
			Key  string
			Data map[string]interface{}
		})
		for _, d := range docs {
			key, _ := d["_key"].(string)
			if key == "" {
				continue
			}
			shardID, _, _, _ := h.coordinator.route(database, collection, meta.ShardConfig, shardKeyFieldValue(meta.ShardConfig, key, d))
			byShard[shardID] = append(byShard[shardID], struct {
				Key  string
				Data map[string]interface{}
			}{Key: key, Data: d})
		}
		for shardID, items := range byShard {
			col, err := h.coordinator.shardCollection(database, collection, shardID, meta)
			if err != nil {
				continue
			}
			n, err := col.UpsertBatch(items)
			if err == nil {
				inserted += n
			}
		}
	}

	_ = json.NewEncoder(w).Encode(BatchResponse{Inserted: inserted, N: len(docs)})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request, database, collection string, meta types.CollectionMeta) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var found, missing []string
	numShards := uint16(1)
	if meta.Sharded() {
		numShards = meta.ShardConfig.NumShards
	}
	for _, key := range req.Keys {
		shardID, _, _, _ := h.coordinator.route(database, collection, meta.ShardConfig, shardKeyFieldValue(meta.ShardConfig, key, nil))
		if shardID >= numShards {
			shardID = shardID % numShards
		}
		col, err := h.coordinator.shardCollection(database, collection, shardID, meta)
		if err != nil {
			missing = append(missing, key)
			continue
		}
		if _, err := col.Get(key); err != nil {
			missing = append(missing, key)
		} else {
			found = append(found, key)
		}
	}

	_ = json.NewEncoder(w).Encode(VerifyResponse{Found: found, Missing: missing, TotalChecked: len(req.Keys)})
}
