// Package types defines the core data structures shared across solidb's
// storage, sharding, replication, and query components: documents and
// collections, the shard table, operation-log entries, HLC timestamps,
// version vectors, and cluster membership.
package types

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Document is the unit of storage in a document collection. Payload
// fields beyond the reserved ones are carried in Fields.
type Document struct {
	Key    string                 `json:"_key"`
	ID     string                 `json:"_id"`
	Rev    string                 `json:"_rev"`
	Fields map[string]interface{} `json:"-"`
}

// NewDocument builds a Document for collection with the given key, copying
// fields so the caller's map can be reused. _id is "<collection>/<key>".
func NewDocument(collection, key string, fields map[string]interface{}) Document {
	cp := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Document{
		Key:    key,
		ID:     collection + "/" + key,
		Rev:    newRevision(),
		Fields: cp,
	}
}

// Update applies patch on top of the document's existing fields (shallow
// merge, per spec.md §4.B's partial-payload update contract) and assigns
// a fresh revision.
func (d *Document) Update(patch map[string]interface{}) {
	if d.Fields == nil {
		d.Fields = make(map[string]interface{}, len(patch))
	}
	for k, v := range patch {
		d.Fields[k] = v
	}
	d.Rev = newRevision()
}

// ToMap returns the document flattened into a single map, reserved fields
// included, for schema validation and index-entry computation.
func (d Document) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, len(d.Fields)+3)
	for k, v := range d.Fields {
		m[k] = v
	}
	m["_key"] = d.Key
	m["_id"] = d.ID
	m["_rev"] = d.Rev
	return m
}

// MarshalJSON flattens reserved fields and payload fields into one object.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToMap())
}

// UnmarshalJSON splits reserved fields back out of the flattened object.
func (d *Document) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if v, ok := m["_key"].(string); ok {
		d.Key = v
		delete(m, "_key")
	}
	if v, ok := m["_id"].(string); ok {
		d.ID = v
		delete(m, "_id")
	}
	if v, ok := m["_rev"].(string); ok {
		d.Rev = v
		delete(m, "_rev")
	}
	d.Fields = m
	return nil
}

// NewRevision mints a fresh opaque revision marker, used whenever a
// document is written without one supplied by the caller.
func NewRevision() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func newRevision() string { return NewRevision() }

// CollectionType selects the semantics enforced on writes.
type CollectionType string

const (
	CollectionDocument   CollectionType = "document"
	CollectionEdge       CollectionType = "edge"
	CollectionBlob       CollectionType = "blob"
	CollectionTimeseries CollectionType = "timeseries"
)

// IndexKind enumerates the supported secondary index types.
type IndexKind string

const (
	IndexRegular  IndexKind = "regular"
	IndexUnique   IndexKind = "unique"
	IndexGeo      IndexKind = "geo"
	IndexFullText IndexKind = "fulltext"
	IndexVector   IndexKind = "vector"
	IndexTTL      IndexKind = "ttl"
)

// IndexDef describes one secondary index attached to a collection.
type IndexDef struct {
	Name   string    `json:"name"`
	Kind   IndexKind `json:"kind"`
	Fields []string  `json:"fields"`

	// Vector-index tuning (spec.md §9 open question ii).
	VectorDim    int `json:"vector_dim,omitempty"`
	VectorM      int `json:"vector_m,omitempty"`
	VectorEfCons int `json:"vector_ef_construction,omitempty"`

	// TTL index expiry field, in seconds, read from the document.
	TTLField   string `json:"ttl_field,omitempty"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

// ShardConfig is the caller-declared sharding intent for a collection.
// An empty ShardConfig (NumShards == 0) means the collection is logical
// (single-partition).
type ShardConfig struct {
	NumShards         uint16 `json:"num_shards"`
	ShardKey          string `json:"shard_key"`
	ReplicationFactor uint16 `json:"replication_factor"`
}

// ShardAssignment is the placement of one shard: one primary, N−1 replicas.
type ShardAssignment struct {
	ShardID      uint16   `json:"shard_id"`
	PrimaryNode  string   `json:"primary_node"`
	ReplicaNodes []string `json:"replica_nodes"`
}

// ShardTable is the full per-collection placement map, persisted
// alongside the collection and cached in memory by the coordinator.
type ShardTable struct {
	Database   string                     `json:"database"`
	Collection string                     `json:"collection"`
	NumShards  uint16                     `json:"num_shards"`
	Shards     map[uint16]*ShardAssignment `json:"shards"`
}

// CollectionMeta is the persisted collection descriptor: type, schema
// hash, indexes, and optional sharding.
type CollectionMeta struct {
	Database    string         `json:"database"`
	Name        string         `json:"name"`
	Type        CollectionType `json:"type"`
	SchemaJSON  string         `json:"schema_json,omitempty"`
	SchemaHash  string         `json:"schema_hash,omitempty"`
	Indexes     []IndexDef     `json:"indexes"`
	ShardConfig *ShardConfig   `json:"shard_config,omitempty"`
	DocCount    int64          `json:"doc_count"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Sharded reports whether the collection is horizontally partitioned.
func (c *CollectionMeta) Sharded() bool {
	return c.ShardConfig != nil && c.ShardConfig.NumShards > 0
}

// HLC is a hybrid logical clock reading: physical time plus a tie-break
// counter, per spec.md §4.D.
type HLC struct {
	TSMillis int64  `json:"ts_ms"`
	Count    uint32 `json:"count"`
}

// Before reports whether h happened strictly before o.
func (h HLC) Before(o HLC) bool {
	if h.TSMillis != o.TSMillis {
		return h.TSMillis < o.TSMillis
	}
	return h.Count < o.Count
}

// VersionVectorOrder is the result of comparing two version vectors.
type VersionVectorOrder int

const (
	VVEqual VersionVectorOrder = iota
	VVBefore
	VVAfter
	VVConcurrent
)

// VersionVectorEntry is one node's logical clock within a version vector.
type VersionVectorEntry struct {
	Ts      int64 `json:"ts"`
	Counter int64 `json:"counter"`
}

// VersionVector is used for client/offline sync conflict detection, not
// for node-to-node replication ordering (that uses HLC + origin_seq).
type VersionVector map[string]VersionVectorEntry

// Compare implements the partial order over version vectors: equal,
// strictly before/after, or concurrent (neither dominates).
func (v VersionVector) Compare(o VersionVector) VersionVectorOrder {
	vLessOrEqual, vStrictlyLess := true, false
	oLessOrEqual, oStrictlyLess := true, false

	keys := make(map[string]struct{}, len(v)+len(o))
	for k := range v {
		keys[k] = struct{}{}
	}
	for k := range o {
		keys[k] = struct{}{}
	}

	for k := range keys {
		a, b := v[k], o[k]
		if greater(a, b) {
			vLessOrEqual = false
			oStrictlyLess = true
		} else if greater(b, a) {
			oLessOrEqual = false
			vStrictlyLess = true
		}
	}

	switch {
	case vLessOrEqual && oLessOrEqual:
		return VVEqual
	case vLessOrEqual && vStrictlyLess:
		return VVBefore
	case oLessOrEqual && oStrictlyLess:
		return VVAfter
	default:
		return VVConcurrent
	}
}

func greater(a, b VersionVectorEntry) bool {
	if a.Ts != b.Ts {
		return a.Ts > b.Ts
	}
	return a.Counter > b.Counter
}

// OpKind enumerates the operations carried by the operation log.
type OpKind string

const (
	OpInsert           OpKind = "insert"
	OpUpdate           OpKind = "update"
	OpDelete           OpKind = "delete"
	OpCreateDatabase   OpKind = "create_database"
	OpDeleteDatabase   OpKind = "delete_database"
	OpCreateCollection OpKind = "create_collection"
	OpDeleteCollection OpKind = "delete_collection"
	OpTruncate         OpKind = "truncate"
	OpPutBlobChunk     OpKind = "put_blob_chunk"
	OpDeleteBlob       OpKind = "delete_blob"
	OpColumnarInsert   OpKind = "columnar_insert"
	OpColumnarDelete   OpKind = "columnar_delete"
)

// LogEntry is one append-only operation-log record, per spec.md §3.
type LogEntry struct {
	Seq        uint64 `json:"seq"`
	OriginNode string `json:"origin_node"`
	OriginSeq  uint64 `json:"origin_seq"`
	HLC        HLC    `json:"hlc"`

	Database   string `json:"database"`
	Collection string `json:"collection"`
	Op         OpKind `json:"op"`
	Key        string `json:"key,omitempty"`
	Data       []byte `json:"data,omitempty"`

	VersionVector  VersionVector   `json:"version_vector,omitempty"`
	ParentVectors  []VersionVector `json:"parent_vectors,omitempty"`
	IsDelta        bool            `json:"is_delta"`
	DeltaData      []byte          `json:"delta_data,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	DeviceID       string          `json:"device_id,omitempty"`
	ShardID        *uint16         `json:"shard_id,omitempty"`
}

// NodeStatus is the membership state of a cluster member, per spec.md §4.E.
type NodeStatus string

const (
	NodeJoining NodeStatus = "joining"
	NodeActive  NodeStatus = "active"
	NodeSyncing NodeStatus = "syncing"
	NodeLeaving NodeStatus = "leaving"
	NodeDead    NodeStatus = "dead"
)

// NodeRole distinguishes nodes that can hold shard primaries (every
// active node in this design) from pure observers; kept for forward
// compatibility with read-replica-only members.
type NodeRole string

const (
	RolePrimaryCapable NodeRole = "primary_capable"
	RoleReplicaOnly    NodeRole = "replica_only"
)

// Member is one entry in the cluster membership table.
type Member struct {
	NodeID        string     `json:"node_id"`
	BindAddress   string     `json:"bind_address"`
	APIAddress    string     `json:"api_address"`
	Status        NodeStatus `json:"status"`
	Role          NodeRole   `json:"role"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	LastSeq       uint64     `json:"last_seq"`
}

// ColumnType enumerates the supported columnar value types.
type ColumnType string

const (
	ColInt64     ColumnType = "int64"
	ColFloat64   ColumnType = "float64"
	ColString    ColumnType = "string"
	ColBool      ColumnType = "bool"
	ColTimestamp ColumnType = "timestamp"
	ColJSON      ColumnType = "json"
)

// ColumnDef describes one column in a columnar collection.
type ColumnDef struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`
	Indexed  bool       `json:"indexed"`
}

// ColumnarMeta is the persisted descriptor for a columnar collection.
type ColumnarMeta struct {
	Database  string      `json:"database"`
	Name      string      `json:"name"`
	Columns   []ColumnDef `json:"columns"`
	RowCount  int64       `json:"row_count"`
	CreatedAt time.Time   `json:"created_at"`
}
