package doc

import (
	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/types"
)

func vectorIndexNotFound(name string) error {
	return dberr.NotFound("vector index " + name + " not found")
}

// updateVectorsOnUpsert refreshes every vector index's in-memory entry
// for key from doc, inserting new neighbours or moving an existing point.
// This runs outside the storage batch, matching crud.rs's
// update_vector_indexes_on_upsert (vector graphs are not part of the
// crash-consistent KV write; after a crash only their last snapshot is restored).
func (c *Collection) updateVectorsOnUpsert(key string, doc map[string]interface{}) {
	for name, idx := range c.vectors {
		def := c.indexDef(name)
		if def == nil {
			continue
		}
		raw, ok := doc[fieldForVectorIndex(def)]
		if !ok {
			continue
		}
		vec, ok := toFloatSlice(raw)
		if !ok {
			continue
		}
		idx.Upsert(key, vec)
	}
}

func (c *Collection) removeVectors(key string) {
	for _, idx := range c.vectors {
		idx.Delete(key)
	}
}

func (c *Collection) indexDef(name string) *types.IndexDef {
	meta := c.Meta()
	for i := range meta.Indexes {
		if meta.Indexes[i].Name == name {
			return &meta.Indexes[i]
		}
	}
	return nil
}

func fieldForVectorIndex(def *types.IndexDef) string {
	if len(def.Fields) == 0 {
		return ""
	}
	return def.Fields[0]
}

func toFloatSlice(raw interface{}) ([]float32, bool) {
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]float32, 0, len(arr))
	for _, v := range arr {
		f, ok := toFloat(v)
		if !ok {
			return nil, false
		}
		out = append(out, float32(f))
	}
	return out, true
}

// SearchVector runs an approximate nearest-neighbour query against the
// named vector index, returning up to k (key, distance) results.
func (c *Collection) SearchVector(indexName string, query []float32, k int) ([]VectorMatch, error) {
	idx, ok := c.vectors[indexName]
	if !ok {
		return nil, vectorIndexNotFound(indexName)
	}
	results := idx.Search(query, k)
	out := make([]VectorMatch, len(results))
	for i, r := range results {
		out[i] = VectorMatch{Key: r.Key, Distance: r.Distance}
	}
	return out, nil
}

// VectorMatch is one approximate-nearest-neighbour search result.
type VectorMatch struct {
	Key      string
	Distance float32
}
