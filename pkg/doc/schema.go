package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/types"
)

// schemaCache lazily compiles a collection's JSON-Schema and keeps the
// compiled validator around as long as the schema hash doesn't change
// (spec.md §4.B's "compiled & cached keyed by schema hash").
type schemaCache struct {
	mu        sync.RWMutex
	hash      string
	validator *jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{}
}

// validate checks data against meta's schema, compiling (or reusing the
// cached compilation of) it first. A collection with no schema always
// validates.
func (s *schemaCache) validate(meta types.CollectionMeta, data map[string]interface{}) error {
	if meta.SchemaJSON == "" {
		return nil
	}
	hash := meta.SchemaHash
	if hash == "" {
		hash = SchemaHash(meta.SchemaJSON)
	}
	v, err := s.validatorFor(meta.SchemaJSON, hash)
	if err != nil {
		return err
	}
	if err := v.Validate(toJSONValue(data)); err != nil {
		return dberr.InvalidDocument("schema validation failed: " + err.Error())
	}
	return nil
}

func (s *schemaCache) validatorFor(schemaJSON, hash string) (*jsonschema.Schema, error) {
	s.mu.RLock()
	if s.hash == hash && s.validator != nil {
		v := s.validator
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("collection.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, dberr.InvalidDocument("invalid JSON schema: " + err.Error())
	}
	v, err := compiler.Compile("collection.json")
	if err != nil {
		return nil, dberr.InvalidDocument("schema compilation error: " + err.Error())
	}

	s.mu.Lock()
	s.hash = hash
	s.validator = v
	s.mu.Unlock()

	return v, nil
}

// invalidate drops the cached validator; called whenever a collection's
// schema is set or removed.
func (s *schemaCache) invalidate() {
	s.mu.Lock()
	s.hash = ""
	s.validator = nil
	s.mu.Unlock()
}

// SchemaHash computes the cache key for a schema document: its SHA-256
// hex digest (stands in for the teacher's SeaHash, unavailable in the Go
// ecosystem pack; any stable hash works here since it is only a cache key).
func SchemaHash(schemaJSON string) string {
	sum := sha256.Sum256([]byte(schemaJSON))
	return hex.EncodeToString(sum[:])
}

func toJSONValue(data map[string]interface{}) interface{} {
	b, _ := json.Marshal(data)
	var v interface{}
	_ = json.Unmarshal(b, &v)
	return v
}
