package shard

import (
	"encoding/json"
	"fmt"

	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
	"gopkg.in/yaml.v3"
)

func cfName(database string) string { return "shardtable:" + database }

// Store persists ShardTables, one per collection, inside a
// single column family per database.
type Store struct {
	cf storage.CF
}

// NewStore opens the shard-table column family for database.
func NewStore(engine storage.Engine, database string) (*Store, error) {
	cf, err := engine.ColumnFamily(cfName(database))
	if err != nil {
		return nil, fmt.Errorf("shard table column family: %w", err)
	}
	return &Store{cf: cf}, nil
}

// Save persists t, keyed by collection name.
func (s *Store) Save(t *types.ShardTable) error {
	data, err := json.Marshal(t)
	if err != nil {
		return dberr.Internal("marshal shard table", err)
	}
	if err := s.cf.Put([]byte(t.Collection), data); err != nil {
		return dberr.Internal("persist shard table", err)
	}
	return nil
}

// Load reads the shard table for collection.
func (s *Store) Load(collection string) (*types.ShardTable, error) {
	data, err := s.cf.Get([]byte(collection))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, dberr.NotFound("shard table for collection " + collection)
		}
		return nil, dberr.Internal("load shard table", err)
	}
	var t types.ShardTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, dberr.Internal("decode shard table", err)
	}
	return &t, nil
}

// DumpYAML renders t for debug/status output. Exercises gopkg.in/yaml.v3
// as SPEC_FULL.md §2.3 calls for — there is no file-based config to load,
// but shard tables and columnar schemas both support a human-readable
// dump through the same library.
func DumpYAML(t *types.ShardTable) ([]byte, error) {
	return yaml.Marshal(t)
}
