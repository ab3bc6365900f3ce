package storage

import (
	"bytes"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// BoltEngine implements Engine on top of a single bbolt file, one bucket
// per column family.
type BoltEngine struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt file at dataDir/solidb.db
// and ensures every name in cfNames exists as a bucket.
func Open(dataDir string, cfNames ...string) (*BoltEngine, error) {
	dbPath := filepath.Join(dataDir, "solidb.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range cfNames {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create column family %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltEngine{db: db}, nil
}

func (e *BoltEngine) Close() error {
	return e.db.Close()
}

// ColumnFamily returns a handle to name, creating the bucket on first use
// if it was not passed to Open.
func (e *BoltEngine) ColumnFamily(name string) (CF, error) {
	err := e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ensure column family %s: %w", name, err)
	}
	return &boltCF{db: e.db, name: []byte(name)}, nil
}

func (e *BoltEngine) AtomicBatch(fn func(b *Batch) error) error {
	batch := &Batch{}
	if err := fn(batch); err != nil {
		return err
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		for _, op := range batch.ops {
			b, err := tx.CreateBucketIfNotExists([]byte(op.CF))
			if err != nil {
				return fmt.Errorf("column family %s: %w", op.CF, err)
			}
			if op.Delete {
				if err := b.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

type boltCF struct {
	db   *bolt.DB
	name []byte
}

func (c *boltCF) Get(key []byte) ([]byte, error) {
	var out []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.name)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *boltCF) Put(key, value []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(c.name)
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
}

func (c *boltCF) Delete(key []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.name)
		if b == nil {
			return nil
		}
		return b.Delete(key)
	})
}

func (c *boltCF) PrefixIterator(prefix []byte) Iterator {
	return newBoltIterator(c.db, c.name, prefix, nil)
}

func (c *boltCF) RangeIterator(start, end []byte) Iterator {
	return newBoltIterator(c.db, c.name, nil, &rangeBound{start: start, end: end})
}

type rangeBound struct {
	start, end []byte
}

// boltIterator snapshots matching key/value pairs up front inside one bbolt
// read transaction, then serves them from memory, because bbolt cursors are
// not valid once their transaction ends. Every matching pair is held in
// memory at once, including during pkg/doc's full document scans.
type boltIterator struct {
	keys   [][]byte
	values [][]byte
	pos    int
	err    error
}

func newBoltIterator(db *bolt.DB, bucket, prefix []byte, rng *rangeBound) *boltIterator {
	it := &boltIterator{pos: -1}
	it.err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var k, v []byte
		if rng != nil {
			if rng.start != nil {
				k, v = c.Seek(rng.start)
			} else {
				k, v = c.First()
			}
			for ; k != nil; k, v = c.Next() {
				if rng.end != nil && bytes.Compare(k, rng.end) >= 0 {
					break
				}
				it.keys = append(it.keys, append([]byte(nil), k...))
				it.values = append(it.values, append([]byte(nil), v...))
			}
			return nil
		}
		for k, v = c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			it.keys = append(it.keys, append([]byte(nil), k...))
			it.values = append(it.values, append([]byte(nil), v...))
		}
		return nil
	})
	return it
}

func (it *boltIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.pos++
	return it.pos < len(it.keys)
}

func (it *boltIterator) Key() []byte   { return it.keys[it.pos] }
func (it *boltIterator) Value() []byte { return it.values[it.pos] }
func (it *boltIterator) Err() error    { return it.err }
func (it *boltIterator) Close() error  { return nil }
