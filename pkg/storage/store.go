// Package storage implements the KV Engine Facade (spec.md §4.A): a thin,
// column-family-oriented abstraction over bbolt that every higher-level
// component (documents, columnar collections, the operation log, cluster
// state, shard tables) stores its records through. No component talks to
// bbolt directly.
package storage

import "github.com/solidb/solidb/pkg/dberr"

// CF is a handle to one column family (a bbolt bucket). Keys are raw
// bytes; callers own their own encoding (JSON, big-endian counters, …).
type CF interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// PrefixIterator walks all keys with the given prefix in ascending
	// order. The returned Iterator must be closed after use.
	PrefixIterator(prefix []byte) Iterator

	// RangeIterator walks keys in [start, end) in ascending order. A nil
	// end means "through the end of the column family".
	RangeIterator(start, end []byte) Iterator
}

// Iterator walks a sequence of key/value pairs produced by a CF.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// Engine is the facade every component depends on.
type Engine interface {
	// ColumnFamily returns (creating if necessary) the named column
	// family. Safe to call repeatedly; the underlying bucket is created
	// at Open time for any name passed to Open, otherwise on first use.
	ColumnFamily(name string) (CF, error)

	// AtomicBatch calls fn to queue puts and deletes on the *Batch, then
	// applies them in a single bbolt read-write transaction: they commit
	// together or not at all. Nothing is written if fn returns an error.
	AtomicBatch(fn func(b *Batch) error) error

	Close() error
}

// Op is one queued mutation inside an AtomicBatch.
type Op struct {
	CF     string
	Key    []byte
	Value  []byte // unused when Delete is set
	Delete bool
}

// Batch accumulates cross-column-family mutations for one atomic commit.
type Batch struct {
	ops []Op
}

func (b *Batch) Put(cf string, key, value []byte) {
	b.ops = append(b.ops, Op{CF: cf, Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
}

func (b *Batch) Delete(cf string, key []byte) {
	b.ops = append(b.ops, Op{CF: cf, Key: append([]byte(nil), key...), Delete: true})
}

// ErrNotFound is returned by CF.Get when the key does not exist.
var ErrNotFound = dberr.NotFound("key not found")
