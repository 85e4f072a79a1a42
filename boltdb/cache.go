// Package boltdb caches dataset Filter Field schemas in a boltdb file so that
// repeated queries against a dataset do not need to fetch its definition.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/generalsystem/dfi"
	"github.com/pkg/errors"
)

var schemaBucket = []byte("schemas")

// DefaultTTL is how long a cached schema is served before it is fetched
// again.
const DefaultTTL = 10 * time.Minute

// SchemaCache stores dfi.Schema values keyed by dataset id. Each entry is
// the big endian expiry in unix nanoseconds followed by the JSON schema.
type SchemaCache struct {
	Db  *bolt.DB
	ttl time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// NewSchemaCache opens (or creates) the bolt file at filename. A ttl of zero
// uses DefaultTTL.
func NewSchemaCache(filename string, ttl time.Duration) (sc *SchemaCache, err error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sc = &SchemaCache{ttl: ttl, now: time.Now}
	sc.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = sc.Db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(schemaBucket)
		return errors.Wrap(err, "creating schema bucket")
	})
	if err != nil {
		sc.Db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return sc, nil
}

// Close syncs and closes the underlying boltdb.
func (sc *SchemaCache) Close() error {
	if err := sc.Db.Sync(); err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return sc.Db.Close()
}

// SetClock replaces the clock used to stamp and expire entries.
func (sc *SchemaCache) SetClock(now func() time.Time) {
	sc.mu.Lock()
	sc.now = now
	sc.mu.Unlock()
}

func (sc *SchemaCache) clock() time.Time {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.now()
}

// Get returns the cached schema of datasetID. ok is false when there is no
// entry or it has expired.
func (sc *SchemaCache) Get(datasetID string) (schema dfi.Schema, ok bool, err error) {
	var val []byte
	err = sc.Db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(schemaBucket).Get([]byte(datasetID)); v != nil {
			val = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "reading schema cache")
	}
	if len(val) < 8 {
		return nil, false, nil
	}
	expires := time.Unix(0, int64(binary.BigEndian.Uint64(val[:8])))
	if !sc.clock().Before(expires) {
		return nil, false, nil
	}
	if err := json.Unmarshal(val[8:], &schema); err != nil {
		return nil, false, errors.Wrapf(err, "decoding cached schema of %s", datasetID)
	}
	return schema, true, nil
}

// Put stores schema for datasetID until the cache's TTL elapses.
func (sc *SchemaCache) Put(datasetID string, schema dfi.Schema) error {
	bs, err := json.Marshal(schema)
	if err != nil {
		return errors.Wrap(err, "encoding schema")
	}
	val := make([]byte, 8, 8+len(bs))
	binary.BigEndian.PutUint64(val, uint64(sc.clock().Add(sc.ttl).UnixNano()))
	val = append(val, bs...)
	err = sc.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(schemaBucket).Put([]byte(datasetID), val)
	})
	return errors.Wrapf(err, "caching schema of %s", datasetID)
}

// Delete drops the entry of datasetID, if any.
func (sc *SchemaCache) Delete(datasetID string) error {
	err := sc.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(schemaBucket).Delete([]byte(datasetID))
	})
	return errors.Wrapf(err, "removing cached schema of %s", datasetID)
}
