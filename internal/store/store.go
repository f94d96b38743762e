// Package store implements the persistent result-cache and trace-history
// backends (§4.11 item 4, §4.12) on top of BoltDB. Grounded almost
// directly on services/orchestrator/persistence.go's WorkflowStore: same
// bbolt.Options, same bucket-per-concern layout, same warm-cache-on-open
// pattern and read/write latency histograms, repurposed from
// workflow/version storage to module-result-cache/execution-trace
// storage.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	bucketCacheEntries = []byte("cache_entries")
	bucketTraces       = []byte("traces")
)

// CacheEntry is one memoized module result, keyed by its value fingerprint
// (internal/value.Fingerprint).
type CacheEntry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// TraceRecord is one persisted execution trace, serialized by the caller
// (internal/tracker.ExecutionTrace is JSON-marshalable via its exported
// fields).
type TraceRecord struct {
	ExecutionID string          `json:"execution_id"`
	Payload     json.RawMessage `json:"payload"`
	StoredAt    time.Time       `json:"stored_at"`
}

// Backends is the BoltDB-backed persistent store for cache entries and
// execution traces.
type Backends struct {
	db *bbolt.DB
	mu sync.RWMutex

	memCache map[string]CacheEntry

	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// Open creates or opens a BoltDB file at dbPath and prepares its buckets.
// meter may be nil.
func Open(dbPath string, meter metric.Meter) (*Backends, error) {
	opts := &bbolt.Options{
		Timeout:      1 * time.Second,
		NoSync:       false,
		NoGrowSync:   false,
		FreelistType: bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(dbPath, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("store: open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketCacheEntries, bucketTraces} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	b := &Backends{db: db, memCache: make(map[string]CacheEntry)}
	if meter != nil {
		b.readLatency, _ = meter.Float64Histogram("constellation_store_read_ms")
		b.writeLatency, _ = meter.Float64Histogram("constellation_store_write_ms")
		b.cacheHits, _ = meter.Int64Counter("constellation_store_cache_hits_total")
		b.cacheMisses, _ = meter.Int64Counter("constellation_store_cache_misses_total")
	}

	if err := b.warmCache(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: warm cache: %w", err)
	}
	return b, nil
}

func (b *Backends) warmCache() error {
	return b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCacheEntries)
		return bucket.ForEach(func(k, v []byte) error {
			var entry CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil // skip corrupt entries rather than fail startup
			}
			b.memCache[string(k)] = entry
			return nil
		})
	})
}

// Close closes the underlying database.
func (b *Backends) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Close()
}

func (b *Backends) recordLatency(ctx context.Context, h metric.Float64Histogram, start time.Time, op string) {
	if h == nil {
		return
	}
	h.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("operation", op)))
}

// PutCacheEntry stores payload under key with the given TTL, updating both
// BoltDB and the in-memory warm cache.
func (b *Backends) PutCacheEntry(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) error {
	start := time.Now()
	defer b.recordLatency(ctx, b.writeLatency, start, "put_cache_entry")

	entry := CacheEntry{Key: key, Payload: payload, StoredAt: start, ExpiresAt: start.Add(ttl)}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: marshal cache entry: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCacheEntries).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("store: write cache entry: %w", err)
	}
	b.memCache[key] = entry
	return nil
}

// GetCacheEntry retrieves a non-expired cache entry for key.
func (b *Backends) GetCacheEntry(ctx context.Context, key string) (CacheEntry, bool, error) {
	start := time.Now()
	defer b.recordLatency(ctx, b.readLatency, start, "get_cache_entry")

	b.mu.RLock()
	if entry, ok := b.memCache[key]; ok {
		b.mu.RUnlock()
		if b.cacheHits != nil {
			b.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "cache_entry")))
		}
		if time.Now().After(entry.ExpiresAt) {
			return CacheEntry{}, false, nil
		}
		return entry, true, nil
	}
	b.mu.RUnlock()

	if b.cacheMisses != nil {
		b.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "cache_entry")))
	}

	var entry CacheEntry
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCacheEntries).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("store: read cache entry: %w", err)
	}
	if !found || time.Now().After(entry.ExpiresAt) {
		return CacheEntry{}, false, nil
	}

	b.mu.Lock()
	b.memCache[key] = entry
	b.mu.Unlock()
	return entry, true, nil
}

// DeleteCacheEntry removes key from both BoltDB and the warm cache.
func (b *Backends) DeleteCacheEntry(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCacheEntries).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store: delete cache entry: %w", err)
	}
	delete(b.memCache, key)
	return nil
}

// PutTrace persists one execution's trace payload.
func (b *Backends) PutTrace(ctx context.Context, executionID string, payload json.RawMessage) error {
	start := time.Now()
	defer b.recordLatency(ctx, b.writeLatency, start, "put_trace")

	record := TraceRecord{ExecutionID: executionID, Payload: payload, StoredAt: start}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: marshal trace: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTraces).Put([]byte(executionID), data)
	})
}

// GetTrace retrieves a persisted trace by execution id.
func (b *Backends) GetTrace(ctx context.Context, executionID string) (TraceRecord, bool, error) {
	start := time.Now()
	defer b.recordLatency(ctx, b.readLatency, start, "get_trace")

	var record TraceRecord
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTraces).Get([]byte(executionID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return TraceRecord{}, false, fmt.Errorf("store: read trace: %w", err)
	}
	return record, found, nil
}
