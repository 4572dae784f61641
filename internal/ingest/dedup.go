package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup is a redis-backed recently-processed cache that lets a retried
// ingestion run skip records it already reconciled. It is purely an
// optimization: the upsert itself is idempotent, so a cache miss, an
// unconfigured cache, or a flushed redis never affects correctness.
type Dedup struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedup wraps a redis client. A nil client yields a nil Dedup, which is
// valid and never reports a record as seen.
func NewDedup(client *redis.Client, ttl time.Duration) *Dedup {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Dedup{client: client, ttl: ttl}
}

// Seen claims the record for this run; the first caller gets false, every
// later identical (run, source, record) gets true.
func (d *Dedup) Seen(ctx context.Context, runID, sourceKey string, rec SourceRecord) (bool, error) {
	if d == nil {
		return false, nil
	}
	digest, err := recordDigest(rec)
	if err != nil {
		return false, err
	}
	key := fmt.Sprintf("regsync:ingest:%s:%s:%s", sourceKey, runID, digest)
	set, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !set, nil
}

func recordDigest(rec SourceRecord) (string, error) {
	// json.Marshal sorts map keys, so the digest is stable across
	// submissions of the same record.
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("digest record: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
