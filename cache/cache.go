// Package cache provides a Redis-backed cache for C-FIND results, keyed on
// the query's level and matching attributes so an identical query issued
// again within the TTL skips the metadata index entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/types"
	"github.com/redis/go-redis/v9"
)

const transferSyntax = dicom.TransferSyntaxExplicitVRLittleEndian

// FindCache caches the match datasets a C-FIND query resolved to.
type FindCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a find cache against the Redis instance at addr.
func New(addr string, ttl time.Duration) *FindCache {
	return &FindCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Key derives a cache key from a query's level and matching attributes.
func Key(query *types.QueryRequest) string {
	encoded, _ := json.Marshal(query)
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("pacsnet:cfind:%s", hex.EncodeToString(sum[:]))
}

// Get returns the cached match datasets for key, or ok=false on a miss.
func (c *FindCache) Get(ctx context.Context, key string) (matches []*dicom.Dataset, ok bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var encoded []string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, false
	}

	out := make([]*dicom.Dataset, 0, len(encoded))
	for _, e := range encoded {
		raw, err := hex.DecodeString(e)
		if err != nil {
			return nil, false
		}
		ds, err := dicom.ParseDatasetWithTransferSyntax(raw, transferSyntax)
		if err != nil {
			return nil, false
		}
		out = append(out, ds)
	}
	return out, true
}

// Set stores matches under key with the cache's configured TTL. A query
// with zero matches is still cached, as an empty list, to avoid repeatedly
// hitting the index for queries known to return nothing.
func (c *FindCache) Set(ctx context.Context, key string, matches []*dicom.Dataset) {
	encoded := make([]string, len(matches))
	for i, ds := range matches {
		raw, err := dicom.EncodeDatasetWithTransferSyntax(ds, transferSyntax)
		if err != nil {
			return
		}
		encoded[i] = hex.EncodeToString(raw)
	}

	data, err := json.Marshal(encoded)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, data, c.ttl)
}

// Invalidate drops every cached C-FIND result. Called after a C-STORE so a
// newly archived instance is visible to the very next query.
func (c *FindCache) Invalidate(ctx context.Context) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, "pacsnet:cfind:*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close releases the underlying Redis connection pool.
func (c *FindCache) Close() error {
	return c.client.Close()
}
