package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"scanlab/internal/backend"
)

// Entry is one computed pipeline result.
type Entry struct {
	Request  string       `json:"request"`
	Response string       `json:"response"`
	Filename string       `json:"filename"`
	Pipeline string       `json:"pipeline"`
	Kind     backend.Kind `json:"kind"`
}

// ResultCache stores entries as JSON in a Store. The first write for a key
// wins; there is no invalidation.
type ResultCache struct {
	store Store
	ttl   time.Duration
}

func NewResultCache(store Store, ttl time.Duration) *ResultCache {
	return &ResultCache{store: store, ttl: ttl}
}

func (c *ResultCache) Get(ctx context.Context, key ResultKey) (Entry, bool, error) {
	raw, ok, err := c.store.Get(ctx, key.String())
	if err != nil || !ok {
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return e, true, nil
}

// Set stores e unless the key already holds an entry.
func (c *ResultCache) Set(ctx context.Context, key ResultKey, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	_, err = c.store.Add(ctx, key.String(), raw, c.ttl)
	return err
}
