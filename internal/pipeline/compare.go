package pipeline

import (
	"context"

	"go.uber.org/zap"

	"scanlab/internal/cache"
	"scanlab/pkg/logging/logging"
)

// Side is one column of a comparison.
type Side struct {
	Key      string
	Filename string
	Label    string
	Response string
}

type Comparison struct {
	Left, Right Side
}

// Resolver looks up results for the comparison view. It only reads: a key
// that was never computed resolves to an empty response.
type Resolver struct {
	results ResultStore
}

func NewResolver(results ResultStore) *Resolver {
	return &Resolver{results: results}
}

// Index maps records by cache key for Resolve.
func Index(records []Record) map[string]Record {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		m[r.Key] = r
	}
	return m
}

// Resolve prefers the records computed in this request, then the cache.
func (r *Resolver) Resolve(ctx context.Context, current map[string]Record, keyA, keyB string) Comparison {
	return Comparison{
		Left:  r.side(ctx, current, keyA),
		Right: r.side(ctx, current, keyB),
	}
}

func (r *Resolver) side(ctx context.Context, current map[string]Record, key string) Side {
	s := Side{Key: key}

	k, ok := cache.ParseResultKey(key)
	if ok {
		s.Filename = k.Filename
		s.Label = k.Pipeline
		if desc, found := Lookup(ID(k.Pipeline)); found {
			s.Label = desc.Label
		}
	}

	if rec, found := current[key]; found {
		s.Response = rec.Response
		return s
	}
	if !ok {
		return s
	}

	entry, hit, err := r.results.Get(ctx, k)
	if err != nil {
		logging.L(ctx).Warn("compare_lookup_error", zap.String("cache_key", key), zap.Error(err))
		return s
	}
	if hit {
		s.Response = entry.Response
	}
	return s
}
