package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"scanlab/internal/backend"
)

func TestResultKeyStringAndParse(t *testing.T) {
	k := ResultKey{SessionID: "3f1c-9a", Filename: "lab_form.tiff", Pipeline: "ocr_gemma3"}

	if got := k.String(); got != "result:3f1c-9a:lab_form.tiff:ocr_gemma3" {
		t.Fatalf("unexpected key string: %s", got)
	}

	parsed, ok := ParseResultKey(k.String())
	if !ok || parsed != k {
		t.Fatalf("parse mismatch: %#v ok=%v", parsed, ok)
	}
}

func TestParseResultKeyRejectsGarbage(t *testing.T) {
	for _, s := range []string{
		"",
		"result:a:b",
		"exact:a:b:c",
		"result::b:c",
		"result:a:b:c:d",
	} {
		if _, ok := ParseResultKey(s); ok {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestResultCacheKeepsFirstEntry(t *testing.T) {
	c := NewResultCache(NewLoggingStore(NewMemoryStore(time.Minute)), 0)
	ctx := context.Background()
	key := ResultKey{SessionID: "s", Filename: "f.png", Pipeline: "llava"}

	if _, hit, err := c.Get(ctx, key); hit || err != nil {
		t.Fatalf("expected clean miss, hit=%v err=%v", hit, err)
	}

	first := Entry{
		Request:  "Describe the contents of this image.",
		Response: "No response from LLaVA.",
		Filename: "f.png",
		Pipeline: "llava",
		Kind:     backend.KindEmpty,
	}
	if err := c.Set(ctx, key, first); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set(ctx, key, Entry{Response: "later"}); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}

	got, hit, err := c.Get(ctx, key)
	if err != nil || !hit {
		t.Fatalf("Get: hit=%v err=%v", hit, err)
	}
	if got != first {
		t.Fatalf("expected first entry, got %#v", got)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}

func (failingStore) Add(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errors.New("down")
}

func TestResultCachePropagatesStoreErrors(t *testing.T) {
	c := NewResultCache(failingStore{}, 0)
	key := ResultKey{SessionID: "s", Filename: "f.png", Pipeline: "ocr"}

	if _, hit, err := c.Get(context.Background(), key); err == nil || hit {
		t.Fatalf("expected error miss, hit=%v err=%v", hit, err)
	}
	if err := c.Set(context.Background(), key, Entry{}); err == nil {
		t.Fatalf("expected Set error")
	}
}

func TestResultCacheCorruptEntry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	key := ResultKey{SessionID: "s", Filename: "f.png", Pipeline: "ocr"}
	_, _ = store.Add(context.Background(), key.String(), []byte("{not json"), 0)

	c := NewResultCache(store, 0)
	if _, hit, err := c.Get(context.Background(), key); err == nil || hit {
		t.Fatalf("expected decode error, hit=%v err=%v", hit, err)
	}
}
