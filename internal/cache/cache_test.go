package cache

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := New(filepath.Join(dir, "state"), 0, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := c.Set(ctx, "jig://abc_o0", []byte("hello")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := c.Get(ctx, "jig://abc_o0")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != "hello" {
		t.Fatalf("got %q", v)
	}
}

func TestGetMissingKey(t *testing.T) {
	dir := t.TempDir()
	c, _ := New(dir, 0, nil)
	_, ok, err := c.Get(context.Background(), "jig://missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestEvictsOldestWhenFull(t *testing.T) {
	dir := t.TempDir()
	c, _ := New(dir, 2, nil)
	ctx := context.Background()
	c.Set(ctx, "a", []byte("aaa"))
	c.Set(ctx, "b", []byte("bbb"))
	c.Set(ctx, "c", []byte("ccc")) // evicts the "aaa" blob

	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatal("expected a's blob to be evicted")
	}
	if _, ok, _ := c.Get(ctx, "c"); !ok {
		t.Fatal("expected c to still be present")
	}
}

func TestDeleteRemovesKeyIndex(t *testing.T) {
	dir := t.TempDir()
	c, _ := New(dir, 0, nil)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"))
	c.Delete(ctx, "k")
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestStatReportsIDAndSizeForPresentKey(t *testing.T) {
	dir := t.TempDir()
	c, _ := New(dir, 0, nil)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("hello"))

	id, size, ok := c.Stat(ctx, "k")
	if !ok {
		t.Fatal("expected stat to find the key")
	}
	if id == "" {
		t.Fatal("expected a non-empty entry id")
	}
	if size != 5 {
		t.Fatalf("got size %d, want 5", size)
	}

	if _, _, ok := c.Stat(ctx, "missing"); ok {
		t.Fatal("expected stat to miss on an unknown key")
	}
}

func TestDuplicateValuesShareOneBlob(t *testing.T) {
	dir := t.TempDir()
	c, _ := New(dir, 1, nil)
	ctx := context.Background()
	c.Set(ctx, "k1", []byte("same"))
	c.Set(ctx, "k2", []byte("same")) // content-identical: must not evict k1's blob
	if _, ok, _ := c.Get(ctx, "k1"); !ok {
		t.Fatal("expected k1 to survive a content-identical second Set")
	}
}
