//go:build integration

// Integration test for the Valkey cache.
// Requires a running Valkey: docker run -p 6379:6379 valkey/valkey
//
// Run: go test -tags=integration ./internal/cache/
package cache_test

import (
	"context"
	"os"
	"testing"

	"github.com/joeblew999/plat-massing/internal/cache"
)

func addr() string {
	if a := os.Getenv("MASSING_VALKEY_ADDR"); a != "" {
		return a
	}
	return "localhost:6379"
}

func TestSetGetDelete(t *testing.T) {
	c, err := cache.New(addr())
	if err != nil {
		t.Skipf("valkey not reachable: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := "massing:test:" + t.Name()

	if err := c.Set(ctx, key, []byte(`{"elements":[]}`), 60); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"elements":[]}` {
		t.Fatalf("value=%q", got)
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, key); err == nil {
		t.Fatal("expected miss after delete")
	}
}
