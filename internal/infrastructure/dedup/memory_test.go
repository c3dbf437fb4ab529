package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryCacheMarksAndReports(t *testing.T) {
	cache := NewMemoryCache(time.Hour, 10)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "m1")
	if err != nil || seen {
		t.Fatalf("fresh cache must not report m1, got seen=%v err=%v", seen, err)
	}
	if err := cache.MarkSeen(ctx, "m1"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if err := cache.MarkSeen(ctx, "m1"); err != nil {
		t.Fatalf("repeated MarkSeen() error = %v", err)
	}
	seen, _ = cache.Seen(ctx, "m1")
	if !seen {
		t.Fatalf("expected m1 to be seen")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", cache.Len())
	}
}

func TestMemoryCacheExpiresEntries(t *testing.T) {
	const ttl = 200 * time.Millisecond
	cache := NewMemoryCache(ttl, 10)
	ctx := context.Background()

	_ = cache.MarkSeen(ctx, "old")
	time.Sleep(ttl / 2)
	_ = cache.MarkSeen(ctx, "new")
	if seen, _ := cache.Seen(ctx, "old"); !seen {
		t.Fatalf("expected old entry to be seen before its ttl")
	}

	time.Sleep(ttl/2 + 50*time.Millisecond)
	if seen, _ := cache.Seen(ctx, "old"); seen {
		t.Fatalf("expected old entry to expire")
	}
	if seen, _ := cache.Seen(ctx, "new"); !seen {
		t.Fatalf("expected new entry to survive")
	}
}

func TestMemoryCacheMarkRefreshesExpiry(t *testing.T) {
	const ttl = 200 * time.Millisecond
	cache := NewMemoryCache(ttl, 10)
	ctx := context.Background()

	_ = cache.MarkSeen(ctx, "m1")
	time.Sleep(ttl / 2)
	_ = cache.MarkSeen(ctx, "m1")
	time.Sleep(ttl/2 + 50*time.Millisecond)

	if seen, _ := cache.Seen(ctx, "m1"); !seen {
		t.Fatalf("expected re-marked entry to outlive its first ttl")
	}
}

func TestMemoryCacheEvictsOldestWhenFull(t *testing.T) {
	cache := NewMemoryCache(time.Hour, 3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_ = cache.MarkSeen(ctx, fmt.Sprintf("m%d", i))
	}
	// Refresh m1 so m2 becomes the oldest.
	_ = cache.MarkSeen(ctx, "m1")
	_ = cache.MarkSeen(ctx, "m4")

	if cache.Len() != 3 {
		t.Fatalf("expected cache bounded to 3, got %d", cache.Len())
	}
	if seen, _ := cache.Seen(ctx, "m2"); seen {
		t.Fatalf("expected m2 to be evicted")
	}
	for _, id := range []string{"m1", "m3", "m4"} {
		if seen, _ := cache.Seen(ctx, id); !seen {
			t.Fatalf("expected %s to be kept", id)
		}
	}
}

func TestMemoryCacheDefaults(t *testing.T) {
	cache := NewMemoryCache(0, 0)
	if cache.ttl != DefaultTTL || cache.maxEntries != DefaultMaxEntries {
		t.Fatalf("unexpected defaults ttl=%s max=%d", cache.ttl, cache.maxEntries)
	}
}
