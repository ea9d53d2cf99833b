package cache

import (
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c := NewInMemoryCache[string, int](0)

	c.Set("a", 1, 0)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("missing key must not be found")
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted key must not be found")
	}
}

func TestExpiry(t *testing.T) {
	c := NewInMemoryCache[string, string](0)
	c.Set("k", "v", 10*time.Millisecond)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("fresh entry must be found")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry must not be found")
	}
	if c.Size() != 0 {
		t.Fatalf("size = %d, expired entry must be dropped on read", c.Size())
	}
}

func TestDefaultTTLZeroNeverExpires(t *testing.T) {
	c := NewInMemoryCache[int, int](0)
	c.Set(1, 2, 0)
	time.Sleep(10 * time.Millisecond)
	if v, ok := c.Get(1); !ok || v != 2 {
		t.Fatal("entry without ttl must persist")
	}
}
