package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowDrainsBucket(t *testing.T) {
	tb := NewTokenBucket(3, 1)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("token %d must be available", i)
		}
	}
	if tb.Allow() {
		t.Fatal("empty bucket must not allow")
	}
	if tb.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", tb.Remaining())
	}
}

func TestWaitHonorsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Fatal("wait on empty bucket must fail when ctx expires")
	}
}

func TestRefill(t *testing.T) {
	tb := NewTokenBucket(1, 100)
	if !tb.Allow() {
		t.Fatal("first token must be available")
	}
	time.Sleep(50 * time.Millisecond)
	if !tb.Allow() {
		t.Fatal("bucket must refill over time")
	}
}
