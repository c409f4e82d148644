package respcache

import (
	"testing"
	"time"

	"github.com/ariadne-ai/aria/internal/intent"
)

func TestCachePutGet(t *testing.T) {
	c := New(time.Minute)
	c.Put(intent.IntentCheckBalance, "Your balance is $1,240.")

	got, ok := c.Get(intent.IntentCheckBalance)
	if !ok || got != "Your balance is $1,240." {
		t.Fatalf("Get() = (%q, %v), want cached response", got, ok)
	}
	if _, ok := c.Get(intent.IntentCheckWeather); ok {
		t.Fatalf("Get() on empty intent = hit, want miss")
	}
}

func TestCacheExpiresLazily(t *testing.T) {
	c := New(300 * time.Second)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	c.Put(intent.IntentCheckBalance, "cached")

	now = now.Add(299 * time.Second)
	if _, ok := c.Get(intent.IntentCheckBalance); !ok {
		t.Fatalf("Get() before TTL = miss, want hit")
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get(intent.IntentCheckBalance); ok {
		t.Fatalf("Get() after TTL = hit, want miss")
	}
	// The expired entry was evicted by the lookup, not a sweeper.
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after expired lookup, want 0", c.Len())
	}
}

func TestCacheLastWriteWins(t *testing.T) {
	c := New(time.Minute)
	c.Put(intent.IntentCheckBalance, "first")
	c.Put(intent.IntentCheckBalance, "second")

	got, _ := c.Get(intent.IntentCheckBalance)
	if got != "second" {
		t.Fatalf("Get() = %q, want last write", got)
	}
}
