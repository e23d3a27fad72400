package infrastructure

import (
	"testing"
	"time"
)

func TestMessageRateLimiterPerKey(t *testing.T) {
	rl := NewMessageRateLimiter(0.001, 2)

	if !rl.Allow("telegram:1") || !rl.Allow("telegram:1") {
		t.Fatal("burst of 2 should be allowed")
	}
	if rl.Allow("telegram:1") {
		t.Fatal("third message should be limited")
	}
	if !rl.Allow("telegram:2") {
		t.Fatal("other keys have their own bucket")
	}
}

func TestMessageRateLimiterSweep(t *testing.T) {
	rl := NewMessageRateLimiter(1, 1)
	rl.Allow("a")
	rl.Allow("b")

	rl.Sweep(time.Now())
	if rl.Size() != 2 {
		t.Fatalf("size = %d, want 2 before idle window", rl.Size())
	}
	rl.Sweep(time.Now().Add(time.Hour))
	if rl.Size() != 0 {
		t.Fatalf("size = %d, want 0 after idle window", rl.Size())
	}
}
