package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestAllowWithinLimit(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter, err := NewSlidingWindowLimiter(srv.Addr(), "", "test:rl", 3, time.Minute)
	if err != nil {
		t.Fatalf("NewSlidingWindowLimiter() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if !limiter.Allow("client-a") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("client-a") {
		t.Fatalf("request over limit should be denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter, err := NewSlidingWindowLimiter(srv.Addr(), "", "test:rl", 1, time.Minute)
	if err != nil {
		t.Fatalf("NewSlidingWindowLimiter() error = %v", err)
	}
	if !limiter.Allow("client-a") {
		t.Fatalf("first request for client-a should be allowed")
	}
	if !limiter.Allow("client-b") {
		t.Fatalf("client-b should not share client-a's quota")
	}
	if limiter.Allow("client-a") {
		t.Fatalf("client-a should be over quota")
	}
}

func TestWindowSlides(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter, err := NewSlidingWindowLimiter(srv.Addr(), "", "test:rl", 1, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSlidingWindowLimiter() error = %v", err)
	}
	if !limiter.Allow("client-a") {
		t.Fatalf("first request should be allowed")
	}
	if limiter.Allow("client-a") {
		t.Fatalf("second immediate request should be denied")
	}
	time.Sleep(60 * time.Millisecond)
	if !limiter.Allow("client-a") {
		t.Fatalf("request after the window passed should be allowed")
	}
}

func TestFailsClosedWithoutRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter, err := NewSlidingWindowLimiter(srv.Addr(), "", "test:rl", 5, time.Minute)
	if err != nil {
		t.Fatalf("NewSlidingWindowLimiter() error = %v", err)
	}
	srv.Close()
	if limiter.Allow("client-a") {
		t.Fatalf("limiter should fail closed when redis is unreachable")
	}
}

func TestConstructorValidation(t *testing.T) {
	if _, err := NewSlidingWindowLimiter("", "", "p", 5, time.Minute); err == nil {
		t.Fatalf("empty addr should be rejected")
	}
	if _, err := NewSlidingWindowLimiter("localhost:6379", "", "p", 0, time.Minute); err == nil {
		t.Fatalf("zero limit should be rejected")
	}
}
