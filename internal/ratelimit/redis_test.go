package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, NewRedisStore(client)
}

func TestRedisStore_LimitAndWindow(t *testing.T) {
	_, store := setupTestRedis(t)
	l := New(store, 15*time.Minute, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d := l.Allow(ctx, "203.0.113.7", base.Add(time.Duration(i)*time.Second))
		if !d.Allowed {
			t.Fatalf("submission %d: expected admit", i+1)
		}
	}

	d := l.Allow(ctx, "203.0.113.7", base.Add(time.Minute))
	if d.Allowed {
		t.Fatal("6th submission should be rejected")
	}
	if d.RetryAfter != 14*time.Minute {
		t.Errorf("RetryAfter: got %s, want %s", d.RetryAfter, 14*time.Minute)
	}

	if d := l.Allow(ctx, "198.51.100.2", base.Add(time.Minute)); !d.Allowed {
		t.Fatal("different origin should be admitted")
	}

	if d := l.Allow(ctx, "203.0.113.7", base.Add(15*time.Minute+4*time.Second)); !d.Allowed {
		t.Fatal("origin should be admitted after the window elapsed")
	}
}

func TestRedisStore_Release(t *testing.T) {
	_, store := setupTestRedis(t)
	l := New(store, 15*time.Minute, 1)
	ctx := context.Background()

	d := l.Allow(ctx, "a", base)
	if !d.Allowed {
		t.Fatal("expected admit")
	}
	if err := l.Release(ctx, "a", d.Token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if d := l.Allow(ctx, "a", base.Add(time.Second)); !d.Allowed {
		t.Fatal("released slot should be available again")
	}
}

func TestRedisStore_KeyExpires(t *testing.T) {
	mr, store := setupTestRedis(t)
	l := New(store, time.Minute, 1)

	l.Allow(context.Background(), "a", base)

	if !mr.Exists("ratelimit:contact:a") {
		t.Fatal("expected sorted set to exist")
	}
	mr.FastForward(time.Minute + time.Second)
	if mr.Exists("ratelimit:contact:a") {
		t.Error("expected key to expire after the window")
	}
}

func TestRedisStore_FailsOpenWhenDown(t *testing.T) {
	mr, store := setupTestRedis(t)
	mr.Close()

	l := New(store, time.Minute, 1)
	if d := l.Allow(context.Background(), "a", base); !d.Allowed {
		t.Fatal("expected fail-open admit when redis is unavailable")
	}
}
