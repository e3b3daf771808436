package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

// Needs a reachable server, e.g. TEST_REDIS_URL=redis://localhost:6379/15.
func TestRedisLockExcludesSecondHolder(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	locker, err := NewRedis(ctx, RedisConfig{URL: url, Prefix: "techsheet:test:", TTL: 5 * time.Second, PollInterval: 5 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer locker.Close()

	unlock, err := locker.Lock(ctx, t.Name())
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(waitCtx, t.Name()); !domain.IsKind(err, domain.ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}

	unlock()
	again, err := locker.Lock(ctx, t.Name())
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	again()
}
