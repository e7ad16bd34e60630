package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func codeHash(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

func TestOTPConsumeOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "")
	ctx := context.Background()
	now := time.Now()

	if err := s.Save(ctx, "verify", "a@b.co", codeHash("123456"), 10*time.Minute, now); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Consume(ctx, "verify", "a@b.co", codeHash("123456"), 5, now); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := s.Consume(ctx, "verify", "a@b.co", codeHash("123456"), 5, now); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("second consume: expected ErrOTPNotFound, got %v", err)
	}
}

func TestOTPCheckDoesNotConsume(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "")
	ctx := context.Background()
	now := time.Now()

	_ = s.Save(ctx, "reset", "a@b.co", codeHash("654321"), time.Minute, now)
	for i := 0; i < 2; i++ {
		if err := s.Check(ctx, "reset", "a@b.co", codeHash("654321"), 5, now); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}
	if err := s.Consume(ctx, "reset", "a@b.co", codeHash("654321"), 5, now); err != nil {
		t.Fatalf("consume after check: %v", err)
	}
}

func TestOTPScopedByPurpose(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "")
	ctx := context.Background()
	now := time.Now()

	_ = s.Save(ctx, "verify", "a@b.co", codeHash("111111"), time.Minute, now)
	if err := s.Consume(ctx, "reset", "a@b.co", codeHash("111111"), 5, now); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected code of another purpose to be not found, got %v", err)
	}
	if err := s.Consume(ctx, "verify", "other@b.co", codeHash("111111"), 5, now); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected code of another email to be not found, got %v", err)
	}
}

func TestOTPSaveReplacesPrevious(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "")
	ctx := context.Background()
	now := time.Now()

	_ = s.Save(ctx, "verify", "a@b.co", codeHash("111111"), time.Minute, now)
	_ = s.Save(ctx, "verify", "a@b.co", codeHash("222222"), time.Minute, now)
	if err := s.Consume(ctx, "verify", "a@b.co", codeHash("111111"), 5, now); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected old code to mismatch, got %v", err)
	}
	if err := s.Consume(ctx, "verify", "a@b.co", codeHash("222222"), 5, now); err != nil {
		t.Fatalf("expected new code to verify, got %v", err)
	}
}

func TestOTPExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "")
	ctx := context.Background()
	now := time.Now()

	_ = s.Save(ctx, "verify", "a@b.co", codeHash("123456"), time.Minute, now)
	if err := s.Check(ctx, "verify", "a@b.co", codeHash("123456"), 5, now.Add(time.Minute)); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected logical expiry, got %v", err)
	}

	_ = s.Save(ctx, "verify", "b@b.co", codeHash("123456"), time.Minute, now)
	mr.FastForward(2 * time.Minute)
	if err := s.Consume(ctx, "verify", "b@b.co", codeHash("123456"), 5, now); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ttl expiry, got %v", err)
	}
}

func TestOTPAttemptsExhaustRecord(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "")
	ctx := context.Background()
	now := time.Now()

	_ = s.Save(ctx, "verify", "a@b.co", codeHash("123456"), time.Minute, now)
	for i := 0; i < 2; i++ {
		if err := s.Consume(ctx, "verify", "a@b.co", codeHash("000000"), 3, now); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i+1, err)
		}
	}
	if err := s.Consume(ctx, "verify", "a@b.co", codeHash("000000"), 3, now); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}
	if err := s.Consume(ctx, "verify", "a@b.co", codeHash("123456"), 3, now); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected record to be gone, got %v", err)
	}
}

func TestOTPConcurrentConsumeHasOneWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "")
	ctx := context.Background()
	now := time.Now()
	_ = s.Save(ctx, "verify", "a@b.co", codeHash("123456"), time.Minute, now)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Consume(ctx, "verify", "a@b.co", codeHash("123456"), 5, now); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestOTPRedisUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "")
	mr.Close()
	err := s.Save(context.Background(), "verify", "a@b.co", codeHash("1"), time.Minute, time.Now())
	if !errors.Is(err, ErrOTPRedisUnavailable) {
		t.Fatalf("expected ErrOTPRedisUnavailable, got %v", err)
	}
}
