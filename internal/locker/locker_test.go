package locker

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker(time.Second)
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "+15550001111")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Errorf("expected at most one holder, saw %d", maxActive)
	}
	if l.size() != 0 {
		t.Errorf("expected entries to be cleaned up, got %d", l.size())
	}
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker(50 * time.Millisecond)
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()
	unlockB, err := l.Lock(context.Background(), "b")
	if err != nil {
		t.Fatalf("expected different key to be free, got %v", err)
	}
	unlockB()
}

func TestLocalLockerTimeout(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Lock(context.Background(), "k"); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("expected lock to be free after release, got %v", err)
	}
	again()
}

func TestLocalLockerContextCancel(t *testing.T) {
	l := NewLocalLocker(time.Second)
	unlock, _ := l.Lock(context.Background(), "k")
	defer unlock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	l := NewRedisLockerWithClient(client, 100*time.Millisecond, time.Second)

	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000")
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if _, err := l.Lock(ctx, key); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout while held, got %v", err)
	}
	unlock()
	unlock2, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	unlock2()
}
