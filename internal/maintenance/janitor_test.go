package maintenance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gaslog/gaslog/internal/cache"
	"github.com/gaslog/gaslog/internal/logging"
)

func TestRunOncePurgesAndTrims(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c, err := cache.Open(dir, cache.WithClock(func() time.Time { return now }), cache.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}

	if _, err := c.EnsureHeader("old.csv", "H", cache.WriteOptions{TTL: time.Minute}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if _, err := c.EnsureHeader("a.csv", "0123456789", cache.WriteOptions{TTL: time.Hour}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if _, err := c.EnsureHeader("b.csv", "0123456789", cache.WriteOptions{TTL: 2 * time.Hour}); err != nil {
		t.Fatalf("header: %v", err)
	}
	now = now.Add(2 * time.Minute)

	j := New(c, time.Minute, 15, logging.Discard())
	res, err := j.RunOnce()
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if res.Purged != 1 || res.Trimmed != 1 || res.TotalBytes != 11 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.csv")); !os.IsNotExist(err) {
		t.Fatalf("a.csv expires first and should be evicted")
	}
	if _, ok := c.Stat("b.csv"); !ok {
		t.Fatalf("b.csv should remain")
	}
}

func TestRunOnceSkipsTrimWhenUnlimited(t *testing.T) {
	fake := &fakeCache{total: 1 << 20}
	res, err := New(fake, time.Minute, 0, logging.Discard()).RunOnce()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.trimCalls != 0 || res.Trimmed != 0 {
		t.Fatalf("trim must not run without a limit")
	}
	if fake.purgeCalls != 1 {
		t.Fatalf("purge should run once, got %d", fake.purgeCalls)
	}
}

func TestRunOnceContinuesAfterPurgeError(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeCache{purgeErr: boom}
	_, err := New(fake, time.Minute, 10, logging.Discard()).RunOnce()
	if !errors.Is(err, boom) {
		t.Fatalf("expected purge error, got %v", err)
	}
	if fake.trimCalls != 1 {
		t.Fatalf("trim should still run after purge failure")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fake := &fakeCache{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(fake, time.Millisecond, 0, logging.Discard()).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not stop after cancel")
	}
}

func TestRunRejectsZeroInterval(t *testing.T) {
	if err := New(&fakeCache{}, 0, 0, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

type fakeCache struct {
	total      int64
	purgeErr   error
	purgeCalls int
	trimCalls  int
}

func (f *fakeCache) PurgeExpired() (int, error) {
	f.purgeCalls++
	return 0, f.purgeErr
}

func (f *fakeCache) EnforceMaxBytes(int64) (int, error) {
	f.trimCalls++
	return 0, nil
}

func (f *fakeCache) TotalBytes() int64 { return f.total }
