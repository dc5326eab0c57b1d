package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecoveryRebuildsFromOrphans(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(dir, fmt.Sprintf("orphan_%d.csv", i)), "H\n1\n")
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	clock := newFakeClock()
	c := openTestCache(t, dir, clock)

	active := c.ListActive()
	if len(active) != 5 {
		t.Fatalf("expected 5 recovered entries, got %d", len(active))
	}
	for _, h := range active {
		if !h.Recovered() {
			t.Fatalf("%s should be marked recovered", h.Filename)
		}
		if !h.ExpiresAt.After(clock.Now()) {
			t.Fatalf("%s should expire in the future", h.Filename)
		}
		if h.MIME != DefaultMIME || h.Bytes != 4 {
			t.Fatalf("unexpected recovered entry %+v", h.Entry)
		}
	}
	if got := len(readSnapshot(t, dir)); got != 5 {
		t.Fatalf("rebuild should persist immediately, snapshot has %d", got)
	}
}

func TestRecoveryOnCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, IndexFileName), "{not json")
	writeFile(t, filepath.Join(dir, "a.csv"), "H\n")
	writeFile(t, filepath.Join(dir, CounterFileName), "7")
	writeFile(t, filepath.Join(dir, ".cache-tmp-123"), "leftover")

	c := openTestCache(t, dir, newFakeClock())
	active := c.ListActive()
	if len(active) != 1 || active[0].Filename != "a.csv" {
		t.Fatalf("control and temp files must not be adopted: %+v", active)
	}
	if _, err := os.Stat(filepath.Join(dir, ".cache-tmp-123")); !os.IsNotExist(err) {
		t.Fatalf("leftover temp file should be swept on open, stat err=%v", err)
	}
	n, err := c.NextSession()
	if err != nil || n != 8 {
		t.Fatalf("counter should continue at 8, got %d (%v)", n, err)
	}
}

func TestReconcileAfterCrash(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()
	c := openTestCache(t, dir, clock)
	if _, err := c.EnsureHeader("kept.csv", "H", WriteOptions{}); err != nil {
		t.Fatalf("ensure header: %v", err)
	}
	if _, err := c.EnsureHeader("lost.csv", "H", WriteOptions{}); err != nil {
		t.Fatalf("ensure header: %v", err)
	}
	original, _ := c.Stat("kept.csv")

	// 模拟写入数据后、保存索引前进程被杀。
	f, err := os.OpenFile(filepath.Join(dir, "kept.csv"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("1,2\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()
	if err := os.Remove(filepath.Join(dir, "lost.csv")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	writeFile(t, filepath.Join(dir, "stray.csv"), "H\n")

	reopened := openTestCache(t, dir, clock)
	kept, ok := reopened.Stat("kept.csv")
	if !ok || kept.Bytes != int64(len("H\n1,2\n")) {
		t.Fatalf("size should be refreshed from disk: %+v", kept)
	}
	if !kept.ExpiresAt.Equal(original.ExpiresAt) || kept.Recovered() {
		t.Fatalf("reconcile must not touch expiry or origin: %+v", kept)
	}
	if _, ok := reopened.Stat("lost.csv"); ok {
		t.Fatalf("entry for a vanished file should be dropped")
	}
	stray, ok := reopened.Stat("stray.csv")
	if !ok || !stray.Recovered() {
		t.Fatalf("untracked file should be adopted as recovered: %+v", stray)
	}
}

func TestLoadSkipsInvalidRecordsOnly(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()
	expires := clock.Now().Add(3 * time.Hour)
	snapshot, err := json.Marshal([]Entry{
		{Filename: "good.csv", ExpiresAt: expires, Bytes: 2, MIME: DefaultMIME},
		{Filename: "../evil.csv", ExpiresAt: expires, Bytes: 1, MIME: DefaultMIME},
		{Filename: CounterFileName, ExpiresAt: expires, Bytes: 1, MIME: DefaultMIME},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	writeFile(t, filepath.Join(dir, IndexFileName), string(snapshot))
	writeFile(t, filepath.Join(dir, "good.csv"), "H\n")

	c := openTestCache(t, dir, clock)
	good, ok := c.Stat("good.csv")
	if !ok {
		t.Fatalf("valid record should be kept")
	}
	if good.Recovered() || !good.ExpiresAt.Equal(expires) {
		t.Fatalf("valid record must keep its expiry and origin: %+v", good)
	}

	persisted := readSnapshot(t, dir)
	if len(persisted) != 1 || persisted[0].Filename != "good.csv" {
		t.Fatalf("invalid records should be dropped from the snapshot: %+v", persisted)
	}
}
