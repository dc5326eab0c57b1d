package session

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gaslog/gaslog/internal/cache"
)

func newTestRecorder(t *testing.T, locations LocationProvider) (*Recorder, *cache.Cache) {
	t.Helper()
	store, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	rec := NewRecorder(store, locations, logger)
	rec.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
	return rec, store
}

func TestRecorderStartWritesHeader(t *testing.T) {
	rec, store := newTestRecorder(t, nil)

	sess, err := rec.Start(Device{Name: "Probe", ID: "aa:bb:cc:00:11:22"}, time.Hour)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Number != 1 {
		t.Fatalf("first session should be 1, got %d", sess.Number)
	}
	if sess.Name != "survey_probe_001122_session_001_20240601T100000Z.csv" {
		t.Fatalf("unexpected name %s", sess.Name)
	}
	body, _ := os.ReadFile(sess.Path)
	if string(body) != Header+"\n" {
		t.Fatalf("unexpected body %q", body)
	}

	entry, ok := store.Stat(sess.Name)
	if !ok {
		t.Fatalf("session file should be tracked")
	}
	if entry.Meta["device_id"] != "aa:bb:cc:00:11:22" || entry.Meta["session"] != "1" {
		t.Fatalf("unexpected meta %+v", entry.Meta)
	}

	second, err := rec.Start(Device{Name: "Probe", ID: "aa:bb:cc:00:11:22"}, 0)
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if second.Number != 2 || second.Name == sess.Name {
		t.Fatalf("second session must get a new number and file: %+v", second)
	}
}

func TestSessionRecordUsesLatestLocation(t *testing.T) {
	loc := &LatestLocation{}
	rec, _ := newTestRecorder(t, loc)
	sess, err := rec.Start(Device{Name: "p", ID: "01"}, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := sess.Record(Reading{ErrorCode: "0", Methane: "1.5", Ethane: "0.1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	loc.Update(Location{Latitude: "48.1", Longitude: "11.5"})
	if err := sess.Record(Reading{ErrorCode: "0", Methane: "1.6", Ethane: "0.2"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	body, _ := os.ReadFile(sess.Path)
	lines := strings.Split(strings.TrimSuffix(string(body), "\n"), "\n")
	want := []string{
		Header,
		"2024-06-01T10:00:00Z,0,1.5,0.1,,",
		"2024-06-01T10:00:00Z,0,1.6,0.2,48.1,11.5",
	}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected rows:\n%s", body)
	}
	if sess.Rows() != 2 {
		t.Fatalf("rows=%d", sess.Rows())
	}
}

func TestSessionConsumeUntilClosed(t *testing.T) {
	rec, _ := newTestRecorder(t, nil)
	sess, err := rec.Start(Device{Name: "p", ID: "01"}, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	readings := make(chan Reading, 3)
	readings <- Reading{ErrorCode: "0", Methane: "1", Ethane: "0"}
	readings <- Reading{ErrorCode: "0", Methane: "2", Ethane: "0"}
	close(readings)

	n, err := sess.Consume(context.Background(), readings)
	if err != nil || n != 2 {
		t.Fatalf("consume: n=%d err=%v", n, err)
	}
}

func TestSessionConsumeStopsOnBadRow(t *testing.T) {
	rec, _ := newTestRecorder(t, nil)
	sess, err := rec.Start(Device{Name: "p", ID: "01"}, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	readings := make(chan Reading, 2)
	readings <- Reading{ErrorCode: "0", Methane: "1", Ethane: "0"}
	readings <- Reading{ErrorCode: "0", Methane: "1,5", Ethane: "0"}

	n, err := sess.Consume(context.Background(), readings)
	if err == nil || n != 1 {
		t.Fatalf("expected failure after one row, n=%d err=%v", n, err)
	}
}

func TestSessionConsumeHonoursContext(t *testing.T) {
	rec, _ := newTestRecorder(t, nil)
	sess, err := rec.Start(Device{Name: "p", ID: "01"}, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sess.Consume(ctx, make(chan Reading)); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSessionRecordRestoresHeaderAfterRelease(t *testing.T) {
	rec, store := newTestRecorder(t, nil)
	sess, err := rec.Start(Device{Name: "p", ID: "01"}, time.Hour)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := store.MarkUploaded(sess.Name); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}

	if err := sess.Record(Reading{ErrorCode: "0", Methane: "1", Ethane: "2"}); err != nil {
		t.Fatalf("record after release: %v", err)
	}
	body, err := os.ReadFile(sess.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := Header + "\n2024-06-01T10:00:00Z,0,1,2,,\n"
	if string(body) != want {
		t.Fatalf("session file lost its header line: %q", body)
	}
	entry, ok := store.Stat(sess.Name)
	if !ok || entry.Bytes != int64(len(want)) {
		t.Fatalf("recreated file should be tracked with its full size: %+v", entry)
	}
}

func TestSessionMetaSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open(dir)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	rec := NewRecorder(store, nil, nil)
	sess, err := rec.Start(Device{Name: "p", ID: "01"}, time.Hour)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	reopened, err := cache.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	entry, ok := reopened.Stat(sess.Name)
	if !ok {
		t.Fatalf("entry should survive reopen")
	}
	if entry.Meta["session"] != "1" || entry.Meta["device_name"] != "p" {
		t.Fatalf("meta changed type across reload: %#v", entry.Meta)
	}
}
