package recovery

import (
	"os"
	"testing"

	"github.com/duskdb/duskdb/internal/record"
	"github.com/duskdb/duskdb/internal/segment"
)

func writeRecords(t *testing.T, dir string, id uint32, recs ...record.Record) {
	t.Helper()

	f, err := os.OpenFile(segment.PathFor(dir, id), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open segment error: %v", err)
	}
	defer f.Close()

	for _, r := range recs {
		enc, err := record.Encode(r)
		if err != nil {
			t.Fatalf("encode error: %v", err)
		}
		if _, err := f.Write(enc); err != nil {
			t.Fatalf("write error: %v", err)
		}
	}
}

func TestReplayRebuildsIndexAcrossSegments(t *testing.T) {
	dir := t.TempDir()

	writeRecords(t, dir, 0,
		record.NewSet([]byte("a"), []byte("1")),
		record.NewSet([]byte("b"), []byte("2")),
	)
	writeRecords(t, dir, 1,
		record.NewSet([]byte("a"), []byte("3")), // overwrites segment 0's "a"
		record.NewRemove([]byte("b")),
	)

	idx, activeID, err := Replay(dir, 1<<20)
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if activeID != 1 {
		t.Fatalf("expected active id 1, got %d", activeID)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 live key, got %d", idx.Len())
	}

	loc, ok := idx.Get("a")
	if !ok || loc.SegmentID != 1 {
		t.Fatalf("expected 'a' to point at segment 1, got %+v (ok=%v)", loc, ok)
	}
	if _, ok := idx.Get("b"); ok {
		t.Fatalf("expected 'b' to be gone after remove")
	}
}

func TestReplayTruncatesNonCommittedTail(t *testing.T) {
	dir := t.TempDir()

	writeRecords(t, dir, 0, record.NewSet([]byte("a"), []byte("1")))

	// Simulate a crash mid-write: append a few garbage bytes that look
	// like the start of a header but are too short to decode.
	f, err := os.OpenFile(segment.PathFor(dir, 0), os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	info, _ := f.Stat()
	goodSize := info.Size()
	if _, err := f.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write garbage error: %v", err)
	}
	f.Close()

	idx, _, err := Replay(dir, 1<<20)
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 live key, got %d", idx.Len())
	}

	info, err = os.Stat(segment.PathFor(dir, 0))
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if info.Size() != goodSize {
		t.Fatalf("expected segment truncated back to %d bytes, got %d", goodSize, info.Size())
	}
}

func TestReplayFailsHardOnMidSegmentCorruption(t *testing.T) {
	dir := t.TempDir()

	writeRecords(t, dir, 0,
		record.NewSet([]byte("a"), []byte("1")),
		record.NewSet([]byte("b"), []byte("2")),
	)

	// Corrupt a byte inside the first record's key, a mid-file
	// location a genuine crash could not have produced (a crash only
	// ever truncates the tail).
	f, err := os.OpenFile(segment.PathFor(dir, 0), os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, record.HeaderSize); err != nil {
		t.Fatalf("corrupt write error: %v", err)
	}
	f.Close()

	_, _, err = Replay(dir, 1<<20)
	if err == nil {
		t.Fatal("expected an error for mid-segment corruption")
	}
	var corrupt *Corruption
	if !asCorruption(err, &corrupt) {
		t.Fatalf("expected *Corruption, got %T: %v", err, err)
	}
}

func asCorruption(err error, target **Corruption) bool {
	c, ok := err.(*Corruption)
	if ok {
		*target = c
	}
	return ok
}

func TestReplayOnEmptyDirReturnsActiveIDZero(t *testing.T) {
	dir := t.TempDir()

	idx, activeID, err := Replay(dir, 1<<20)
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if activeID != 0 {
		t.Fatalf("expected active id 0, got %d", activeID)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d keys", idx.Len())
	}
}

func TestReplayOpensFreshActiveSegmentWhenHighestIsAtOrOverRollBytes(t *testing.T) {
	dir := t.TempDir()

	writeRecords(t, dir, 0,
		record.NewSet([]byte("a"), []byte("1")),
		record.NewSet([]byte("b"), []byte("2")),
	)

	info, err := os.Stat(segment.PathFor(dir, 0))
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}

	// A roll-over threshold at or below the segment's actual on-disk
	// size means it was already at capacity before the restart: spec.md
	// §4.7 step 4 requires a fresh active segment at max+1 rather than
	// resuming appends into an over-threshold segment.
	idx, activeID, err := Replay(dir, info.Size())
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if activeID != 1 {
		t.Fatalf("expected a fresh active id 1 past the over-threshold segment 0, got %d", activeID)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected both keys still recovered from segment 0, got %d", idx.Len())
	}
	loc, ok := idx.Get("a")
	if !ok || loc.SegmentID != 0 {
		t.Fatalf("expected 'a' to still point at segment 0, got %+v (ok=%v)", loc, ok)
	}
}
