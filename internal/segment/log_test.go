package segment

import (
	"bytes"
	"os"
	"testing"
)

func TestAppendAndReadAt(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir, 0, 1<<20, false)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer l.Close()

	loc, err := l.Append([]byte("hello"))
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if loc.SegmentID != 0 || loc.Offset != 0 || loc.Length != 5 {
		t.Fatalf("unexpected location: %+v", loc)
	}

	loc2, err := l.Append([]byte("world!"))
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if loc2.Offset != 5 {
		t.Fatalf("expected second append at offset 5, got %d", loc2.Offset)
	}

	got, err := l.ReadAt(loc.SegmentID, loc.Offset, loc.Length)
	if err != nil {
		t.Fatalf("ReadAt error: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("ReadAt returned %q, want %q", got, "hello")
	}
}

func TestAppendRollsOverWhenFull(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir, 0, 10, false)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer l.Close()

	if _, err := l.Append([]byte("0123456789")); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if l.ActiveID() != 0 {
		t.Fatalf("expected active id 0 after first write, got %d", l.ActiveID())
	}

	loc, err := l.Append([]byte("x"))
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if loc.SegmentID != 1 {
		t.Fatalf("expected roll-over to segment 1, got %d", loc.SegmentID)
	}
	if l.ActiveID() != 1 {
		t.Fatalf("expected active id 1, got %d", l.ActiveID())
	}

	ids, err := ListIDs(dir)
	if err != nil {
		t.Fatalf("ListIDs error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("expected segments [0 1], got %v", ids)
	}
}

func TestRollToSealsCurrentAndOpensNew(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir, 0, 1<<20, false)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer l.Close()

	if _, err := l.Append([]byte("abc")); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if err := l.RollTo(5); err != nil {
		t.Fatalf("RollTo error: %v", err)
	}
	if l.ActiveID() != 5 {
		t.Fatalf("expected active id 5, got %d", l.ActiveID())
	}

	loc, err := l.Append([]byte("z"))
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if loc.SegmentID != 5 || loc.Offset != 0 {
		t.Fatalf("expected write to land at segment 5 offset 0, got %+v", loc)
	}
}

func TestSealAndReplaceRemovesRetiredSegments(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir, 0, 1<<20, false)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer l.Close()

	if err := l.RollTo(1); err != nil {
		t.Fatalf("RollTo error: %v", err)
	}

	if err := l.SealAndReplace([]uint32{0}); err != nil {
		t.Fatalf("SealAndReplace error: %v", err)
	}

	if _, err := os.Stat(PathFor(dir, 0)); !os.IsNotExist(err) {
		t.Fatalf("expected segment 0 to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(PathFor(dir, 1)); err != nil {
		t.Fatalf("expected segment 1 (active) to remain: %v", err)
	}
}

func TestTruncateAtDiscardsTail(t *testing.T) {
	dir := t.TempDir()
	path := PathFor(dir, 0)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteAt([]byte("goodgarbage"), 0); err != nil {
		t.Fatalf("write error: %v", err)
	}

	if err := TruncateAt(f, 4); err != nil {
		t.Fatalf("TruncateAt error: %v", err)
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if info.Size() != 4 {
		t.Fatalf("expected size 4 after truncate, got %d", info.Size())
	}
}
