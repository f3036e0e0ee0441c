// Package compactor reclaims disk space occupied by superseded
// records without ever stopping writers. It is grounded on
// vi88i-kvstash/src/store/store.go's autoCompact, which runs
// periodically, copies every live key into a fresh store and swaps
// the old store out for the new one — but autoCompact holds the
// store's single mutex for the whole cycle, blocking every Get/Set
// until the copy finishes. This package replaces that coarse lock with
// a snapshot-rewrite-conditional-swap sequence (spec.md §4.5): only
// the index's own narrow write-guard is taken, once for the few
// microseconds it takes to repoint the keys that didn't race a
// concurrent write, and once more to drop the retired segments'
// uncompacted-byte bookkeeping.
package compactor

import (
	"bytes"
	"fmt"

	"github.com/duskdb/duskdb/internal/index"
	"github.com/duskdb/duskdb/internal/record"
	"github.com/duskdb/duskdb/internal/segment"
)

// Log is the subset of *segment.Log the compactor needs, narrowed to
// an interface so tests can exercise the algorithm against a fake.
type Log interface {
	ActiveID() uint32
	Append([]byte) (segment.Location, error)
	ReadAt(segmentID uint32, offset, length int64) ([]byte, error)
	RollTo(newID uint32) error
	SealAndReplace(retired []uint32) error
}

// Run executes one compaction pass: it snapshots idx, rewrites every
// live record into a fresh segment, repoints the index at the
// rewritten copies where nothing raced the snapshot, and deletes the
// segments that no key points at anymore. It returns the number of
// keys actually relocated.
func Run(log Log, idx *index.Index, allSegmentIDs func() ([]uint32, error)) (int, error) {
	snapshot := idx.Snapshot()

	allIDs, err := allSegmentIDs()
	if err != nil {
		return 0, fmt.Errorf("compactor: list segments: %w", err)
	}

	activeAtSnapshot := log.ActiveID()
	retired := make([]uint32, 0, len(allIDs))
	for _, id := range allIDs {
		if id < activeAtSnapshot {
			retired = append(retired, id)
		}
	}
	if len(retired) == 0 {
		return 0, nil
	}

	newSegmentID := allIDs[len(allIDs)-1] + 1
	if err := log.RollTo(newSegmentID); err != nil {
		return 0, fmt.Errorf("compactor: roll to new segment %d: %w", newSegmentID, err)
	}

	pairs := make([]index.CompactPair, 0, len(snapshot))
	for key, oldLoc := range snapshot {
		if oldLoc.SegmentID >= activeAtSnapshot {
			continue // already in a segment this pass isn't retiring
		}

		if cur, ok := idx.Get(key); !ok || cur != oldLoc {
			continue // raced Remove (or an overwrite already past the snapshot) since the snapshot was taken
		}

		raw, err := log.ReadAt(oldLoc.SegmentID, oldLoc.Offset, oldLoc.Length)
		if err != nil {
			return 0, fmt.Errorf("compactor: read %q at segment %d: %w", key, oldLoc.SegmentID, err)
		}

		rec, _, err := record.DecodeAt(bytes.NewReader(raw))
		if err != nil {
			return 0, fmt.Errorf("compactor: decode %q: %w", key, err)
		}
		if rec.Kind != record.KindSet {
			continue // a live tombstone should never appear in the index
		}

		encoded, err := record.Encode(rec)
		if err != nil {
			return 0, fmt.Errorf("compactor: re-encode %q: %w", key, err)
		}

		newLoc, err := log.Append(encoded)
		if err != nil {
			return 0, fmt.Errorf("compactor: append %q to segment %d: %w", key, newSegmentID, err)
		}

		pairs = append(pairs, index.CompactPair{Key: key, Expected: oldLoc, NewLoc: newLoc})
	}

	successorID := log.ActiveID() + 1
	if err := log.RollTo(successorID); err != nil {
		return 0, fmt.Errorf("compactor: open empty successor %d: %w", successorID, err)
	}

	swapped := idx.CompactSwapAll(pairs)

	if err := log.SealAndReplace(retired); err != nil {
		return 0, fmt.Errorf("compactor: remove retired segments: %w", err)
	}
	idx.ForgetSegments(retired)

	return len(swapped), nil
}
