package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// idWidth is the zero-padded digit width of a segment id in its
// filename, per spec.md §6: "NNNNNN.log".
const idWidth = 6

const fileExt = ".log"

func fileName(id uint32) string {
	return fmt.Sprintf("%0*d%s", idWidth, id, fileExt)
}

func pathFor(dir string, id uint32) string {
	return filepath.Join(dir, fileName(id))
}

// parseID extracts the segment id from a "NNNNNN.log" filename. ok is
// false for any name that doesn't match the pattern, so unrelated
// files in the directory (LOCK, hint files from a future revision)
// are skipped rather than rejected.
func parseID(name string) (id uint32, ok bool) {
	if !strings.HasSuffix(name, fileExt) {
		return 0, false
	}
	base := strings.TrimSuffix(name, fileExt)
	if len(base) != idWidth {
		return 0, false
	}
	n, err := strconv.ParseUint(base, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// listSegmentIDs returns every segment id present in dir, sorted
// ascending.
func listSegmentIDs(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	ids := make([]uint32, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := parseID(e.Name()); ok {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
