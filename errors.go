package duskdb

import "errors"

// Sentinel error kinds per spec §7. Wrapped with github.com/pkg/errors
// at the façade boundary so callers get a stack trace via %+v while
// still being able to compare with errors.Is against these values.
var (
	// ErrIo reports a filesystem or device failure. The engine's state
	// remains consistent: either a write reached both the log and the
	// index, or neither.
	ErrIo = errors.New("duskdb: io error")

	// ErrCorruption reports a CRC failure mid-segment, or a decoded
	// record whose kind doesn't match what the caller asked for. The
	// engine remains open for other keys.
	ErrCorruption = errors.New("duskdb: corruption")

	// ErrKeyNotFound is returned by Remove for a key absent from the index.
	ErrKeyNotFound = errors.New("duskdb: key not found")

	// ErrTooLarge is returned when a key or value exceeds the bounds
	// in the data model (64 KiB keys, 4 MiB values).
	ErrTooLarge = errors.New("duskdb: key or value too large")

	// ErrBadPattern is reserved for future grammar extensions; the
	// current find grammar has no byte sequence it rejects.
	ErrBadPattern = errors.New("duskdb: bad pattern")

	// ErrLocked is returned by Open when the directory is already held
	// by another process.
	ErrLocked = errors.New("duskdb: directory is locked by another process")
)
