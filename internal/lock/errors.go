package lock

import "errors"

// ErrLocked is returned when a directory is already held by another
// duskdb process.
var ErrLocked = errors.New("directory is locked by another duskdb instance")
