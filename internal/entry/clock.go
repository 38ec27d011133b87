package entry

import "time"

// Clock supplies wall-clock time for updated timestamps.
//
// Timestamps only need to be monotonic per document, which the manager
// guarantees itself through doc.NextTimestamp, so a Clock may stall or
// step backwards without breaking ordering of one document's writes.
//
// Thread-safety: implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
