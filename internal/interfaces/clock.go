package interfaces

import "time"

// Clock supplies commit timestamps when the caller does not provide one.
// Implementations must be monotonic per process so history ordering stays
// sane.
type Clock interface {
	Now() time.Time
}
