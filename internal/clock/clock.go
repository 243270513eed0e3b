// Package clock provides the process clock used for commit timestamps.
package clock

import (
	"sync"
	"time"

	"github.com/finbooks/ledger/internal/interfaces"
)

// System is a monotonic wall clock. If the wall clock steps backwards the
// returned time is nudged forward by a nanosecond past the last value, so
// commit timestamps assigned by one process never regress.
type System struct {
	mu   sync.Mutex
	last time.Time
}

var _ interfaces.Clock = (*System)(nil)

// NewSystem returns a monotonic system clock.
func NewSystem() *System {
	return &System{}
}

func (s *System) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}

	s.last = now

	return now
}
