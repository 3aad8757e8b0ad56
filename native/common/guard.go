package common

import (
	"errors"
	"fmt"
)

var ErrModulePaused = errors.New("module paused")

// ErrReentrantCall is returned when a guarded entry point is re-entered while
// a call through it is still in flight.
var ErrReentrantCall = errors.New("reentrant call")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Reentrancy tracks an in-flight flag per named entry point. A mutating call
// that can trigger a callback into its own module marks itself in flight for
// the duration; unrelated entry points stay unaffected, so legitimate nested
// calls into other parts of the system are never rejected.
//
// Reentrancy is not safe for concurrent use; callers hold the ledger lock.
type Reentrancy struct {
	inFlight map[string]bool
}

// NewReentrancy creates an empty reentrancy tracker.
func NewReentrancy() *Reentrancy {
	return &Reentrancy{inFlight: make(map[string]bool)}
}

// Enter marks the entry point as in flight. The returned release function
// must be deferred by the caller.
func (r *Reentrancy) Enter(entry string) (func(), error) {
	if r.inFlight[entry] {
		return nil, fmt.Errorf("%w: %s", ErrReentrantCall, entry)
	}
	r.inFlight[entry] = true
	return func() { delete(r.inFlight, entry) }, nil
}
