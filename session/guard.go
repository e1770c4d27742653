package session

import "go.uber.org/atomic"

// guardDispatch wraps the raw apply function so that calls made after the
// owning session closed are silently dropped. Calls before that forward
// synchronously, exactly once each. Suppressed calls are never buffered or
// replayed: an asynchronous provider result resolving after Close must leave
// no trace.
func guardDispatch(alive *atomic.Bool, apply func(Event)) func(Event) {
	return func(event Event) {
		if !alive.Load() {
			return
		}
		apply(event)
	}
}
