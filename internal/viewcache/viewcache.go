// Package viewcache provides an optimistic read-model wrapper: a view is
// updated to its expected post-operation value before the backend confirms,
// then committed or rolled back on the outcome. UIs stay responsive without
// ever showing a state the backend later contradicts for longer than one
// round trip.
package viewcache

import "sync"

// State of an optimistic view
type State string

const (
	// StateCommitted means the view reflects a confirmed backend value
	StateCommitted State = "committed"
	// StatePending means the view shows a predicted value awaiting
	// confirmation.
	StatePending State = "pending"
)

// View holds a value of T together with the last committed value to fall
// back to. All methods are safe for concurrent use.
type View[T any] struct {
	mu        sync.RWMutex
	state     State
	value     T
	committed T
}

// NewView creates a view with an initial committed value
func NewView[T any](value T) *View[T] {
	return &View[T]{state: StateCommitted, value: value, committed: value}
}

// Get returns the current value and whether it is still pending
// confirmation.
func (v *View[T]) Get() (T, State) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value, v.state
}

// Predict sets the value readers see while an operation is in flight
func (v *View[T]) Predict(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	v.state = StatePending
}

// Commit replaces the committed value with the backend's confirmed result
func (v *View[T]) Commit(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	v.committed = value
	v.state = StateCommitted
}

// Rollback discards the prediction and restores the last committed value
func (v *View[T]) Rollback() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = v.committed
	v.state = StateCommitted
}

// Do runs op with predicted shown to readers. On success the returned value
// is committed; on error the view rolls back to the last committed value and
// the error is returned unchanged.
func Do[T any](v *View[T], predicted T, op func() (T, error)) (T, error) {
	v.Predict(predicted)

	result, err := op()
	if err != nil {
		v.Rollback()
		return result, err
	}

	v.Commit(result)
	return result, nil
}
