// Package live turns document-store watches into reduced, ordered state.
package live

import (
	"context"
	"sync"

	"clubhub/internal/docstore"
)

// Reducer folds a snapshot into the previous state. Snapshots carry the full
// result set, so most reducers ignore prev and rebuild.
type Reducer[S any] func(prev S, snap docstore.Snapshot) (S, error)

// View holds the latest reduced state of one watch.
type View[S any] struct {
	mu     sync.RWMutex
	state  S
	seq    uint64
	reduce Reducer[S]
}

// NewView creates a view starting from initial.
func NewView[S any](initial S, reduce Reducer[S]) *View[S] {
	return &View[S]{state: initial, reduce: reduce}
}

// Apply reduces snap into the view. Snapshots not newer than the current
// sequence are stale and ignored; applied reports whether state changed.
func (v *View[S]) Apply(snap docstore.Snapshot) (applied bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if snap.Seq <= v.seq {
		return false, nil
	}
	next, err := v.reduce(v.state, snap)
	if err != nil {
		return false, err
	}
	v.state = next
	v.seq = snap.Seq
	return true, nil
}

// State returns the current state and the sequence it was built from.
func (v *View[S]) State() (S, uint64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state, v.seq
}

// Reset forgets the sequence so a fresh watch (which restarts at 1) can be
// followed by the same view.
func (v *View[S]) Reset() {
	v.mu.Lock()
	v.seq = 0
	v.mu.Unlock()
}

// Follow applies every snapshot from snaps to v and calls onChange with each
// new state. It returns when the channel closes (nil) or ctx ends (ctx.Err()).
func Follow[S any](ctx context.Context, snaps <-chan docstore.Snapshot, v *View[S], onChange func(S) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			applied, err := v.Apply(snap)
			if err != nil {
				return err
			}
			if !applied || onChange == nil {
				continue
			}
			state, _ := v.State()
			if err := onChange(state); err != nil {
				return err
			}
		}
	}
}

// Decoded builds a reducer that replaces the state with the decoded
// snapshot documents passed through build.
func Decoded[T any, S any](build func([]T) S) Reducer[S] {
	return func(_ S, snap docstore.Snapshot) (S, error) {
		items, err := docstore.DecodeAll[T](snap.Docs)
		if err != nil {
			var zero S
			return zero, err
		}
		return build(items), nil
	}
}
