package ingester

import "sync"

// buffer is the per-class staging area. The mutex guards only the slice
// reference: a flush swaps the slice out and releases the lock before any
// database work, so pushes never wait on a round-trip.
type buffer[T any] struct {
	mtx  sync.Mutex
	recs []T

	// trigger carries the size-trigger signal. Capacity one: however many
	// pushes cross the threshold before the flush loop reacts, at most one
	// flush is scheduled.
	trigger chan struct{}
}

func newBuffer[T any](capacityHint int) *buffer[T] {
	return &buffer[T]{
		recs:    make([]T, 0, capacityHint),
		trigger: make(chan struct{}, 1),
	}
}

// push appends one record and schedules a size-triggered flush when the
// buffer has reached limit.
func (b *buffer[T]) push(rec T, limit int) {
	b.mtx.Lock()
	b.recs = append(b.recs, rec)
	full := len(b.recs) >= limit
	b.mtx.Unlock()

	if full {
		select {
		case b.trigger <- struct{}{}:
		default:
		}
	}
}

// swap detaches the staged records and installs a fresh slice. Concurrent
// pushes land either in the detached batch or in the fresh buffer; both
// are correct.
func (b *buffer[T]) swap() []T {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if len(b.recs) == 0 {
		return nil
	}
	batch := b.recs
	b.recs = make([]T, 0, cap(batch))
	return batch
}

// requeue puts a failed batch back at the front so the next trigger
// retries it ahead of anything pushed meanwhile.
func (b *buffer[T]) requeue(batch []T) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.recs = append(batch, b.recs...)
}

func (b *buffer[T]) depth() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.recs)
}
