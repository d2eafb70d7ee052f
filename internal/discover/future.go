package discover

import "context"

// State is a snapshot of an asynchronous request. Loading stays true until
// the request completes.
type State[T any] struct {
	Loading bool
	Value   T
	Err     error
}

// Ready builds a completed state.
func Ready[T any](v T, err error) State[T] {
	return State[T]{Value: v, Err: err}
}

// Future is the pending result of a call started by Dispatch.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Dispatch runs fn on its own goroutine and returns immediately.
func Dispatch[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		v, err := fn(ctx)
		f.value, f.err = v, err
		close(f.done)
	}()
	return f
}

// Done is closed once the call has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// State returns the current state without blocking.
func (f *Future[T]) State() State[T] {
	select {
	case <-f.done:
		return State[T]{Value: f.value, Err: f.err}
	default:
		return State[T]{Loading: true}
	}
}

// Wait blocks until the call completes or ctx is done, then returns the
// state at that moment.
func (f *Future[T]) Wait(ctx context.Context) State[T] {
	select {
	case <-f.done:
	case <-ctx.Done():
	}
	return f.State()
}
