package signin

import "context"

// race runs op and returns its result, unless ctx is done first, in which
// case it returns ErrCancelled immediately. A result that arrives after
// cancellation is handed to cleanup so that nothing it opened leaks.
func race[T any](ctx context.Context, op func(context.Context) (T, error), cleanup func(T)) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, ErrCancelled
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return zero, ErrCancelled
		}
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			r := <-done
			if r.err == nil && cleanup != nil {
				cleanup(r.v)
			}
		}()
		return zero, ErrCancelled
	}
}

// call is race for operations that only return an error.
func call(ctx context.Context, op func(context.Context) error) error {
	_, err := race(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, nil)
	return err
}
