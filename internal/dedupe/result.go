package dedupe

// Result carries a detector outcome. A failed result still holds an empty,
// usable value, so a caller that only wants "duplicates or nothing" can call
// Value and move on, while one that cares can tell a degraded run from a
// clean run with Failed.
type Result[T any] struct {
	value T
	Err   error
}

func ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

func failed[T any](empty T, err error) Result[T] {
	return Result[T]{value: empty, Err: err}
}

// Value returns the result value. It is empty when the result failed.
func (r Result[T]) Value() T {
	return r.value
}

// Failed reports whether detection was degraded by an infrastructure error.
func (r Result[T]) Failed() bool {
	return r.Err != nil
}

// Get returns the value and the error together.
func (r Result[T]) Get() (T, error) {
	return r.value, r.Err
}
