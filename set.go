package sluice

// Set wraps a [Queue] whose processor returns no meaningful value with
// simplified error-only APIs.
type Set[K comparable] struct {
	*Queue[K, struct{}]
}

// NewSet is analogous to [New], but accepts a simplified processor returning
// only an error.
func NewSet[K comparable](parallelism int, process func(K) error) Set[K] {
	return Set[K]{
		Queue: New(parallelism, func(key K) (_ struct{}, err error) {
			err = process(key)
			return
		}),
	}
}

// Submit is analogous to [Queue.Submit].
func (s Set[K]) Submit(key K, callback func(error)) {
	s.Queue.Submit(key, func(_ struct{}, err error) { callback(err) })
}

// Get is analogous to [Queue.Get].
func (s Set[K]) Get(key K) error {
	_, err := s.Queue.Get(key)
	return err
}

// Collect is analogous to [Queue.Collect].
func (s Set[K]) Collect(keys ...K) error {
	_, err := s.Queue.Collect(keys...)
	return err
}
