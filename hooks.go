package sluice

import "sync"

// hooks holds the ordered subscriber chains for a queue's lifecycle events.
// Chains are append-only; runners snapshot the slice header under the read
// lock and iterate without it, since subscribers may block arbitrarily.
type hooks[K comparable, V any] struct {
	mu          sync.RWMutex
	beforeAdmit []func(K) error
	admitted    []func(K)
	beforeStart []func(K) error
	started     []func(K)
	onResult    []func(K, V, error) error
}

// OnBeforeAdmit registers fn to run before each submission of any key is
// admitted. Subscribers run sequentially in registration order; the first
// non-nil error vetoes the submission, the remaining subscribers do not run,
// and the submission's callback receives the error without the key ever
// being queued, processed, or cached. Vetoes are not cached: every
// submission of a key re-runs the chain.
func (q *Queue[K, V]) OnBeforeAdmit(fn func(K) error) {
	q.hooks.mu.Lock()
	defer q.hooks.mu.Unlock()
	q.hooks.beforeAdmit = append(q.hooks.beforeAdmit, fn)
}

// OnAdmitted registers fn to run when a key is admitted as new, once per
// pending run regardless of how many submissions share it. Subscribers run
// synchronously within the admitting call, in registration order; their
// return is not inspected.
func (q *Queue[K, V]) OnAdmitted(fn func(K)) {
	q.hooks.mu.Lock()
	defer q.hooks.mu.Unlock()
	q.hooks.admitted = append(q.hooks.admitted, fn)
}

// OnBeforeStart registers fn to run when a key claims a processing slot,
// before the processor is invoked. Subscribers run sequentially in
// registration order; the first non-nil error becomes the key's terminal
// error, the remaining subscribers do not run, and the processor is never
// invoked for that run. Unlike an admission veto, a start veto is a terminal
// result: it is cached and replayed like any other.
func (q *Queue[K, V]) OnBeforeStart(fn func(K) error) {
	q.hooks.mu.Lock()
	defer q.hooks.mu.Unlock()
	q.hooks.beforeStart = append(q.hooks.beforeStart, fn)
}

// OnStarted registers fn to run when a key is dispatched to the processor.
// Subscribers run synchronously within the dispatching goroutine, in
// registration order; their return is not inspected. Started never fires
// for a run vetoed by a before-start subscriber.
func (q *Queue[K, V]) OnStarted(fn func(K)) {
	q.hooks.mu.Lock()
	defer q.hooks.mu.Unlock()
	q.hooks.started = append(q.hooks.started, fn)
}

// OnResult registers fn to run with a key's candidate result before it is
// finalized. Subscribers run sequentially in registration order; the first
// non-nil error replaces the candidate result entirely — waiting callbacks
// receive the subscriber's error and a zero value, whether the processor
// succeeded or failed — and the remaining subscribers do not run. When every
// subscriber returns nil, the candidate result stands unchanged.
func (q *Queue[K, V]) OnResult(fn func(K, V, error) error) {
	q.hooks.mu.Lock()
	defer q.hooks.mu.Unlock()
	q.hooks.onResult = append(q.hooks.onResult, fn)
}

func (h *hooks[K, V]) runBeforeAdmit(key K) error {
	h.mu.RLock()
	chain := h.beforeAdmit
	h.mu.RUnlock()
	for _, fn := range chain {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (h *hooks[K, V]) emitAdmitted(key K) {
	h.mu.RLock()
	chain := h.admitted
	h.mu.RUnlock()
	for _, fn := range chain {
		fn(key)
	}
}

func (h *hooks[K, V]) runBeforeStart(key K) error {
	h.mu.RLock()
	chain := h.beforeStart
	h.mu.RUnlock()
	for _, fn := range chain {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (h *hooks[K, V]) emitStarted(key K) {
	h.mu.RLock()
	chain := h.started
	h.mu.RUnlock()
	for _, fn := range chain {
		fn(key)
	}
}

func (h *hooks[K, V]) runOnResult(key K, value V, err error) error {
	h.mu.RLock()
	chain := h.onResult
	h.mu.RUnlock()
	for _, fn := range chain {
		if herr := fn(key, value, err); herr != nil {
			return herr
		}
	}
	return nil
}
