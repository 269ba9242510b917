package sluice

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gammazero/deque"

	"github.com/featherbread/sluice/trap"
)

// ErrProcessorGoexit is the terminal error recorded for a key whose
// processor called [runtime.Goexit] instead of returning.
var ErrProcessorGoexit = errors.New("sluice: processor called runtime.Goexit")

// Processor computes the result for a single key. A queue invokes its
// processor at most once per key, in a goroutine of its own, with at most
// the configured number of invocations in flight at a time.
//
// A processor that panics or calls [runtime.Goexit] does not take the queue
// down with it; the abnormal exit becomes the key's terminal error.
type Processor[K comparable, V any] func(K) (V, error)

// Callback receives the terminal result for a single submission. The queue
// invokes it exactly once, from a delivery goroutine owned by the queue,
// never from the stack of the [Queue.Submit] call that registered it.
type Callback[V any] func(V, error)

// Queue runs a processor at most once per distinct key, bounds how many
// runs are in flight concurrently, and caches each key's terminal result
// for replay until [Queue.Invalidate] removes it.
//
// Submissions of a key whose run is pending share that single run: every
// registered callback receives the same result, in registration order.
// Pending keys wait in FIFO order for a free slot, though
// [Queue.InformFront] and [Queue.Prioritize] can reorder them.
//
// Hook chains registered through the On* methods observe each key's
// lifecycle and may veto admission, veto processing, or override a result.
type Queue[K comparable, V any] struct {
	process Processor[K, V]
	hooks   hooks[K, V]

	// mu guards every field below. Callbacks, hook subscribers, and the
	// processor always run outside of it.
	mu       sync.Mutex
	limit    int
	inflight int

	// waiters holds one entry per pending key, queued or in flight, with the
	// callbacks registered for it so far. A key is never in both waiters and
	// results: finalization moves it from one to the other atomically.
	waiters map[K]*waiter[V]
	results map[K]result[V]

	// order is the FIFO of keys awaiting a slot; queued mirrors its
	// membership for O(1) lookups.
	order  deque.Deque[K]
	queued mapset.Set[K]

	// scheduling coalesces requests for a slot-filling pass: the first
	// request in a burst spawns one pass, the rest fold into it.
	scheduling bool

	// deliveries carries result-delivery thunks in FIFO order; delivering
	// coalesces drainers the same way scheduling coalesces passes.
	deliveries deque.Deque[func()]
	delivering bool

	finalized atomic.Uint64
}

type waiter[V any] struct {
	callbacks []Callback[V]
}

type result[V any] struct {
	value V
	err   error
}

// New creates a [Queue] that runs process with at most parallelism
// invocations in flight. A parallelism below 1 is treated as 1.
func New[K comparable, V any](parallelism int, process Processor[K, V]) *Queue[K, V] {
	return &Queue[K, V]{
		process: process,
		limit:   max(1, parallelism),
		waiters: make(map[K]*waiter[V]),
		results: make(map[K]result[V]),
		queued:  mapset.NewThreadUnsafeSet[K](),
	}
}

// Submit registers callback for the result of key, starting a processor run
// if the key is neither pending nor cached.
//
// If a before-admit subscriber vetoes the submission, callback is invoked
// synchronously with the veto error and the queue retains no trace of the
// key. Otherwise callback is invoked exactly once from a queue-owned
// delivery goroutine: with the cached result if one exists, or with the
// result of the key's single pending run once it finalizes. Callbacks for
// one key run in registration order.
//
// A callback may call Submit, Inform, or Invalidate, but must not block on
// [Queue.Get] or [Queue.Collect] for the same queue: results are delivered
// one at a time, and a delivery that waits for another delivery deadlocks.
func (q *Queue[K, V]) Submit(key K, callback Callback[V]) {
	q.add(key, callback, false)
}

// Inform advises the queue of keys that it should process and cache as soon
// as possible, without registering callbacks for them.
//
// Inform has no effect on keys already pending or cached. New keys join the
// back of the queue in the order given. A key vetoed by a before-admit
// subscriber is dropped silently, since there is no callback to tell; a
// later Submit of the same key is re-evaluated from scratch.
func (q *Queue[K, V]) Inform(keys ...K) {
	for _, key := range keys {
		q.add(key, nil, false)
	}
}

// InformFront behaves like [Queue.Inform], but new keys join the front of
// the queue, keeping the order given within a single call. It does not
// affect the position of keys already pending.
func (q *Queue[K, V]) InformFront(keys ...K) {
	for _, key := range slices.Backward(keys) {
		q.add(key, nil, true)
	}
}

// add runs the admission sequence for one key: the before-admit gate, then
// cache replay, callback piggybacking, or a fresh enqueue.
func (q *Queue[K, V]) add(key K, callback Callback[V], front bool) {
	if err := q.hooks.runBeforeAdmit(key); err != nil {
		if callback != nil {
			var zero V
			callback(zero, err)
		}
		return
	}

	q.mu.Lock()
	if res, ok := q.results[key]; ok {
		var deliver bool
		if callback != nil {
			deliver = q.pushDeliveryLocked(func() { callback(res.value, res.err) })
		}
		q.mu.Unlock()
		if deliver {
			go q.deliver()
		}
		return
	}
	if w, ok := q.waiters[key]; ok {
		if callback != nil {
			w.callbacks = append(w.callbacks, callback)
		}
		q.mu.Unlock()
		return
	}
	w := &waiter[V]{}
	if callback != nil {
		w.callbacks = append(w.callbacks, callback)
	}
	q.waiters[key] = w
	q.mu.Unlock()

	// The key is registered but not yet schedulable, so admitted subscribers
	// always observe it before any started subscriber can.
	q.hooks.emitAdmitted(key)

	q.mu.Lock()
	if front {
		q.order.PushFront(key)
	} else {
		q.order.PushBack(key)
	}
	q.queued.Add(key)
	schedule := q.requestScheduleLocked()
	q.mu.Unlock()
	if schedule {
		go q.runSchedulePass()
	}
}

// Get submits key as if by [Queue.Submit] and blocks until its result is
// delivered. Get must not be called from a [Callback]; see Submit.
func (q *Queue[K, V]) Get(key K) (V, error) {
	ch := make(chan result[V], 1)
	q.Submit(key, func(value V, err error) {
		ch <- result[V]{value: value, err: err}
	})
	res := <-ch
	return res.value, res.err
}

// Collect submits every key as if by [Queue.Submit], then coalesces the
// results: the values corresponding to the keys, or the first error among
// them with respect to key order, without waiting on keys after the failed
// one. Collect must not be called from a [Callback]; see Submit.
func (q *Queue[K, V]) Collect(keys ...K) ([]V, error) {
	chs := make([]chan result[V], len(keys))
	for i, key := range keys {
		ch := make(chan result[V], 1)
		chs[i] = ch
		q.Submit(key, func(value V, err error) {
			ch <- result[V]{value: value, err: err}
		})
	}

	values := make([]V, len(keys))
	for i, ch := range chs {
		res := <-ch
		if res.err != nil {
			return nil, res.err
		}
		values[i] = res.value
	}
	return values, nil
}

// Invalidate removes the cached result for key, reporting whether one was
// removed. The next submission of an invalidated key starts a fresh
// processor run.
//
// Invalidate has no effect on a key currently queued or in flight; its
// pending run still records its own fresh cache entry on completion.
func (q *Queue[K, V]) Invalidate(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.results[key]; !ok {
		return false
	}
	delete(q.results, key)
	return true
}

// Prioritize moves a queued key to the front of the queue, so that the next
// free slot picks it up. It has no effect on keys that are absent, already
// in flight, or cached.
func (q *Queue[K, V]) Prioritize(key K) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.queued.Contains(key) {
		return
	}
	if i := q.order.Index(func(k K) bool { return k == key }); i > 0 {
		q.order.Remove(i)
		q.order.PushFront(key)
	}
}

// Limit updates the queue's parallelism bound, treating a limit below 1
// as 1. An increase immediately schedules as many queued keys as the new
// bound allows; after a decrease, in-flight runs in violation of the new
// bound simply finish, and no new run starts until the count falls below it.
func (q *Queue[K, V]) Limit(limit int) {
	q.mu.Lock()
	q.limit = max(1, limit)
	var schedule bool
	if q.inflight < q.limit && q.order.Len() > 0 {
		schedule = q.requestScheduleLocked()
	}
	q.mu.Unlock()
	if schedule {
		go q.runSchedulePass()
	}
}

// Stats conveys information about the keys known to a [Queue].
type Stats struct {
	// Finalized is the cumulative count of processor runs finalized,
	// including runs whose cache entries were since invalidated.
	Finalized uint64
	// Queued is the count of keys awaiting a processing slot.
	Queued uint64
	// Inflight is the count of keys currently being processed.
	Inflight uint64
	// Cached is the count of keys with a cached terminal result.
	Cached uint64
}

// Stats returns the [Stats] for a [Queue] as of the time of the call.
func (q *Queue[K, V]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Finalized: q.finalized.Load(),
		Queued:    uint64(q.queued.Cardinality()),
		Inflight:  uint64(q.inflight),
		Cached:    uint64(len(q.results)),
	}
}

// requestScheduleLocked records that a scheduling pass is needed and reports
// whether the caller must spawn it. While a pass is outstanding, further
// requests coalesce into it.
func (q *Queue[K, V]) requestScheduleLocked() bool {
	if q.scheduling {
		return false
	}
	q.scheduling = true
	return true
}

// runSchedulePass fills free processing slots from the front of the queue,
// dispatching each claimed key in its own goroutine. Removal from the queue
// and the in-flight increment happen in one critical section, so a pass can
// never double-dispatch a key or breach the limit.
func (q *Queue[K, V]) runSchedulePass() {
	q.mu.Lock()
	q.scheduling = false
	var starts []K
	for q.inflight < q.limit && q.order.Len() > 0 {
		key := q.order.PopFront()
		q.queued.Remove(key)
		q.inflight++
		starts = append(starts, key)
	}
	q.mu.Unlock()

	for _, key := range starts {
		go q.run(key)
	}
}

// run drives one key through its processing lifecycle: the before-start
// gate, the processor itself, the on-result gate, then finalization.
func (q *Queue[K, V]) run(key K) {
	var value V
	err := q.hooks.runBeforeStart(key)
	if err == nil {
		q.hooks.emitStarted(key)
		outcome := trap.Run(func() (V, error) { return q.process(key) })
		switch {
		case outcome.Panicked():
			err = fmt.Errorf("sluice: processor panicked: %v", outcome.PanicValue())
		case outcome.Goexited():
			err = ErrProcessorGoexit
		default:
			value, err = outcome.Values()
		}
	}
	if herr := q.hooks.runOnResult(key, value, err); herr != nil {
		// The override replaces the candidate outcome entirely, error and
		// value both.
		var zero V
		value, err = zero, herr
	}
	q.finalize(key, value, err)
}

// finalize records the terminal result for key, frees its slot, and hands
// every registered callback to the delivery queue in registration order.
func (q *Queue[K, V]) finalize(key K, value V, err error) {
	q.mu.Lock()
	callbacks := q.waiters[key].callbacks
	delete(q.waiters, key)
	q.results[key] = result[V]{value: value, err: err}
	q.inflight--
	q.finalized.Add(1)

	var schedule bool
	if q.order.Len() > 0 {
		schedule = q.requestScheduleLocked()
	}
	var deliver bool
	if len(callbacks) > 0 {
		deliver = q.pushDeliveryLocked(func() {
			for _, callback := range callbacks {
				callback(value, err)
			}
		})
	}
	q.mu.Unlock()

	if schedule {
		go q.runSchedulePass()
	}
	if deliver {
		go q.deliver()
	}
}

// pushDeliveryLocked appends a delivery thunk and reports whether the caller
// must spawn the drainer. While a drainer is live, further thunks fold into
// its FIFO.
func (q *Queue[K, V]) pushDeliveryLocked(fn func()) bool {
	q.deliveries.PushBack(fn)
	if q.delivering {
		return false
	}
	q.delivering = true
	return true
}

// deliver drains the delivery queue in FIFO order. At most one drainer runs
// at a time, so deliveries never interleave, and every callback runs off the
// submitter's stack.
func (q *Queue[K, V]) deliver() {
	for {
		q.mu.Lock()
		if q.deliveries.Len() == 0 {
			q.delivering = false
			q.mu.Unlock()
			return
		}
		fn := q.deliveries.PopFront()
		q.mu.Unlock()
		fn()
	}
}
