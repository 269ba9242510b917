// Package trap runs functions while containing their panics and
// [runtime.Goexit] calls.
package trap

import "sync"

// Run invokes fn in a fresh goroutine and blocks until it exits, capturing a
// normal return, a panic, or a call to [runtime.Goexit]. The caller is fully
// isolated from abnormal exits; it inspects them through the returned
// [Outcome] instead of unwinding.
func Run[T any](fn func() (T, error)) Outcome[T] {
	// If fn calls runtime.Goexit, capture unwinds without returning and the
	// preset outcome below survives.
	outcome := Outcome[T]{goexited: true}
	var wg sync.WaitGroup
	wg.Go(func() { outcome = capture(fn) })
	wg.Wait()
	return outcome
}

// capture runs fn on the current goroutine, converting a panic into an
// [Outcome]. It does not return if fn calls [runtime.Goexit].
func capture[T any](fn func() (T, error)) (o Outcome[T]) {
	defer func() {
		if !o.returned {
			// recover is a no-op while Goexiting, and in that case this
			// assignment is lost along with the rest of the return value.
			o.panicked = true
			o.panicval = recover()
		}
	}()
	o.value, o.err = fn()
	o.returned = true
	return
}

// Outcome describes how a contained function exited. The zero Outcome
// describes no function at all; only [Run] produces meaningful values.
type Outcome[T any] struct {
	returned bool
	panicked bool
	goexited bool
	value    T
	err      error
	panicval any
}

// Returned reports whether the function returned normally.
func (o Outcome[T]) Returned() bool { return o.returned }

// Panicked reports whether the function panicked.
func (o Outcome[T]) Panicked() bool { return o.panicked }

// Goexited reports whether the function called [runtime.Goexit].
func (o Outcome[T]) Goexited() bool { return o.goexited }

// PanicValue returns the captured panic value, or nil if the function did
// not panic. Under GODEBUG=panicnil=1 a nil PanicValue may also represent a
// literal panic(nil); [Outcome.Panicked] disambiguates.
func (o Outcome[T]) PanicValue() any { return o.panicval }

// Values returns the function's return values. They are meaningful only
// when [Outcome.Returned] is true.
func (o Outcome[T]) Values() (T, error) { return o.value, o.err }
