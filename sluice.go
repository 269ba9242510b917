/*
Package sluice provides a deduplicating, memoizing work queue with bounded
concurrency and lifecycle extension points.

A [Queue] maps comparable keys to the results of a processor function,
running the processor at most once per key while bounding the number of
concurrent runs. Repeated submissions of a pending key share the single
in-flight run, and finalized results are cached for replay until explicitly
invalidated with [Queue.Invalidate].

Hook chains registered on the queue observe each key's lifecycle and may
veto admission, veto processing, or override a result. Chains run
sequentially in registration order; see [Queue.OnBeforeAdmit] and friends.

Results reach callers through an internal delivery queue rather than on the
submitter's stack, so a [Queue.Submit] call never reenters its caller.
*/
package sluice
