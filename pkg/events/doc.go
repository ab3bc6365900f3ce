/*
Package events implements the change stream (spec.md §4.B): an in-memory,
non-blocking pub/sub broker that fans out document mutations to
subscribers (index maintainers, replication hooks, the out-of-scope
external watch API).

	Publisher → eventCh (buffer 100) → broadcast loop → Subscriber (buffer 50 each)

Publish never blocks: events queue onto a buffered channel and a single
broadcast goroutine fans them out, skipping any subscriber whose buffer
is full rather than stalling the publisher. There is no persistence,
replay, or delivery guarantee — a subscriber that needs at-least-once
delivery must read from the operation log instead.
*/
package events
