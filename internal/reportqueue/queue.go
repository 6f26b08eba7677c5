package reportqueue

import (
	"sync"

	"github.com/ocx/sandboxcore/internal/wire"
)

// entrySize is the fixed per-slot cost the ring reserves, mirroring the
// teacher's C-struct-compatible ringbuf.Event sizing in internal/ringbuf.
const entrySize = wire.Size

// capacityFromMiB converts a client-requested queue_size_mib into a slot
// count, the same clamp-then-divide spec.md §6/§8 applies to queue sizing.
func capacityFromMiB(mib uint32) int {
	bytes := int(mib) * 1024 * 1024
	slots := bytes / entrySize
	if slots < 1 {
		slots = 1
	}
	return slots
}

// Queue is one fixed-capacity ring of AccessReport entries, modeling a
// wired memory region mapped into the client. A single reportqueue.Queue is
// produced into by arbitrarily many dispatcher threads and drained by
// exactly one client reader, so enqueue/dequeue share one mutex rather than
// hand-rolling a lock-free MPSC ring — correctness over throughput, since
// nothing outside this process ever contends for the lock.
type Queue struct {
	mu   sync.Mutex
	buf  []wire.AccessReport
	head int
	tail int
	size int

	hasNotificationPort bool
	notificationPort    uint64
	descriptorIssued    bool
}

func newQueue(capacity int) *Queue {
	return &Queue{buf: make([]wire.AccessReport, capacity)}
}

// Capacity returns the fixed number of slots this queue holds.
func (q *Queue) Capacity() int {
	return len(q.buf)
}

// TryEnqueue pushes report if the ring is not full. Returns false on a full
// ring — the caller counts this as backpressure (spec.md §4.G).
func (q *Queue) TryEnqueue(report wire.AccessReport) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.buf) {
		return false
	}
	q.buf[q.tail] = report
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	return true
}

// Dequeue pops the oldest report, simulating the client's own consumption
// of its mapped shared memory (this Go port has no separate process to
// consume across the real mapping, so callers that need to observe drained
// reports, such as tests, call this directly).
func (q *Queue) Dequeue() (wire.AccessReport, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		var zero wire.AccessReport
		return zero, false
	}
	r := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return r, true
}

// Len returns the number of currently queued reports.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Full reports whether the ring has no free slots.
func (q *Queue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size == len(q.buf)
}
