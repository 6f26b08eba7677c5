// Package reportqueue implements the per-client report queue multiplexer:
// an ordered list of fixed-capacity rings per client_pid, FIFO-paired
// notification-port and memory-descriptor allocation, and round-robin or
// first-fit enqueue with backpressure counting (spec.md §4.G).
package reportqueue

import (
	"sync"
	"sync/atomic"

	"github.com/ocx/sandboxcore/internal/fam"
	"github.com/ocx/sandboxcore/internal/tracker"
	"github.com/ocx/sandboxcore/internal/trie"
	"github.com/ocx/sandboxcore/internal/wire"
)

// MemoryDescriptor is the shared-memory handle handed back to a client for
// one of its queues. The handle itself is an opaque value in this Go port;
// nothing maps it to real memory (internal/clientio passes it through
// unchanged).
type MemoryDescriptor struct {
	ClientPID  int32
	QueueIndex int
	SizeBytes  int
	Handle     uint64
}

// Counters are multiplexer-wide diagnostic tallies.
type Counters struct {
	EnqueueDrops atomic.Uint64
}

type clientQueues struct {
	mu         sync.Mutex
	queues     []*Queue
	rrCursor   int
	portCursor int
	descCursor int
}

// Multiplexer holds every client's queue list, keyed by client_pid.
type Multiplexer struct {
	structMu sync.Mutex // serializes FreeQueues' removal of a client's entry; insertion is a lock-free GetOrAdd
	byClient *trie.UintTrie[*clientQueues]
	nextHandle atomic.Uint64
	Counters   Counters
}

// New constructs an empty multiplexer. A nil arena allocates unbounded trie
// nodes.
func New(arena *trie.Arena) *Multiplexer {
	return &Multiplexer{byClient: trie.NewUintTrie[*clientQueues](arena)}
}

func (m *Multiplexer) clientFor(clientPID int32) (*clientQueues, bool) {
	return m.byClient.Get(uint64(uint32(clientPID)))
}

func (m *Multiplexer) getOrCreateClient(clientPID int32) *clientQueues {
	cq, _ := m.byClient.GetOrAdd(uint64(uint32(clientPID)), func() *clientQueues {
		return &clientQueues{}
	})
	return cq
}

// AllocateQueue appends a new queue for clientPID, clamping queueSizeMiB to
// [1, fam.MaxQueueSizeMiB] with fam.DefaultQueueSizeMiB on zero (spec.md §6,
// §8 boundary behavior), and returns it.
func (m *Multiplexer) AllocateQueue(clientPID int32, queueSizeMiB uint32) *Queue {
	if queueSizeMiB == 0 {
		queueSizeMiB = fam.DefaultQueueSizeMiB
	}
	if queueSizeMiB > fam.MaxQueueSizeMiB {
		queueSizeMiB = fam.MaxQueueSizeMiB
	}

	cq := m.getOrCreateClient(clientPID)
	q := newQueue(capacityFromMiB(queueSizeMiB))

	cq.mu.Lock()
	cq.queues = append(cq.queues, q)
	cq.mu.Unlock()
	return q
}

// SetNotificationPort attaches port to the next queue for clientPID that
// hasn't received one yet, in allocation order.
func (m *Multiplexer) SetNotificationPort(clientPID int32, port uint64) error {
	cq, ok := m.clientFor(clientPID)
	if !ok {
		return ErrNoClient
	}
	cq.mu.Lock()
	defer cq.mu.Unlock()
	if cq.portCursor >= len(cq.queues) {
		return ErrNoQueueAwaiting
	}
	q := cq.queues[cq.portCursor]
	q.hasNotificationPort = true
	q.notificationPort = port
	cq.portCursor++
	return nil
}

// MemoryDescriptorForNext hands back the shared-memory descriptor for the
// next queue awaiting one, strictly FIFO with SetNotificationPort (spec.md
// §4.G) — each RPC independently walks its own cursor over the same
// allocation-ordered queue list.
func (m *Multiplexer) MemoryDescriptorForNext(clientPID int32) (MemoryDescriptor, error) {
	cq, ok := m.clientFor(clientPID)
	if !ok {
		return MemoryDescriptor{}, ErrNoClient
	}
	cq.mu.Lock()
	defer cq.mu.Unlock()
	if cq.descCursor >= len(cq.queues) {
		return MemoryDescriptor{}, ErrNoQueueAwaiting
	}
	idx := cq.descCursor
	q := cq.queues[idx]
	q.descriptorIssued = true
	cq.descCursor++
	return MemoryDescriptor{
		ClientPID:  clientPID,
		QueueIndex: idx,
		SizeBytes:  q.Capacity() * entrySize,
		Handle:     m.nextHandle.Add(1),
	}, nil
}

// Enqueue attempts to push report into the first non-full queue for
// clientPID. With roundRobin, scanning starts at a per-client cursor that
// advances past the queue a successful push landed in, spreading load
// instead of always favoring queue zero. Returns false (and counts the
// drop) if every queue is full or the client has none.
func (m *Multiplexer) Enqueue(clientPID int32, report wire.AccessReport, roundRobin bool) bool {
	cq, ok := m.clientFor(clientPID)
	if !ok {
		m.Counters.EnqueueDrops.Add(1)
		return false
	}

	cq.mu.Lock()
	n := len(cq.queues)
	if n == 0 {
		cq.mu.Unlock()
		m.Counters.EnqueueDrops.Add(1)
		return false
	}
	start := 0
	if roundRobin {
		start = cq.rrCursor % n
	}
	queues := cq.queues
	cq.mu.Unlock()

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if queues[idx].TryEnqueue(report) {
			if roundRobin {
				cq.mu.Lock()
				cq.rrCursor = (idx + 1) % n
				cq.mu.Unlock()
			}
			return true
		}
	}
	m.Counters.EnqueueDrops.Add(1)
	return false
}

// QueueCount returns how many queues are allocated for clientPID.
func (m *Multiplexer) QueueCount(clientPID int32) int {
	cq, ok := m.clientFor(clientPID)
	if !ok {
		return 0
	}
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.queues)
}

// FreeQueues removes every queue for clientPID, then sweeps the tracker
// table for that client's pips and force-terminates them — the client-crash
// cleanup path of spec.md §4.G. Idempotent: freeing an already-freed or
// never-allocated client is a no-op.
func (m *Multiplexer) FreeQueues(clientPID int32, tr *tracker.Tracker) {
	m.structMu.Lock()
	m.byClient.Remove(uint64(uint32(clientPID)))
	m.structMu.Unlock()

	if tr != nil {
		tr.EvictByClient(clientPID)
	}
}
