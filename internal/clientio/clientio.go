// Package clientio owns the client-facing half of queue/memory lifecycle:
// allocation pass-through to internal/reportqueue, and an abnormal-client
// sweep that frees a client's resources if it stops calling the control
// plane altogether (spec.md §4.G/H combined client lifecycle concern).
package clientio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/sandboxcore/internal/reportqueue"
	"github.com/ocx/sandboxcore/internal/tracker"
)

// DefaultAbnormalTimeout is how long a client may go without any
// control-plane call before the sweep considers it abandoned.
const DefaultAbnormalTimeout = 5 * time.Minute

// DefaultSweepInterval is how often the sweep goroutine checks for
// abandoned clients.
const DefaultSweepInterval = 30 * time.Second

// Manager fronts reportqueue.Multiplexer with per-client liveness tracking,
// mirroring the teacher's PoolManager acquire/scrub/release/maintain shape
// (internal/ghostpool.PoolManager) repurposed from a container pool to a
// queue/descriptor pool.
type Manager struct {
	queues  *reportqueue.Multiplexer
	tracker *tracker.Tracker
	log     *slog.Logger

	abnormalTimeout time.Duration
	sweepInterval   time.Duration

	mu       sync.Mutex
	lastSeen map[int32]time.Time

	stop chan struct{}
	done chan struct{}
}

// New constructs a Manager. Call StartSweep to begin the background
// abnormal-client sweep; without it, clients are never swept automatically.
func New(queues *reportqueue.Multiplexer, tr *tracker.Tracker, log *slog.Logger, abnormalTimeout, sweepInterval time.Duration) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if abnormalTimeout <= 0 {
		abnormalTimeout = DefaultAbnormalTimeout
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Manager{
		queues:          queues,
		tracker:         tr,
		log:             log,
		abnormalTimeout: abnormalTimeout,
		sweepInterval:   sweepInterval,
		lastSeen:        make(map[int32]time.Time),
	}
}

// Touch records that clientPID made a control-plane call just now. The
// Manager's allocate, notification-port and memory-descriptor pass-throughs
// call it before doing their work; internal/controlplane's TrackRoot calls
// it after a successful registration.
func (m *Manager) Touch(clientPID int32) {
	m.mu.Lock()
	m.lastSeen[clientPID] = time.Now()
	m.mu.Unlock()
}

// AllocateQueue touches clientPID then delegates to the multiplexer.
func (m *Manager) AllocateQueue(clientPID int32, queueSizeMiB uint32) *reportqueue.Queue {
	m.Touch(clientPID)
	return m.queues.AllocateQueue(clientPID, queueSizeMiB)
}

// SetNotificationPort touches clientPID then delegates to the multiplexer.
func (m *Manager) SetNotificationPort(clientPID int32, port uint64) error {
	m.Touch(clientPID)
	return m.queues.SetNotificationPort(clientPID, port)
}

// MemoryDescriptorForNext touches clientPID then delegates to the
// multiplexer.
func (m *Manager) MemoryDescriptorForNext(clientPID int32) (reportqueue.MemoryDescriptor, error) {
	m.Touch(clientPID)
	return m.queues.MemoryDescriptorForNext(clientPID)
}

// FreeQueues tears down clientPID's queues, sweeps its pips from the
// tracker, and forgets its liveness entry. Safe to call on a client with no
// resources allocated.
func (m *Manager) FreeQueues(clientPID int32) {
	m.queues.FreeQueues(clientPID, m.tracker)
	m.mu.Lock()
	delete(m.lastSeen, clientPID)
	m.mu.Unlock()
}

// StartSweep launches the background abnormal-client sweep; it runs until
// ctx is cancelled or Stop is called.
func (m *Manager) StartSweep(ctx context.Context) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.sweepLoop(ctx)
}

// Stop halts the sweep goroutine and waits for it to exit.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	deadline := time.Now().Add(-m.abnormalTimeout)

	m.mu.Lock()
	var abandoned []int32
	for pid, seen := range m.lastSeen {
		if seen.Before(deadline) {
			abandoned = append(abandoned, pid)
		}
	}
	m.mu.Unlock()

	for _, pid := range abandoned {
		m.log.Warn("clientio: sweeping abandoned client", "client_pid", pid)
		m.FreeQueues(pid)
	}
}
