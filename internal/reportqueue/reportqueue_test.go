package reportqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sandboxcore/internal/fam"
	"github.com/ocx/sandboxcore/internal/sandboxpip"
	"github.com/ocx/sandboxcore/internal/tracker"
	"github.com/ocx/sandboxcore/internal/trie"
	"github.com/ocx/sandboxcore/internal/wire"
)

func sampleReport(path string) wire.AccessReport {
	return wire.NewAccessReport(wire.OpRead, wire.StatusAllowed, 1, 10, 20, 21, path)
}

func TestAllocateQueueDefaultsAndClampsSize(t *testing.T) {
	m := New(nil)

	q := m.AllocateQueue(10, 0)
	assert.Equal(t, capacityFromMiB(fam.DefaultQueueSizeMiB), q.Capacity())

	q2 := m.AllocateQueue(10, fam.MaxQueueSizeMiB+100)
	assert.Equal(t, capacityFromMiB(fam.MaxQueueSizeMiB), q2.Capacity())

	assert.Equal(t, 2, m.QueueCount(10))
}

func TestEnqueueFirstFit(t *testing.T) {
	m := New(nil)
	m.AllocateQueue(1, 0)
	assert.True(t, m.Enqueue(1, sampleReport("/a"), false))
}

func TestEnqueueNoClientCountsDrop(t *testing.T) {
	m := New(nil)
	ok := m.Enqueue(999, sampleReport("/a"), false)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), m.Counters.EnqueueDrops.Load())
}

func TestEnqueueBackpressureWhenAllFull(t *testing.T) {
	m := New(nil)
	q := m.AllocateQueue(5, 1) // smallest legal size: 1 MiB

	for i := 0; i < q.Capacity(); i++ {
		require.True(t, m.Enqueue(5, sampleReport("/a"), false))
	}
	ok := m.Enqueue(5, sampleReport("/overflow"), false)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), m.Counters.EnqueueDrops.Load())
}

func TestEnqueueRoundRobinAdvancesCursor(t *testing.T) {
	m := New(nil)
	q1 := m.AllocateQueue(7, 1)
	q2 := m.AllocateQueue(7, 1)

	// Fill q1 completely first via plain (non-round-robin) enqueues, then
	// round-robin enqueues must skip the full q1 and land in q2.
	for i := 0; i < q1.Capacity(); i++ {
		require.True(t, m.Enqueue(7, sampleReport("/fill"), false))
	}
	require.True(t, q1.Full())

	require.True(t, m.Enqueue(7, sampleReport("/rr"), true))
	assert.Equal(t, 1, q2.Len())
}

func TestNotificationPortAndDescriptorAreFIFO(t *testing.T) {
	m := New(nil)
	m.AllocateQueue(3, 0)
	m.AllocateQueue(3, 0)

	require.NoError(t, m.SetNotificationPort(3, 111))
	require.NoError(t, m.SetNotificationPort(3, 222))
	err := m.SetNotificationPort(3, 333)
	assert.ErrorIs(t, err, ErrNoQueueAwaiting)

	d0, err := m.MemoryDescriptorForNext(3)
	require.NoError(t, err)
	assert.Equal(t, 0, d0.QueueIndex)

	d1, err := m.MemoryDescriptorForNext(3)
	require.NoError(t, err)
	assert.Equal(t, 1, d1.QueueIndex)
	assert.NotEqual(t, d0.Handle, d1.Handle)

	_, err = m.MemoryDescriptorForNext(3)
	assert.ErrorIs(t, err, ErrNoQueueAwaiting)
}

func TestMissingClientOperationsReturnErrNoClient(t *testing.T) {
	m := New(nil)
	assert.ErrorIs(t, m.SetNotificationPort(42, 1), ErrNoClient)
	_, err := m.MemoryDescriptorForNext(42)
	assert.ErrorIs(t, err, ErrNoClient)
}

func newTrackedPip(t *testing.T, clientPID, rootPID int32) *sandboxpip.Pip {
	t.Helper()
	man := &fam.Manifest{
		PipID:           uint64(rootPID),
		RootProcessPath: "/bin/tool",
		ScopeRoot:       &fam.ScopeNode{PolicyMask: fam.AllowAll, ConePolicy: fam.AllowAll},
		Salt:            []byte{},
	}
	buf, err := fam.Serialize(man)
	require.NoError(t, err)
	pip, err := sandboxpip.New(clientPID, rootPID, buf, trie.NewArena(0))
	require.NoError(t, err)
	return pip
}

func TestFreeQueuesRemovesQueuesAndSweepsTracker(t *testing.T) {
	m := New(nil)
	tr := tracker.New(nil, nil)

	pip := newTrackedPip(t, 55, 100)
	require.NoError(t, tr.TrackRoot(100, pip))

	m.AllocateQueue(55, 0)
	require.Equal(t, 1, m.QueueCount(55))

	m.FreeQueues(55, tr)

	assert.Equal(t, 0, m.QueueCount(55))
	assert.Equal(t, sandboxpip.Terminated, pip.State())
	_, ok := tr.Find(100)
	assert.False(t, ok)
}

func TestFreeQueuesOfUnknownClientIsNoop(t *testing.T) {
	m := New(nil)
	m.FreeQueues(12345, nil)
}

func TestQueueDequeueOrdersFIFO(t *testing.T) {
	q := newQueue(4)
	require.True(t, q.TryEnqueue(sampleReport("/1")))
	require.True(t, q.TryEnqueue(sampleReport("/2")))

	r1, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "/1", r1.PathString())

	r2, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "/2", r2.PathString())

	_, ok = q.Dequeue()
	assert.False(t, ok)
}
