package sandboxpip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sandboxcore/internal/fam"
	"github.com/ocx/sandboxcore/internal/policy"
	"github.com/ocx/sandboxcore/internal/trie"
)

func sampleFAMBuf(t *testing.T) []byte {
	t.Helper()
	m := &fam.Manifest{
		PipID:           42,
		Flags:           fam.ReportAll,
		RootProcessPath: "/bin/tool",
		ScopeRoot: &fam.ScopeNode{
			PolicyMask: fam.AllowAll,
			ConePolicy: fam.AllowAll,
		},
		Salt:         []byte{1, 2, 3},
		QueueSizeMiB: 16,
	}
	buf, err := fam.Serialize(m)
	require.NoError(t, err)
	return buf
}

func TestNewParsesManifestAndRegisters(t *testing.T) {
	p, err := New(100, 200, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)

	assert.Equal(t, uint64(42), p.PipID())
	assert.Equal(t, "/bin/tool", p.RootPath())
	assert.Equal(t, int32(100), p.ClientPID)
	assert.Equal(t, int32(200), p.RootPID)
	assert.Equal(t, Registered, p.State())
	assert.Equal(t, uint32(1), p.TreeCount())
}

func TestNewRejectsBadManifest(t *testing.T) {
	p, err := New(100, 200, []byte{0, 0, 0, 0}, trie.NewArena(0))
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestCacheLookupDedupesPerOperation(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)

	rec, ok := p.CacheLookup("/BIN/TOOL")
	require.True(t, ok)

	assert.False(t, rec.MarkReported(policy.OpRead))
	assert.True(t, rec.MarkReported(policy.OpRead), "second report of the same op is a duplicate")
	assert.False(t, rec.MarkReported(policy.OpWrite), "a different op on the same path is not a duplicate")

	rec2, ok := p.CacheLookup("/BIN/TOOL")
	require.True(t, ok)
	assert.Same(t, rec, rec2, "the same path returns the same cache record")
}

func TestCacheLookupRejectsNonASCII(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)

	_, ok := p.CacheLookup("/tmp/\xff\xfe")
	assert.False(t, ok)
}

func TestLastLookupRoundTrip(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)

	_, ok := p.LastLookup(7)
	assert.False(t, ok)

	p.SetLastLookup(7, "/tmp/a")
	got, ok := p.LastLookup(7)
	require.True(t, ok)
	assert.Equal(t, "/tmp/a", got)
}

func TestOnChildTrackedMovesToRunning(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)

	n := p.OnChildTracked()
	assert.Equal(t, uint32(2), n)
	assert.Equal(t, Running, p.State())
}

func TestOnChildExitedTerminatesAtZero(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)

	remaining, terminated := p.OnChildExited()
	assert.Equal(t, uint32(0), remaining)
	assert.True(t, terminated)
	assert.Equal(t, Terminated, p.State())
}

func TestOnRootExitedDrainsThenTimesOut(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)
	p.OnChildTracked() // one live descendant besides the root

	done := make(chan struct{})
	p.OnRootExited(10*time.Millisecond, func(*Pip) {
		close(done)
	})
	assert.Equal(t, Draining, p.State())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain timeout never fired")
	}
	assert.Equal(t, Terminated, p.State())
}

func TestOnRootExitedWithNoDescendantsTerminatesImmediately(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)

	p.OnRootExited(time.Second, nil)
	assert.Equal(t, Terminated, p.State())
}

func TestCancelDrainTimerPreventsTimeout(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)
	p.OnChildTracked()

	fired := make(chan struct{}, 1)
	p.OnRootExited(20*time.Millisecond, func(*Pip) { fired <- struct{}{} })
	p.CancelDrainTimer()
	// The tree drains normally instead of timing out.
	p.OnChildExited()

	select {
	case <-fired:
		t.Fatal("drain timeout fired after being cancelled")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, Terminated, p.State())
}

func TestMarkQueueStarvedForceTerminates(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)
	p.OnChildTracked()

	p.MarkQueueStarved()
	assert.Equal(t, Terminated, p.State())
}

func TestIntrospectSnapshot(t *testing.T) {
	p, err := New(1, 2, sampleFAMBuf(t), trie.NewArena(0))
	require.NoError(t, err)
	p.Counters.IncrReports()
	p.Counters.IncrDenials()

	info := p.Introspect()
	assert.Equal(t, uint64(42), info.PipID)
	assert.Equal(t, Registered, info.State)
	assert.Equal(t, uint64(1), info.Counters.Reports)
	assert.Equal(t, uint64(1), info.Counters.Denials)
}
