// Package tracker maintains the pid -> SandboxedPip index, the table the
// dispatcher consults on every hook-point callback to resolve which pip (if
// any) a pid belongs to (spec.md §4.E).
package tracker

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ocx/sandboxcore/internal/sandboxpip"
	"github.com/ocx/sandboxcore/internal/trie"
)

// Counters are tracker-wide diagnostic tallies, rolled into process metrics.
type Counters struct {
	DuplicateTracks atomic.Uint64
	MissingUntracks atomic.Uint64
}

// Tracker maps pid to *sandboxpip.Pip, backed by a digit trie keyed on pid
// so a lookup costs one pointer chase per decimal digit and an empty table
// costs nothing beyond the root node (spec.md §4.A invariant, reused here).
type Tracker struct {
	byPID    *trie.UintTrie[*sandboxpip.Pip]
	log      *slog.Logger
	Counters Counters
}

// New constructs an empty tracker. A nil arena allocates unbounded trie
// nodes; pass the process-wide wired-memory arena in production.
func New(arena *trie.Arena, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{byPID: trie.NewUintTrie[*sandboxpip.Pip](arena), log: log}
}

// TrackRoot registers pid as the root of a freshly constructed pip. If pid
// already maps to a pip (a nested build reusing a pid before the tracker
// heard the prior tree's exit), the stale pip is untracked and
// force-terminated first, then pid is (re)inserted for pip (spec.md §4.E).
func (t *Tracker) TrackRoot(pid int32, pip *sandboxpip.Pip) error {
	if stale, ok := t.Find(pid); ok {
		t.Counters.DuplicateTracks.Add(1)
		t.log.Warn("tracker: nested build reused root pid, evicting stale pip", "pid", pid, "stale_pip_id", stale.PipID())
		t.EvictByPip(stale)
	}
	return t.track(pid, pip)
}

// TrackChild (and its ForkChild alias) records that childPID belongs to the
// same pip as an already-tracked pid, bumping the pip's live tree count.
func (t *Tracker) TrackChild(parentPID, childPID int32) error {
	pip, ok := t.Find(parentPID)
	if !ok {
		t.Counters.MissingUntracks.Add(1)
		t.log.Warn("tracker: fork from untracked parent", "parent_pid", parentPID, "child_pid", childPID)
		return ErrNotTracked
	}
	if err := t.track(childPID, pip); err != nil {
		return err
	}
	pip.OnChildTracked()
	return nil
}

// ForkChild is TrackChild under the name the dispatcher's fork hook uses.
func (t *Tracker) ForkChild(parentPID, childPID int32) error {
	return t.TrackChild(parentPID, childPID)
}

// ExecUpdate resolves pid's pip across an exec. The pid itself is unchanged
// by exec, so the tracker's index needs no update; this exists so the
// dispatcher's exec hook has one call that both confirms tracking and
// returns the pip to re-evaluate the new process image against.
func (t *Tracker) ExecUpdate(pid int32) (*sandboxpip.Pip, error) {
	pip, ok := t.Find(pid)
	if !ok {
		return nil, ErrNotTracked
	}
	return pip, nil
}

// Find resolves pid to its pip, if tracked.
func (t *Tracker) Find(pid int32) (*sandboxpip.Pip, bool) {
	return t.byPID.Get(uint64(uint32(pid)))
}

// Untrack removes pid from the table. Returns ErrNotTracked (logged,
// counted, non-fatal to the caller) if pid was not present — an
// out-of-order or duplicate exit notification.
func (t *Tracker) Untrack(pid int32) error {
	res := t.byPID.Remove(uint64(uint32(pid)))
	if res == trie.AlreadyEmpty {
		t.Counters.MissingUntracks.Add(1)
		t.log.Warn("tracker: untrack of untracked pid", "pid", pid)
		return ErrNotTracked
	}
	return nil
}

// ProcExit untracks pid and drives its pip's lifecycle: a root exit starts
// the drain timer (or terminates immediately if no descendant is alive),
// a non-root exit just decrements the live tree count. Callers that don't
// already know whether pid was a root should always reach for this instead
// of calling Untrack directly. Returns the pip (nil if pid was untracked)
// and whether this call terminated it immediately — the caller (normally
// internal/dispatch) uses that to emit the process-tree-completed report
// without duplicating it for the separate timeout path, which fires
// asynchronously via onDrainTimeout instead.
func (t *Tracker) ProcExit(pid int32, drainTimeout time.Duration, onDrainTimeout func(*sandboxpip.Pip)) (pip *sandboxpip.Pip, terminatedNow bool) {
	pip, ok := t.Find(pid)
	if !ok {
		t.Counters.MissingUntracks.Add(1)
		t.log.Warn("tracker: exit of untracked pid", "pid", pid)
		return nil, false
	}
	_ = t.Untrack(pid)
	if pip.RootPID == pid {
		rootWasLast := pip.TreeCount() <= 1
		pip.OnRootExited(drainTimeout, onDrainTimeout)
		return pip, rootWasLast
	}
	_, terminated := pip.OnChildExited()
	return pip, terminated
}

// Size returns the number of currently tracked pids.
func (t *Tracker) Size() int64 {
	return t.byPID.Count()
}

// EvictByClient untracks every pid belonging to a pip whose ClientPID is
// clientPID and force-terminates those pips — the client-crash cleanup
// reportqueue.FreeQueues performs after tearing down a client's queues
// (spec.md §4.G). Returns the distinct pips evicted (a multi-process tree
// contributes one entry, not one per tracked pid).
func (t *Tracker) EvictByClient(clientPID int32) []*sandboxpip.Pip {
	seen := make(map[*sandboxpip.Pip]bool)
	var evicted []*sandboxpip.Pip
	t.byPID.RemoveMatching(func(_ string, pip *sandboxpip.Pip) bool {
		if pip.ClientPID != clientPID {
			return false
		}
		if !seen[pip] {
			seen[pip] = true
			evicted = append(evicted, pip)
		}
		return true
	})
	for _, pip := range evicted {
		pip.ForceTerminate()
	}
	return evicted
}

// Introspect returns one sandboxpip.Info per distinct tracked pip (a
// multi-process tree contributes one entry, not one per tracked pid), the
// data the control plane's Introspect RPC serializes back to callers.
func (t *Tracker) Introspect() []sandboxpip.Info {
	seen := make(map[*sandboxpip.Pip]bool)
	var infos []sandboxpip.Info
	t.byPID.ForEach(func(_ string, pip *sandboxpip.Pip) {
		if seen[pip] {
			return
		}
		seen[pip] = true
		infos = append(infos, pip.Introspect())
	})
	return infos
}

// EvictByPip untracks every pid currently mapped to pip and force-terminates
// it — the fail_on_queue_overflow kill-tree path of spec.md §4.G, invoked by
// internal/dispatch when a reportable event can't be enqueued and the
// manifest demands the tree die rather than silently drop the report.
// Returns whether this call actually transitioned the pip to Terminated.
func (t *Tracker) EvictByPip(pip *sandboxpip.Pip) bool {
	t.byPID.RemoveMatching(func(_ string, v *sandboxpip.Pip) bool { return v == pip })
	return pip.ForceTerminate()
}

func (t *Tracker) track(pid int32, pip *sandboxpip.Pip) error {
	res := t.byPID.Insert(uint64(uint32(pid)), pip)
	switch res {
	case trie.Inserted:
		return nil
	case trie.AlreadyExists:
		t.Counters.DuplicateTracks.Add(1)
		t.log.Warn("tracker: duplicate track", "pid", pid)
		return ErrAlreadyTracked
	case trie.Failure:
		return ErrArenaExhausted
	default:
		// Race: a concurrent tracker lost the insert; the winner's entry
		// stands, so treat this the same as AlreadyExists.
		t.Counters.DuplicateTracks.Add(1)
		return ErrAlreadyTracked
	}
}
