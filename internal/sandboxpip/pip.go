// Package sandboxpip implements the SandboxedPip aggregate: the unit of
// sandboxing rooted at one registered process tree, its File Access
// Manifest, its path dedup cache, and its Registered/Running/Draining/
// Terminated lifecycle (spec.md §4.D, §4.H).
package sandboxpip

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/sandboxcore/internal/fam"
	"github.com/ocx/sandboxcore/internal/trie"
)

// Pip is the live, in-memory state for one sandboxed process tree. It owns
// its Manifest for the tree's whole lifetime; ClientPID and RootPID never
// change after construction.
type Pip struct {
	ClientPID int32
	RootPID   int32
	FAM       *fam.Manifest

	treeCount atomic.Uint32
	state     atomic.Int32

	pathCache  *trie.PathTrie[*CacheRecord]
	lastLookup lastLookupSlots

	Counters Counters

	mu         sync.Mutex
	drainTimer *time.Timer
}

// New parses famBuf and constructs a freshly Registered pip rooted at
// rootPID, admitted on behalf of clientPID. The path dedup cache is backed
// by arena so its node budget is accounted against the same wired-memory
// pool as every other pip (spec.md §5).
func New(clientPID, rootPID int32, famBuf []byte, arena *trie.Arena) (*Pip, error) {
	manifest, err := fam.Parse(famBuf)
	if err != nil {
		return nil, err
	}

	p := &Pip{
		ClientPID: clientPID,
		RootPID:   rootPID,
		FAM:       manifest,
		pathCache: trie.NewPathTrie[*CacheRecord](arena),
	}
	p.treeCount.Store(1)
	p.state.Store(int32(Registered))
	return p, nil
}

// PipID returns the manifest-assigned identifier for this pip.
func (p *Pip) PipID() uint64 { return p.FAM.PipID }

// RootPath returns the manifest's declared root process path.
func (p *Pip) RootPath() string { return p.FAM.RootProcessPath }

// FAMFlags returns the manifest's behavioral flags.
func (p *Pip) FAMFlags() fam.Flags { return p.FAM.Flags }

// TreeCount returns the number of live processes in this pip's tree,
// including the root.
func (p *Pip) TreeCount() uint32 { return p.treeCount.Load() }

// State returns the pip's current lifecycle state.
func (p *Pip) State() State { return State(p.state.Load()) }

// CacheLookup returns the dedup record for path, creating one on first
// lookup. ok is false for a non-ASCII path, which the path trie refuses to
// store — callers must still evaluate and report such a path, just never
// through the cache.
func (p *Pip) CacheLookup(path string) (record *CacheRecord, ok bool) {
	rec, result := p.pathCache.GetOrAdd(path, NewCacheRecord)
	if result == trie.Failure {
		return nil, false
	}
	if result == trie.Race {
		p.Counters.IncrCacheRaces()
	}
	return rec, true
}

// SetLastLookup records path as the most recent lookup made by threadID.
func (p *Pip) SetLastLookup(threadID int, path string) {
	p.lastLookup.set(threadID, path)
}

// LastLookup returns the most recent path looked up by threadID, if any.
func (p *Pip) LastLookup(threadID int) (string, bool) {
	return p.lastLookup.get(threadID)
}

// Introspect returns a point-in-time snapshot for the control plane's
// Introspect RPC.
func (p *Pip) Introspect() Info {
	return Info{
		PipID:     p.PipID(),
		ClientPID: p.ClientPID,
		RootPID:   p.RootPID,
		RootPath:  p.RootPath(),
		State:     p.State(),
		TreeCount: p.TreeCount(),
		Counters:  p.Counters.Snapshot(),
	}
}
