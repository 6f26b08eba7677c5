package trie

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUintTrieInsertGet(t *testing.T) {
	tr := NewUintTrie[string](nil)

	res := tr.Insert(42, "answer")
	assert.Equal(t, Inserted, res)

	val, ok := tr.Get(42)
	require.True(t, ok)
	assert.Equal(t, "answer", val)

	assert.Equal(t, int64(1), tr.Count())

	res = tr.Insert(42, "other")
	assert.Equal(t, AlreadyExists, res)
}

func TestUintTrieRemove(t *testing.T) {
	tr := NewUintTrie[int](nil)
	tr.Insert(7, 1)

	assert.Equal(t, Removed, tr.Remove(7))
	assert.Equal(t, AlreadyEmpty, tr.Remove(7))

	_, ok := tr.Get(7)
	assert.False(t, ok)
	assert.Equal(t, int64(0), tr.Count())
}

func TestUintTrieReplace(t *testing.T) {
	tr := NewUintTrie[int](nil)
	assert.Equal(t, AlreadyEmpty, tr.Replace(1, 9))

	tr.Insert(1, 9)
	assert.Equal(t, Replaced, tr.Replace(1, 10))

	val, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, 10, val)
}

func TestPathTrieRejectsNonASCII(t *testing.T) {
	tr := NewPathTrie[int](nil)

	res := tr.Insert("/tmp/繙.txt", 1)
	assert.Equal(t, Failure, res)
	assert.Equal(t, int64(0), tr.Count())

	_, ok := tr.Get("/tmp/繙.txt")
	assert.False(t, ok)
}

func TestPathTrieCaseInsensitive(t *testing.T) {
	tr := NewPathTrie[int](nil)

	tr.Insert("/Tmp/A.Txt", 1)
	val, ok := tr.Get("/tmp/a.txt")
	require.True(t, ok)
	assert.Equal(t, 1, val)
}

func TestGetOrAddConcurrentSingleWinner(t *testing.T) {
	tr := NewUintTrie[int](nil)

	const workers = 64
	var wg sync.WaitGroup
	wins := make([]Result, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, res := tr.GetOrAdd(100, func() int { return i })
			wins[i] = res
		}(i)
	}
	wg.Wait()

	inserted := 0
	for _, r := range wins {
		if r == Inserted {
			inserted++
		} else {
			assert.Equal(t, AlreadyExists, r)
		}
	}
	assert.Equal(t, 1, inserted)
	assert.Equal(t, int64(1), tr.Count())
}

func TestForEachSnapshot(t *testing.T) {
	tr := NewUintTrie[string](nil)
	tr.Insert(1, "a")
	tr.Insert(2, "b")
	tr.Insert(33, "c")

	var seen []string
	tr.ForEach(func(key string, val string) {
		seen = append(seen, val)
	})
	sort.Strings(seen)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestRemoveMatching(t *testing.T) {
	tr := NewUintTrie[int](nil)
	for i := uint64(0); i < 10; i++ {
		tr.Insert(i, int(i))
	}

	removed := tr.RemoveMatching(func(key string, val int) bool {
		return val%2 == 0
	})
	assert.Equal(t, 5, removed)
	assert.Equal(t, int64(5), tr.Count())
}

func TestOnChangeCallback(t *testing.T) {
	tr := NewUintTrie[int](nil)
	var events []Result
	var mu sync.Mutex
	tr.OnChange(func(key string, result Result) {
		mu.Lock()
		events = append(events, result)
		mu.Unlock()
	})

	tr.Insert(1, 1)
	tr.Replace(1, 2)
	tr.Remove(1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Result{Inserted, Replaced, Removed}, events)
}

func TestArenaExhaustion(t *testing.T) {
	arena := NewArena(1) // root already exists; only one more node allocatable
	tr := &UintTrie[int]{Trie: newTrie[int](UintFanout, arena, uintKeyFunc)}

	// Key "12" needs two additional nodes beyond the root; the arena only
	// has budget for one, so the second allocation must fail deterministically.
	res := tr.Insert(12, 1)
	assert.Equal(t, Failure, res)
}

func TestIsASCIIPath(t *testing.T) {
	assert.True(t, IsASCIIPath([]byte("/tmp/a.txt")))
	assert.False(t, IsASCIIPath([]byte("/tmp/繙.txt")))
}
