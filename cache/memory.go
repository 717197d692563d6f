package cache

import (
	"sort"
	"sync"
)

// memoryTier is the process-local first tier: a bounded map updated
// synchronously on every write and read-through. It is destroyed with
// the process and has no cross-process visibility.
type memoryTier struct {
	mutex     sync.Mutex
	entries   map[string]Entry
	softMax   int
	threshold int
}

func newMemoryTier(softMax, threshold int) *memoryTier {
	if threshold < softMax {
		threshold = softMax
	}
	return &memoryTier{
		entries:   make(map[string]Entry),
		softMax:   softMax,
		threshold: threshold,
	}
}

// get returns the entry for the namespaced key. A miss is a normal
// return, not a failure.
func (m *memoryTier) get(namespace, key string) (Entry, bool) {
	m.mutex.Lock()
	entry, ok := m.entries[storeKey(namespace, key)]
	m.mutex.Unlock()
	return entry, ok
}

// set stores or overwrites the entry, evicting the oldest entries once
// the count breaches the threshold. The common-case write stays O(1);
// the sort only runs on a breach and brings the count back to softMax.
func (m *memoryTier) set(namespace, key, value string, timestamp int64) {
	m.mutex.Lock()
	m.entries[storeKey(namespace, key)] = Entry{Value: value, Timestamp: timestamp}
	if len(m.entries) > m.threshold {
		m.evict()
	}
	m.mutex.Unlock()
}

// evict removes the count-softMax entries with the oldest timestamps.
// Caller holds the mutex.
func (m *memoryTier) evict() {
	type aged struct {
		key       string
		timestamp int64
	}
	all := make([]aged, 0, len(m.entries))
	for k, e := range m.entries {
		all = append(all, aged{key: k, timestamp: e.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].timestamp < all[j].timestamp })
	for _, victim := range all[:len(all)-m.softMax] {
		delete(m.entries, victim.key)
	}
}

func (m *memoryTier) len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.entries)
}
