package entry

import (
	"hash/fnv"
	"sync"
)

// DefaultLockShards is the number of mutexes in a lock table.
const DefaultLockShards = 256

// lockTable serializes work per document id.
//
// Ids hash onto a fixed set of mutexes, so two ids may share a shard and
// wait on each other. That costs some parallelism but never correctness,
// and the table never grows. Callers must hold at most one shard at a time.
type lockTable struct {
	shards []sync.Mutex
}

func newLockTable(n int) *lockTable {
	if n < 1 {
		n = DefaultLockShards
	}
	return &lockTable{shards: make([]sync.Mutex, n)}
}

// lock acquires the shard for id and returns its unlock function.
func (t *lockTable) lock(id string) func() {
	mu := &t.shards[t.shard(id)]
	mu.Lock()
	return mu.Unlock
}

func (t *lockTable) shard(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(t.shards)))
}
