// Package worker runs reward-assignment passes: one pass loads a shard's
// stale history, joins rewards onto decisions, writes the rewarded partitions,
// and retires the incoming markers that triggered it.
package worker

import (
	"fmt"
	"sync"

	"github.com/chtzvt/rewardd/internal/store"
)

// StaleFilter narrows the history objects a pass re-reads, given the incoming
// marker keys that triggered it. The windowing strategy (only re-read
// date-paths near the incoming events) is reserved here; "all" re-reads the
// whole shard and is the only strategy with settled semantics.
type StaleFilter interface {
	Filter(objects []store.Object, incoming []string) []store.Object
}

var (
	staleMu      sync.RWMutex
	staleFilters = map[string]StaleFilter{}
)

func RegisterStaleFilter(name string, f StaleFilter) {
	staleMu.Lock()
	defer staleMu.Unlock()
	staleFilters[name] = f
}

func StaleFilterForName(name string) (StaleFilter, error) {
	staleMu.RLock()
	defer staleMu.RUnlock()
	f, ok := staleFilters[name]
	if !ok {
		return nil, fmt.Errorf("unknown stale filter: %s", name)
	}
	return f, nil
}

type allFilter struct{}

func (allFilter) Filter(objects []store.Object, incoming []string) []store.Object {
	return objects
}

func init() {
	RegisterStaleFilter("all", allFilter{})
}
