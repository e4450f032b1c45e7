package cluster

import (
	"github.com/chtzvt/rewardd/internal/naming"
)

// Shard classes. A shard id is a bitstring; a split replaces a parent with
// longer-id children, and both generations coexist in the registry until the
// reshard subsystem finishes moving history over.
const (
	ShardClassParent = "resharding_parent"
	ShardClassChild  = "resharding_child"
	ShardClassStable = "stable"
)

// GroupShards classifies a lexicographically sorted shard id list. A shard
// with a descendant present is a parent, one with an ancestor present is a
// child, and only shards that are neither are stable. Mid-split generations
// can be both parent and child at once.
func GroupShards(sorted []string) (parents, children, stable []string) {
	var stack []string
	for i, shardID := range sorted {
		for len(stack) > 0 && !naming.IsAncestorShard(stack[len(stack)-1], shardID) {
			stack = stack[:len(stack)-1]
		}
		isChild := len(stack) > 0
		isParent := i+1 < len(sorted) && naming.IsAncestorShard(shardID, sorted[i+1])
		switch {
		case isParent && isChild:
			parents = append(parents, shardID)
			children = append(children, shardID)
		case isParent:
			parents = append(parents, shardID)
		case isChild:
			children = append(children, shardID)
		default:
			stable = append(stable, shardID)
		}
		stack = append(stack, shardID)
	}
	return parents, children, stable
}
