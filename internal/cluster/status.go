package cluster

import (
	"context"
	"sort"
	"time"
)

type ClusterStatus struct {
	Projects    []ProjectStatus  `json:"projects"`
	Workers     []WorkerInfo     `json:"workers"`
	QueueDepths map[string]int64 `json:"queue_depths"`
}

type ProjectStatus struct {
	Name   string         `json:"name"`
	Shards []ShardSummary `json:"shards"`
}

type ShardSummary struct {
	ShardID       string    `json:"shard_id"`
	Class         string    `json:"class"`
	LastProcessed time.Time `json:"last_processed"`
}

// GetClusterStatus summarizes registered projects, their shards, queue depth,
// and worker health. Read-only: the registry is not compacted here.
func (c *etcdCluster) GetClusterStatus(ctx context.Context) (*ClusterStatus, error) {
	projects, err := c.RegisteredProjects(ctx)
	if err != nil {
		return nil, err
	}
	workers, err := c.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	depths := make(map[string]int64, 2)
	for _, function := range []string{FunctionAssignRewards, FunctionReshard} {
		depth, err := c.QueueDepth(ctx, function)
		if err != nil {
			return nil, err
		}
		depths[function] = depth
	}

	projectStates := make([]ProjectStatus, 0, len(projects))
	for _, project := range projects {
		lastProcessed, err := c.ShardLastProcessed(ctx, project)
		if err != nil {
			continue // skip on error
		}
		shardIDs := make([]string, 0, len(lastProcessed))
		for shardID := range lastProcessed {
			shardIDs = append(shardIDs, shardID)
		}
		sort.Strings(shardIDs)
		parents, children, _ := GroupShards(shardIDs)
		classes := make(map[string]string, len(shardIDs))
		for _, shardID := range shardIDs {
			classes[shardID] = ShardClassStable
		}
		for _, shardID := range children {
			classes[shardID] = ShardClassChild
		}
		for _, shardID := range parents {
			classes[shardID] = ShardClassParent
		}
		shards := make([]ShardSummary, 0, len(shardIDs))
		for _, shardID := range shardIDs {
			shards = append(shards, ShardSummary{
				ShardID:       shardID,
				Class:         classes[shardID],
				LastProcessed: lastProcessed[shardID],
			})
		}
		projectStates = append(projectStates, ProjectStatus{
			Name:   project,
			Shards: shards,
		})
	}
	return &ClusterStatus{
		Projects:    projectStates,
		Workers:     workers,
		QueueDepths: depths,
	}, nil
}
