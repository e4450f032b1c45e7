package worker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chtzvt/rewardd/internal/assign"
	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/naming"
	log "github.com/sirupsen/logrus"
)

type PassResult struct {
	Project      string
	ShardID      string
	StaleObjects int
	StaleBytes   int64

	// Resharded means the size gate fired: nothing was loaded or written,
	// one reshard invocation was enqueued, and the markers were kept.
	Resharded bool

	Load         *LoadResult
	FailedGroups map[string]error
	Write        *WriteStats

	MarkersDeleted int
}

// AssignRewards runs one reward-assignment pass over a shard. Marker deletion
// is strictly last: any earlier error returns with markers intact so the next
// dispatch retries the shard.
func (w *Worker) AssignRewards(ctx context.Context, payload cluster.WorkerPayload) (*PassResult, error) {
	if payload.ProjectName == "" || payload.ShardID == "" {
		return nil, fmt.Errorf("payload missing project_name or shard_id")
	}
	if !naming.IsShardID(payload.ShardID) {
		return nil, fmt.Errorf("invalid shard id %q", payload.ShardID)
	}
	if w.Config == nil {
		return nil, fmt.Errorf("customization config missing")
	}
	project, shardID := payload.ProjectName, payload.ShardID
	if !w.Config.HasProject(project) {
		return nil, fmt.Errorf("unknown project %q", project)
	}

	if !payload.LastProcessedTimestampUpdated {
		if err := w.Cluster.UpdateShardLastProcessed(ctx, project, shardID, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("update last processed: %w", err)
		}
	}

	historyObjects, err := w.Store.List(ctx, naming.HistoryShardPrefix(project, shardID))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	incomingObjects, err := w.Store.List(ctx, naming.IncomingShardPrefix(project, shardID))
	if err != nil {
		return nil, fmt.Errorf("list incoming: %w", err)
	}
	incomingKeys := make([]string, 0, len(incomingObjects))
	for _, o := range incomingObjects {
		incomingKeys = append(incomingKeys, o.Key)
	}

	stale := w.staleFilter().Filter(historyObjects, incomingKeys)
	result := &PassResult{Project: project, ShardID: shardID, StaleObjects: len(stale)}
	for _, o := range stale {
		result.StaleBytes += o.Size
	}

	if w.MaxPayloadBytes > 0 && result.StaleBytes > w.MaxPayloadBytes {
		_, err := w.Cluster.Enqueue(ctx, cluster.FunctionReshard, cluster.ReshardPayload{
			ProjectName: project,
			ShardID:     shardID,
		})
		if err != nil {
			return nil, fmt.Errorf("enqueue reshard: %w", err)
		}
		log.WithFields(log.Fields{
			"project":     project,
			"shard":       shardID,
			"stale_bytes": result.StaleBytes,
			"max_bytes":   w.MaxPayloadBytes,
		}).Info("shard over payload limit, reshard requested")
		result.Resharded = true
		return result, nil
	}

	load, err := LoadHistory(ctx, w.Store, stale)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	result.Load = load

	records, err := w.Hooks.ModifyHistoryRecords(project, load.Records)
	if err != nil {
		return nil, fmt.Errorf("modify history records hook: %w", err)
	}

	builder := assign.NewBuilder(w.Hooks, w.Config.Window())
	decisions, failedGroups := builder.Build(project, records)
	result.FailedGroups = failedGroups
	for _, historyID := range sortedGroupKeys(failedGroups) {
		log.WithFields(log.Fields{
			"project":    project,
			"shard":      shardID,
			"history_id": historyID,
		}).WithError(failedGroups[historyID]).Warn("history group skipped")
	}

	writer := NewWriter(w.Store, w.Hooks, w.Config)
	writeStats, err := writer.WriteRewardedDecisions(ctx, project, shardID, decisions)
	if err != nil {
		return nil, err
	}
	result.Write = writeStats

	// Last step. Markers deleted means this pass is done and will not rerun.
	if len(incomingKeys) > 0 {
		if err := w.Store.Delete(ctx, incomingKeys...); err != nil {
			return nil, fmt.Errorf("delete incoming markers: %w", err)
		}
	}
	result.MarkersDeleted = len(incomingKeys)

	log.WithFields(log.Fields{
		"project":       project,
		"shard":         shardID,
		"objects":       load.ObjectsRead,
		"duplicates":    load.Duplicates,
		"consolidated":  load.Consolidated,
		"failed_groups": len(failedGroups),
		"emitted":       writeStats.Emitted,
		"nonzero":       writeStats.NonZeroRewards,
		"max_reward":    writeStats.MaxReward,
		"mean_reward":   writeStats.MeanReward,
		"output_keys":   writeStats.OutputKeys,
	}).Info("reward assignment pass complete")
	return result, nil
}

func sortedGroupKeys(failed map[string]error) []string {
	keys := make([]string, 0, len(failed))
	for historyID := range failed {
		keys = append(keys, historyID)
	}
	sort.Strings(keys)
	return keys
}
